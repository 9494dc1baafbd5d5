package engine

import (
	"fmt"
	"strings"
)

// ConfigurationError is a fatal declaration problem (cyclic dependency,
// connection to an unknown type). It aborts a run before any network call.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ResolutionError marks one instance whose embedded reference has no
// correlation entry. It is scoped to the instance and never cascades.
type ResolutionError struct {
	Type     string
	SourceID string
	Path     string
	Ref      string
	RefTypes []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s %s: no correlation entry for %q at %s (referenced types: %s)",
		e.Type, e.SourceID, e.Ref, e.Path, strings.Join(e.RefTypes, ", "))
}

// DiffConfigError is a fatal startup problem with a declared
// excluded-attribute path.
type DiffConfigError struct {
	Type string
	Path string
}

func (e *DiffConfigError) Error() string {
	return fmt.Sprintf("malformed excluded attribute path %q on type %s", e.Path, e.Type)
}
