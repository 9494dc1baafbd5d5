package engine

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/orgsync-io/orgsync/internal/logging"
	"github.com/orgsync-io/orgsync/internal/resource"
	"github.com/orgsync-io/orgsync/internal/state"
)

// Remapper rewrites source-account identifiers embedded in instances into
// their destination-account counterparts using the correlation table.
type Remapper struct {
	table *state.CorrelationTable

	// ForceMissing downgrades a missing correlation entry to a warning,
	// leaving the value untouched instead of failing the instance.
	ForceMissing bool
}

func NewRemapper(table *state.CorrelationTable) *Remapper {
	return &Remapper{table: table}
}

// Apply rewrites every declared connection path of inst in place. Paths use
// dot notation; "*" addresses every element of a sequence. A reference whose
// target never synced fails only this instance. Re-applying to an already
// remapped instance is a no-op.
func (r *Remapper) Apply(typ resource.Type, sourceID string, inst resource.Instance) error {
	paths := make([]string, 0, len(typ.Connections))
	for p := range typ.Connections {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		refTypes := typ.Connections[path]
		err := walkPath(map[string]any(inst), strings.Split(path, "."), func(v any) (any, error) {
			return r.rewrite(v, refTypes, typ.Name, sourceID, path)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// rewrite swaps one scalar identifier. Null and non-scalar leaves pass
// through untouched, as do values that already carry a destination ID.
func (r *Remapper) rewrite(v any, refTypes []string, typeName, sourceID, path string) (any, error) {
	id := resource.ScalarString(v)
	if id == "" {
		return v, nil
	}

	for _, ref := range refTypes {
		if r.table.IsDestinationID(ref, id) {
			return v, nil
		}
	}
	for _, ref := range refTypes {
		if destID, ok := r.table.Get(ref, id); ok {
			return sameShape(v, destID), nil
		}
	}

	if r.ForceMissing {
		logging.Warn("leaving unresolved reference in place",
			"type", typeName, "id", sourceID, "path", path, "ref", id)
		return v, nil
	}
	return nil, &ResolutionError{
		Type: typeName, SourceID: sourceID, Path: path, Ref: id, RefTypes: refTypes,
	}
}

// sameShape renders the destination identifier in the same scalar shape as
// the value it replaces, so numeric references stay numeric.
func sameShape(orig any, destID string) any {
	switch orig.(type) {
	case json.Number, float64, int, int64:
		return json.Number(destID)
	default:
		return destID
	}
}

// walkPath applies fn to each leaf addressed by the path segments. Missing
// segments are skipped: not every instance of a type populates every
// connection attribute.
func walkPath(node any, segs []string, fn func(any) (any, error)) error {
	if len(segs) == 0 {
		return nil
	}
	seg := segs[0]

	if seg == "*" {
		list, ok := node.([]any)
		if !ok {
			return nil
		}
		for i, el := range list {
			if len(segs) == 1 {
				nv, err := fn(el)
				if err != nil {
					return err
				}
				list[i] = nv
			} else if err := walkPath(el, segs[1:], fn); err != nil {
				return err
			}
		}
		return nil
	}

	m := asMap(node)
	if m == nil {
		return nil
	}
	child, ok := m[seg]
	if !ok {
		return nil
	}
	if len(segs) == 1 {
		nv, err := fn(child)
		if err != nil {
			return err
		}
		m[seg] = nv
		return nil
	}
	return walkPath(child, segs[1:], fn)
}

func asMap(node any) map[string]any {
	switch v := node.(type) {
	case map[string]any:
		return v
	case resource.Instance:
		return map[string]any(v)
	default:
		return nil
	}
}
