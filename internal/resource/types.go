package resource

// Type is the declaration for one resource category. It is plain data: the
// engine never special-cases a concrete type, and a new category is added by
// declaring one of these and registering an adapter for it.
type Type struct {
	// Name identifies the type in state files, CLI selection, and connections.
	Name string

	// BaseEndpoint is the collection path, e.g. "/api/v1/dashboard".
	BaseEndpoint string

	// IDAttribute is the attribute carrying the account-local identifier.
	// Defaults to "id".
	IDAttribute string

	// ResultsKey unwraps list responses shaped {key: [...]} on un-paginated
	// endpoints. Ignored when Paginated is set.
	ResultsKey string

	// RequestKey, when set, wraps create/update bodies as {key: doc} and
	// unwraps responses from the same key (v2-style envelopes).
	RequestKey string

	// Paginated marks endpoints listed via opaque-cursor pagination.
	Paginated bool

	// PageSize overrides the default page size for paginated listings.
	PageSize int

	// Concurrent allows instances of this type to be processed in parallel.
	Concurrent bool

	// Connections maps an attribute path to the resource types it references.
	// Paths use dot notation; "*" addresses every element of a sequence.
	// A path may resolve against several types (e.g. composite monitors).
	Connections map[string][]string

	// ExcludedAttributes are dot paths stripped before diffing, typically
	// server-generated fields.
	ExcludedAttributes []string

	// MatchOn lists the dot-path attributes forming the type's natural key.
	// When set, an uncorrelated instance is matched against existing
	// destination instances by key before falling back to create, and the
	// key attributes are kept in create payloads.
	MatchOn []string

	// TagOnCreate is a uniform set of tags stamped onto every instance
	// created at the destination.
	TagOnCreate []string
}

// IDAttr returns the identifier attribute, defaulting to "id".
func (t Type) IDAttr() string {
	if t.IDAttribute == "" {
		return "id"
	}
	return t.IDAttribute
}

// instancePath returns the member path for one instance.
func (t Type) instancePath(id string) string {
	return t.BaseEndpoint + "/" + id
}
