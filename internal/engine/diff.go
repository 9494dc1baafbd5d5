package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/orgsync-io/orgsync/internal/resource"
)

// Action classifies the operation a desired instance requires against the
// destination.
type Action int

const (
	ActionNoOp Action = iota
	ActionCreate
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionNoOp:
		return "no-op"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// ValidateExcludedPaths rejects malformed excluded-attribute declarations at
// startup, before any instance is processed.
func ValidateExcludedPaths(types []resource.Type) error {
	for _, t := range types {
		for _, path := range t.ExcludedAttributes {
			if path == "" {
				return &DiffConfigError{Type: t.Name, Path: path}
			}
			for _, seg := range strings.Split(path, ".") {
				if seg == "" {
					return &DiffConfigError{Type: t.Name, Path: path}
				}
			}
		}
	}
	return nil
}

// Classify compares the desired (post-remap) document against the current
// destination document. No correlation means the instance must be created.
// The comparison ignores the type's excluded paths, fields only the server
// populates, ordering of set-valued fields, and scalar numeric type.
func Classify(typ resource.Type, desired, current resource.Instance, hasCorrelation bool) Action {
	if !hasCorrelation {
		return ActionCreate
	}
	d := normalizeForDiff(typ, desired)
	c := normalizeForDiff(typ, current)
	c = projectOnto(c, d)
	if reflect.DeepEqual(d, c) {
		return ActionNoOp
	}
	return ActionUpdate
}

// Signature returns a stable hash of the normalized desired document. Equal
// signatures across runs mean the last applied write is still current.
func Signature(typ resource.Type, desired resource.Instance) string {
	norm := normalizeForDiff(typ, desired)
	data, err := json.Marshal(norm)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalizeForDiff strips excluded paths and the identifier attribute, then
// canonicalizes scalars and set-valued fields.
func normalizeForDiff(typ resource.Type, inst resource.Instance) any {
	if inst == nil {
		return map[string]any{}
	}
	tree := map[string]any(inst.Clone())
	delete(tree, typ.IDAttr())
	for _, path := range typ.ExcludedAttributes {
		stripPath(tree, strings.Split(path, "."))
	}
	return canonicalize(tree)
}

// stripPath removes the attribute addressed by segs, honoring the "*"
// sequence wildcard.
func stripPath(node any, segs []string) {
	if len(segs) == 0 {
		return
	}
	seg := segs[0]

	if seg == "*" {
		list, ok := node.([]any)
		if !ok {
			return
		}
		for _, el := range list {
			stripPath(el, segs[1:])
		}
		return
	}

	m, ok := node.(map[string]any)
	if !ok {
		return
	}
	if len(segs) == 1 {
		delete(m, seg)
		return
	}
	stripPath(m[seg], segs[1:])
}

// canonicalize rewrites a document tree into a comparison-stable form:
// numbers by value, scalar sequences sorted.
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = canonicalize(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		scalars := true
		for i, el := range val {
			out[i] = canonicalize(el)
			switch out[i].(type) {
			case map[string]any, []any:
				scalars = false
			}
		}
		if scalars {
			sort.Slice(out, func(i, j int) bool {
				return scalarSortKey(out[i]) < scalarSortKey(out[j])
			})
		}
		return out
	case json.Number:
		return normNumber(val.String())
	case float64:
		return normNumber(strconv.FormatFloat(val, 'g', -1, 64))
	case int:
		return normNumber(strconv.Itoa(val))
	case int64:
		return normNumber(strconv.FormatInt(val, 10))
	default:
		return val
	}
}

// normNumber renders numerically equal values identically regardless of
// integer or floating representation.
func normNumber(s string) json.Number {
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return json.Number(strconv.FormatInt(int64(f), 10))
	}
	return json.Number(s)
}

func scalarSortKey(v any) string {
	switch val := v.(type) {
	case string:
		return "s:" + val
	case json.Number:
		return "n:" + val.String()
	case bool:
		return "b:" + strconv.FormatBool(val)
	case nil:
		return "z:"
	default:
		return "?:"
	}
}

// projectOnto drops map keys that exist only in current: fields the server
// generates are absent from the desired document and must not count as
// drift. Recurses through matching map and sequence structure.
func projectOnto(current, desired any) any {
	cm, cok := current.(map[string]any)
	dm, dok := desired.(map[string]any)
	if cok && dok {
		out := make(map[string]any, len(dm))
		for k, dv := range dm {
			if cv, ok := cm[k]; ok {
				out[k] = projectOnto(cv, dv)
			}
		}
		return out
	}

	cl, cok := current.([]any)
	dl, dok := desired.([]any)
	if cok && dok && len(cl) == len(dl) {
		out := make([]any, len(cl))
		for i := range cl {
			out[i] = projectOnto(cl[i], dl[i])
		}
		return out
	}

	return current
}
