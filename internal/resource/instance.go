// Package resource defines the resource model: per-type declarations, the
// adapter capability contract, and the generic HTTP adapter built from
// declaration data alone.
package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Instance is one resource document. Shapes are not known at compile time;
// everything downstream (remap, diff, persistence) works on the document tree.
type Instance map[string]any

// Decode parses a raw API document into an Instance. Numbers are kept as
// json.Number so account-local numeric identifiers survive round trips intact.
func Decode(raw json.RawMessage) (Instance, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var inst Instance
	if err := dec.Decode(&inst); err != nil {
		return nil, fmt.Errorf("decode resource document: %w", err)
	}
	return inst, nil
}

// ID extracts the account-local identifier at the given attribute, rendered
// as a string regardless of the underlying scalar type.
func (in Instance) ID(attr string) (string, bool) {
	v, ok := in[attr]
	if !ok {
		return "", false
	}
	s := ScalarString(v)
	return s, s != ""
}

// Clone returns a deep copy of the instance.
func (in Instance) Clone() Instance {
	if in == nil {
		return nil
	}
	return deepCopy(in).(Instance)
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case Instance:
		out := make(Instance, len(val))
		for k, v := range val {
			out[k] = deepCopy(v)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = deepCopy(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = deepCopy(v)
		}
		return out
	default:
		return val
	}
}

// ScalarString renders a scalar leaf as its string form. Non-scalar values
// render empty.
func ScalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return json.Number(fmt.Sprintf("%g", val)).String()
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return ""
	}
}
