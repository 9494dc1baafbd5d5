package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/orgsync-io/orgsync/internal/transport"
)

// HTTPAdapter implements Adapter for any type whose endpoint layout follows
// the platform's collection conventions. Behavior is driven entirely by the
// Type declaration.
type HTTPAdapter struct {
	typ    Type
	source *transport.Client
	dest   *transport.Client

	// Destination natural-key index, built once per run for types with a
	// declared MatchOn key.
	matchOnce sync.Once
	matchIdx  map[string]string
	matchErr  error
}

// NewHTTPAdapter builds an adapter for typ over the two account clients.
func NewHTTPAdapter(typ Type, source, dest *transport.Client) *HTTPAdapter {
	return &HTTPAdapter{typ: typ, source: source, dest: dest}
}

func (a *HTTPAdapter) Type() Type {
	return a.typ
}

// Fetch yields every instance from the source account, page by page for
// cursor-paginated endpoints, in one shot otherwise.
func (a *HTTPAdapter) Fetch(ctx context.Context) iter.Seq2[Instance, error] {
	return func(yield func(Instance, error) bool) {
		emit := func(raw json.RawMessage) bool {
			inst, err := Decode(raw)
			if err != nil {
				return yield(nil, fmt.Errorf("%s: %w", a.typ.Name, err))
			}
			return yield(inst, nil)
		}

		if a.typ.Paginated {
			for page, err := range a.source.Pages(ctx, a.typ.BaseEndpoint, nil, a.typ.PageSize) {
				if err != nil {
					yield(nil, err)
					return
				}
				for _, raw := range page.Items {
					if !emit(raw) {
						return
					}
				}
			}
			return
		}

		items, err := a.source.List(ctx, a.typ.BaseEndpoint, nil, a.typ.ResultsKey)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, raw := range items {
			if !emit(raw) {
				return
			}
		}
	}
}

// Import returns the instance keyed by its source identifier, unchanged.
func (a *HTTPAdapter) Import(_ context.Context, inst Instance) (string, Instance, error) {
	id, ok := inst.ID(a.typ.IDAttr())
	if !ok {
		return "", nil, fmt.Errorf("%s: instance has no %q attribute", a.typ.Name, a.typ.IDAttr())
	}
	return id, inst, nil
}

// Create posts the instance to the destination collection and extracts the
// new destination identifier from the server's echo.
func (a *HTTPAdapter) Create(ctx context.Context, inst Instance) (string, Instance, error) {
	body := a.wrap(a.stripID(inst))

	var raw json.RawMessage
	if err := a.dest.Post(ctx, a.typ.BaseEndpoint, body, &raw); err != nil {
		return "", nil, err
	}
	created, err := a.unwrap(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", a.typ.Name, err)
	}
	id, ok := created.ID(a.typ.IDAttr())
	if !ok {
		return "", nil, fmt.Errorf("%s: created instance has no %q attribute", a.typ.Name, a.typ.IDAttr())
	}
	return id, created, nil
}

// Update replaces the destination instance identified by destID.
func (a *HTTPAdapter) Update(ctx context.Context, destID string, inst Instance) (Instance, error) {
	body := a.wrap(a.stripID(inst))

	var raw json.RawMessage
	if err := a.dest.Put(ctx, a.typ.instancePath(destID), body, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return inst, nil
	}
	updated, err := a.unwrap(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.typ.Name, err)
	}
	return updated, nil
}

// Delete removes the destination instance identified by destID.
func (a *HTTPAdapter) Delete(ctx context.Context, destID string) error {
	return a.dest.Delete(ctx, a.typ.instancePath(destID))
}

// PreResourceAction applies the declared uniform tagging policy before a
// write; otherwise it is a no-op.
func (a *HTTPAdapter) PreResourceAction(_ context.Context, inst Instance) error {
	if len(a.typ.TagOnCreate) == 0 {
		return nil
	}
	tags, _ := inst["tags"].([]any)
	have := make(map[string]bool, len(tags))
	for _, t := range tags {
		if s, ok := t.(string); ok {
			have[s] = true
		}
	}
	for _, t := range a.typ.TagOnCreate {
		if !have[t] {
			tags = append(tags, t)
		}
	}
	inst["tags"] = tags
	return nil
}

// PreApply is a no-op for convention-following types.
func (a *HTTPAdapter) PreApply(context.Context, []Instance) error {
	return nil
}

// MatchExisting looks an uncorrelated instance up in the destination account
// by the type's natural key, so re-created or hand-provisioned instances are
// adopted instead of duplicated. Types without a MatchOn key never match.
func (a *HTTPAdapter) MatchExisting(ctx context.Context, inst Instance) (string, bool, error) {
	if len(a.typ.MatchOn) == 0 {
		return "", false, nil
	}
	a.matchOnce.Do(func() {
		a.matchIdx, a.matchErr = a.destinationIndex(ctx)
	})
	if a.matchErr != nil {
		return "", false, a.matchErr
	}
	key := a.naturalKey(inst)
	if key == "" {
		return "", false, nil
	}
	destID, ok := a.matchIdx[key]
	return destID, ok, nil
}

// destinationIndex lists the destination collection once and indexes it by
// natural key.
func (a *HTTPAdapter) destinationIndex(ctx context.Context) (map[string]string, error) {
	items, err := a.dest.List(ctx, a.typ.BaseEndpoint, nil, a.typ.ResultsKey)
	if err != nil {
		return nil, fmt.Errorf("%s: list destination for matching: %w", a.typ.Name, err)
	}
	idx := make(map[string]string, len(items))
	for _, raw := range items {
		existing, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.typ.Name, err)
		}
		key := a.naturalKey(existing)
		if key == "" {
			continue
		}
		id, ok := existing.ID(a.typ.IDAttr())
		if !ok {
			continue
		}
		idx[key] = id
	}
	return idx, nil
}

// naturalKey renders the MatchOn attributes of an instance as one composite
// key. An instance missing any key attribute has no natural key.
func (a *HTTPAdapter) naturalKey(inst Instance) string {
	parts := make([]string, 0, len(a.typ.MatchOn))
	for _, path := range a.typ.MatchOn {
		v := ScalarString(attrAt(inst, path))
		if v == "" {
			return ""
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, ":")
}

// attrAt resolves a dot-path attribute through nested documents.
func attrAt(inst Instance, path string) any {
	var node any = map[string]any(inst)
	for _, seg := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[seg]
	}
	return node
}

// stripID drops the identifier attribute: the destination assigns its own.
// When the identifier is part of the natural key it is client-chosen and
// stays in the payload.
func (a *HTTPAdapter) stripID(inst Instance) Instance {
	out := inst.Clone()
	for _, path := range a.typ.MatchOn {
		if path == a.typ.IDAttr() {
			return out
		}
	}
	delete(out, a.typ.IDAttr())
	return out
}

func (a *HTTPAdapter) wrap(inst Instance) any {
	if a.typ.RequestKey == "" {
		return inst
	}
	return map[string]any{a.typ.RequestKey: inst}
}

func (a *HTTPAdapter) unwrap(raw json.RawMessage) (Instance, error) {
	inst, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if a.typ.RequestKey == "" {
		return inst, nil
	}
	inner, ok := inst[a.typ.RequestKey].(map[string]any)
	if !ok {
		// Some write endpoints reply without the envelope.
		return inst, nil
	}
	return Instance(inner), nil
}
