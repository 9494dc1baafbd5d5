package resource

import (
	"fmt"
	"sync"
)

// Registry holds the adapters for every registered type, preserving
// declaration order for deterministic scheduling.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter. Registering the same type twice is an error.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Type().Name
	if name == "" {
		return fmt.Errorf("adapter has no type name")
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("resource type already registered: %s", name)
	}
	r.adapters[name] = a
	r.order = append(r.order, name)
	return nil
}

// Get returns the adapter for a type name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown resource type: %s", name)
	}
	return a, nil
}

// Names returns every registered type name in declaration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Types returns every registered declaration in declaration order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Type, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name].Type())
	}
	return out
}
