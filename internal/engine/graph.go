// Package engine contains the sync orchestration core: the dependency
// resolver, the identifier remapper, the diff engine, and the orchestrator
// that drives resource adapters through them.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orgsync-io/orgsync/internal/resource"
)

// Graph is the dependency graph over resource types, built from their
// declared connections and restricted to a selection closure.
type Graph struct {
	types    map[string]resource.Type
	order    []string            // declaration order, for deterministic ties
	deps     map[string][]string // type -> types it references
	selected map[string]bool     // types the run actually writes
	waves    [][]string
}

// BuildGraph validates connections, restricts the graph to the selected
// types plus everything they transitively reference, and computes the wave
// ordering. An empty selection selects every type.
func BuildGraph(all []resource.Type, selected []string) (*Graph, error) {
	byName := make(map[string]resource.Type, len(all))
	declOrder := make([]string, 0, len(all))
	for _, t := range all {
		byName[t.Name] = t
		declOrder = append(declOrder, t.Name)
	}

	// Connections may only reference declared types.
	for _, t := range all {
		for path, refs := range t.Connections {
			for _, ref := range refs {
				if _, ok := byName[ref]; !ok {
					return nil, &ConfigurationError{Reason: fmt.Sprintf(
						"type %s connects %q to unknown type %s", t.Name, path, ref)}
				}
			}
		}
	}

	g := &Graph{
		types:    make(map[string]resource.Type),
		deps:     make(map[string][]string),
		selected: make(map[string]bool),
	}

	// Selection closure: selected types plus everything they transitively
	// reference, so remapping has correlation data for types not written.
	roots := selected
	if len(roots) == 0 {
		roots = declOrder
	}
	queue := make([]string, 0, len(roots))
	for _, name := range roots {
		t, ok := byName[name]
		if !ok {
			return nil, &ConfigurationError{Reason: "unknown resource type selected: " + name}
		}
		g.selected[name] = true
		if _, seen := g.types[name]; !seen {
			g.types[name] = t
			queue = append(queue, name)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, ref := range referencedTypes(byName[name]) {
			if _, seen := g.types[ref]; !seen {
				g.types[ref] = byName[ref]
				queue = append(queue, ref)
			}
		}
	}

	// Keep declaration order restricted to the closure.
	for _, name := range declOrder {
		if _, ok := g.types[name]; ok {
			g.order = append(g.order, name)
			g.deps[name] = referencedTypes(byName[name])
		}
	}

	waves, err := g.computeWaves()
	if err != nil {
		return nil, err
	}
	g.waves = waves
	return g, nil
}

// referencedTypes returns the distinct types a declaration references,
// sorted for determinism.
func referencedTypes(t resource.Type) []string {
	set := make(map[string]bool)
	for _, refs := range t.Connections {
		for _, ref := range refs {
			if ref != t.Name {
				set[ref] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for ref := range set {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// Waves returns the topological layers: every type in wave n depends only on
// types in earlier waves, and members of one wave carry no edges between them.
func (g *Graph) Waves() [][]string {
	return g.waves
}

// ReversedWaves returns the wave sequence for delete processing: dependents
// before their dependencies.
func (g *Graph) ReversedWaves() [][]string {
	out := make([][]string, len(g.waves))
	for i, wave := range g.waves {
		out[len(g.waves)-1-i] = wave
	}
	return out
}

// Names returns every type in the graph in declaration order.
func (g *Graph) Names() []string {
	return g.order
}

// Selected reports whether a type is written by this run, as opposed to
// carried only for correlation data.
func (g *Graph) Selected(name string) bool {
	return g.selected[name]
}

// Type returns the declaration for a graph member.
func (g *Graph) Type(name string) resource.Type {
	return g.types[name]
}

// Dependents returns the graph members that reference name.
func (g *Graph) Dependents(name string) []string {
	var out []string
	for _, t := range g.order {
		for _, dep := range g.deps[t] {
			if dep == name {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// computeWaves runs Kahn's algorithm layer by layer. Ties inside a layer are
// broken by declaration order. A non-empty remainder is a cycle and fatal.
func (g *Graph) computeWaves() ([][]string, error) {
	inDegree := make(map[string]int, len(g.order))
	for _, name := range g.order {
		deps := 0
		for _, dep := range g.deps[name] {
			if _, ok := g.types[dep]; ok {
				deps++
			}
		}
		inDegree[name] = deps
	}

	remaining := len(g.order)
	done := make(map[string]bool, len(g.order))
	var waves [][]string
	for remaining > 0 {
		var wave []string
		for _, name := range g.order {
			if !done[name] && inDegree[name] == 0 {
				wave = append(wave, name)
			}
		}
		if len(wave) == 0 {
			var cycle []string
			for _, name := range g.order {
				if !done[name] {
					cycle = append(cycle, name)
				}
			}
			return nil, &ConfigurationError{Reason: "dependency cycle among resource types: " +
				strings.Join(cycle, ", ")}
		}
		for _, name := range wave {
			done[name] = true
			remaining--
		}
		// Settle in-degrees for the next layer.
		for _, name := range g.order {
			if done[name] {
				continue
			}
			deps := 0
			for _, dep := range g.deps[name] {
				if _, ok := g.types[dep]; ok && !done[dep] {
					deps++
				}
			}
			inDegree[name] = deps
		}
		waves = append(waves, wave)
	}
	return waves, nil
}
