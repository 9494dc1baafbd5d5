package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgsync-io/orgsync/internal/resource"
)

func declarations() []resource.Type {
	return []resource.Type{
		{Name: "roles"},
		{Name: "users", Connections: map[string][]string{
			"relationships.roles.data.*.id": {"roles"},
		}},
		{Name: "dashboards"},
		{Name: "monitors", Connections: map[string][]string{
			"dashboard_id": {"dashboards"},
		}},
		{Name: "downtimes", Connections: map[string][]string{
			"monitor_id": {"monitors"},
		}},
	}
}

func waveOf(t *testing.T, waves [][]string, name string) int {
	t.Helper()
	for i, wave := range waves {
		for _, member := range wave {
			if member == name {
				return i
			}
		}
	}
	t.Fatalf("type %s not in any wave", name)
	return -1
}

func TestBuildGraph_WaveOrdering(t *testing.T) {
	g, err := BuildGraph(declarations(), nil)
	require.NoError(t, err)

	waves := g.Waves()
	// Every type lands strictly after everything it depends on.
	assert.Less(t, waveOf(t, waves, "roles"), waveOf(t, waves, "users"))
	assert.Less(t, waveOf(t, waves, "dashboards"), waveOf(t, waves, "monitors"))
	assert.Less(t, waveOf(t, waves, "monitors"), waveOf(t, waves, "downtimes"))

	// Independent types share the first wave, in declaration order.
	assert.Equal(t, []string{"roles", "dashboards"}, waves[0])
}

func TestBuildGraph_CycleIsFatal(t *testing.T) {
	types := []resource.Type{
		{Name: "a", Connections: map[string][]string{"b_id": {"b"}}},
		{Name: "b", Connections: map[string][]string{"a_id": {"a"}}},
	}

	_, err := BuildGraph(types, nil)
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "cycle")
	assert.Contains(t, cfgErr.Error(), "a")
	assert.Contains(t, cfgErr.Error(), "b")
}

func TestBuildGraph_UnknownConnectionTarget(t *testing.T) {
	types := []resource.Type{
		{Name: "a", Connections: map[string][]string{"x_id": {"ghost"}}},
	}

	_, err := BuildGraph(types, nil)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "ghost")
}

func TestBuildGraph_UnknownSelection(t *testing.T) {
	_, err := BuildGraph(declarations(), []string{"nonexistent"})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestBuildGraph_SelectionPullsInReferencedTypes(t *testing.T) {
	g, err := BuildGraph(declarations(), []string{"downtimes"})
	require.NoError(t, err)

	// downtimes -> monitors -> dashboards are all in the graph, but only
	// downtimes is written.
	assert.ElementsMatch(t, []string{"dashboards", "monitors", "downtimes"}, g.Names())
	assert.True(t, g.Selected("downtimes"))
	assert.False(t, g.Selected("monitors"))
	assert.False(t, g.Selected("dashboards"))
}

func TestReversedWaves(t *testing.T) {
	g, err := BuildGraph(declarations(), nil)
	require.NoError(t, err)

	forward := g.Waves()
	reversed := g.ReversedWaves()
	require.Len(t, reversed, len(forward))
	for i := range forward {
		assert.Equal(t, forward[len(forward)-1-i], reversed[i])
	}
}

func TestGraph_Dependents(t *testing.T) {
	g, err := BuildGraph(declarations(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"monitors"}, g.Dependents("dashboards"))
	assert.Equal(t, []string{"downtimes"}, g.Dependents("monitors"))
	assert.Empty(t, g.Dependents("downtimes"))
}
