package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgsync-io/orgsync/internal/resource"
	"github.com/orgsync-io/orgsync/internal/state"
)

func monitorType() resource.Type {
	return resource.Type{
		Name: "monitors",
		Connections: map[string][]string{
			"dashboard_id":       {"dashboards"},
			"restricted_roles.*": {"roles"},
		},
	}
}

func TestRemap_ScalarConnection(t *testing.T) {
	table := state.NewCorrelationTable()
	table.Put("dashboards", "abc-123", "xyz-789")
	r := NewRemapper(table)

	inst := resource.Instance{"dashboard_id": "abc-123", "name": "cpu high"}
	require.NoError(t, r.Apply(monitorType(), "m1", inst))

	assert.Equal(t, "xyz-789", inst["dashboard_id"])
	assert.Equal(t, "cpu high", inst["name"], "unrelated attributes stay untouched")
}

func TestRemap_PreservesNumericShape(t *testing.T) {
	table := state.NewCorrelationTable()
	table.Put("dashboards", "101", "202")
	r := NewRemapper(table)

	inst := resource.Instance{"dashboard_id": json.Number("101")}
	require.NoError(t, r.Apply(monitorType(), "m1", inst))

	assert.Equal(t, json.Number("202"), inst["dashboard_id"])
}

func TestRemap_SequenceWildcard(t *testing.T) {
	table := state.NewCorrelationTable()
	table.Put("roles", "r1", "d-r1")
	table.Put("roles", "r2", "d-r2")
	r := NewRemapper(table)

	inst := resource.Instance{"restricted_roles": []any{"r1", "r2"}}
	require.NoError(t, r.Apply(monitorType(), "m1", inst))

	assert.Equal(t, []any{"d-r1", "d-r2"}, inst["restricted_roles"])
}

func TestRemap_NestedWildcardPath(t *testing.T) {
	typ := resource.Type{
		Name: "users",
		Connections: map[string][]string{
			"relationships.roles.data.*.id": {"roles"},
		},
	}
	table := state.NewCorrelationTable()
	table.Put("roles", "r1", "d-r1")
	r := NewRemapper(table)

	inst := resource.Instance{
		"relationships": map[string]any{
			"roles": map[string]any{
				"data": []any{
					map[string]any{"id": "r1", "type": "roles"},
				},
			},
		},
	}
	require.NoError(t, r.Apply(typ, "u1", inst))

	data := inst["relationships"].(map[string]any)["roles"].(map[string]any)["data"].([]any)
	assert.Equal(t, "d-r1", data[0].(map[string]any)["id"])
}

func TestRemap_Idempotent(t *testing.T) {
	table := state.NewCorrelationTable()
	table.Put("dashboards", "abc-123", "xyz-789")
	r := NewRemapper(table)

	inst := resource.Instance{"dashboard_id": "abc-123"}
	require.NoError(t, r.Apply(monitorType(), "m1", inst))
	require.NoError(t, r.Apply(monitorType(), "m1", inst))

	assert.Equal(t, "xyz-789", inst["dashboard_id"])
}

func TestRemap_MissingCorrelationFailsInstance(t *testing.T) {
	r := NewRemapper(state.NewCorrelationTable())

	inst := resource.Instance{"dashboard_id": "never-synced"}
	err := r.Apply(monitorType(), "m1", inst)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "monitors", resErr.Type)
	assert.Equal(t, "m1", resErr.SourceID)
	assert.Equal(t, "never-synced", resErr.Ref)
}

func TestRemap_ForceMissingLeavesValue(t *testing.T) {
	r := NewRemapper(state.NewCorrelationTable())
	r.ForceMissing = true

	inst := resource.Instance{"dashboard_id": "never-synced"}
	require.NoError(t, r.Apply(monitorType(), "m1", inst))
	assert.Equal(t, "never-synced", inst["dashboard_id"])
}

func TestRemap_AbsentAndNullPathsSkipped(t *testing.T) {
	r := NewRemapper(state.NewCorrelationTable())

	inst := resource.Instance{"name": "no refs", "dashboard_id": nil}
	require.NoError(t, r.Apply(monitorType(), "m1", inst))
	assert.Nil(t, inst["dashboard_id"])
}
