package engine

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgsync-io/orgsync/internal/resource"
	"github.com/orgsync-io/orgsync/internal/state"
)

// recorder collects adapter calls across types so tests can assert ordering.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) indexOf(event string) int {
	for i, e := range r.all() {
		if e == event {
			return i
		}
	}
	return -1
}

// fakeAdapter is an in-memory Adapter standing in for the HTTP one.
type fakeAdapter struct {
	typ resource.Type
	rec *recorder

	mu         sync.Mutex
	fetches    []resource.Instance
	fetchErr   error // yielded after the fetched instances
	nextID     int
	failCreate map[string]bool   // keyed by source ID
	failDelete map[string]bool   // keyed by destination ID
	matches    map[string]string // natural key (name) -> existing destination ID
}

func newFakeAdapter(typ resource.Type, rec *recorder) *fakeAdapter {
	return &fakeAdapter{
		typ: typ, rec: rec,
		failCreate: make(map[string]bool),
		failDelete: make(map[string]bool),
	}
}

func (a *fakeAdapter) Type() resource.Type { return a.typ }

func (a *fakeAdapter) Fetch(context.Context) iter.Seq2[resource.Instance, error] {
	return func(yield func(resource.Instance, error) bool) {
		for _, inst := range a.fetches {
			if !yield(inst.Clone(), nil) {
				return
			}
		}
		if a.fetchErr != nil {
			yield(nil, a.fetchErr)
		}
	}
}

func (a *fakeAdapter) Import(_ context.Context, inst resource.Instance) (string, resource.Instance, error) {
	id, ok := inst.ID(a.typ.IDAttr())
	if !ok {
		return "", nil, fmt.Errorf("no id")
	}
	return id, inst, nil
}

func (a *fakeAdapter) Create(_ context.Context, inst resource.Instance) (string, resource.Instance, error) {
	sourceID, _ := inst.ID(a.typ.IDAttr())
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failCreate[sourceID] {
		return "", nil, fmt.Errorf("create rejected for %s", sourceID)
	}
	a.nextID++
	destID := fmt.Sprintf("%s-dest-%d", a.typ.Name, a.nextID)
	applied := inst.Clone()
	applied[a.typ.IDAttr()] = destID
	a.rec.add("create:" + a.typ.Name + ":" + sourceID)
	return destID, applied, nil
}

func (a *fakeAdapter) Update(_ context.Context, destID string, inst resource.Instance) (resource.Instance, error) {
	a.rec.add("update:" + a.typ.Name + ":" + destID)
	applied := inst.Clone()
	applied[a.typ.IDAttr()] = destID
	return applied, nil
}

func (a *fakeAdapter) Delete(_ context.Context, destID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failDelete[destID] {
		return fmt.Errorf("delete rejected for %s", destID)
	}
	a.rec.add("delete:" + a.typ.Name + ":" + destID)
	return nil
}

func (a *fakeAdapter) PreResourceAction(context.Context, resource.Instance) error { return nil }
func (a *fakeAdapter) PreApply(context.Context, []resource.Instance) error        { return nil }
func (a *fakeAdapter) MatchExisting(_ context.Context, inst resource.Instance) (string, bool, error) {
	if a.matches == nil {
		return "", false, nil
	}
	name, _ := inst["name"].(string)
	destID, ok := a.matches[name]
	return destID, ok, nil
}

func testDashboards() resource.Type {
	return resource.Type{Name: "dashboards", Concurrent: true}
}

func testMonitors() resource.Type {
	return resource.Type{
		Name:       "monitors",
		Concurrent: true,
		Connections: map[string][]string{
			"dashboard_id": {"dashboards"},
		},
	}
}

// testHarness wires an orchestrator over a temp-dir store and fake adapters.
func testHarness(t *testing.T, types ...resource.Type) (*Orchestrator, *state.Store, map[string]*fakeAdapter, *recorder) {
	t.Helper()
	rec := &recorder{}
	backend, err := state.NewBackend(context.Background(), state.BackendConfig{
		Type: "local", Dir: t.TempDir(),
	})
	require.NoError(t, err)
	store := state.NewStore(backend)

	registry := resource.NewRegistry()
	adapters := make(map[string]*fakeAdapter)
	for _, typ := range types {
		a := newFakeAdapter(typ, rec)
		adapters[typ.Name] = a
		require.NoError(t, registry.Register(a))
	}
	return NewOrchestrator(registry, store), store, adapters, rec
}

func TestRun_SyncCreatesInDependencyOrderAndRemaps(t *testing.T) {
	ctx := context.Background()
	orch, store, _, rec := testHarness(t, testDashboards(), testMonitors())

	require.NoError(t, store.ReplaceSource(ctx, "dashboards", map[string]resource.Instance{
		"D1": {"id": "D1", "title": "service overview"},
	}))
	require.NoError(t, store.ReplaceSource(ctx, "monitors", map[string]resource.Instance{
		"M1": {"id": "M1", "name": "cpu high", "dashboard_id": "D1"},
	}))

	report, err := orch.Run(ctx, ModeSync, nil)
	require.NoError(t, err)
	assert.Zero(t, report.FailedCount(), "failures: %v", report.Failures())

	// Dashboard created before the monitor that references it.
	dashIdx := rec.indexOf("create:dashboards:D1")
	monIdx := rec.indexOf("create:monitors:M1")
	require.GreaterOrEqual(t, dashIdx, 0)
	require.GreaterOrEqual(t, monIdx, 0)
	assert.Less(t, dashIdx, monIdx)

	// The monitor's embedded reference now carries the destination ID.
	dashEntry, ok, err := store.GetDestination(ctx, "dashboards", "D1")
	require.NoError(t, err)
	require.True(t, ok)
	monEntry, ok, err := store.GetDestination(ctx, "monitors", "M1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, dashEntry.DestinationID, monEntry.Instance["dashboard_id"])
	assert.NotEmpty(t, monEntry.DiffSignature)
}

func TestRun_SecondSyncIsAllNoOps(t *testing.T) {
	ctx := context.Background()
	orch, store, _, rec := testHarness(t, testDashboards(), testMonitors())

	require.NoError(t, store.ReplaceSource(ctx, "dashboards", map[string]resource.Instance{
		"D1": {"id": "D1", "title": "service overview"},
	}))
	require.NoError(t, store.ReplaceSource(ctx, "monitors", map[string]resource.Instance{
		"M1": {"id": "M1", "name": "cpu high", "dashboard_id": "D1"},
	}))

	_, err := orch.Run(ctx, ModeSync, nil)
	require.NoError(t, err)
	writesAfterFirst := len(rec.all())

	report, err := orch.Run(ctx, ModeSync, nil)
	require.NoError(t, err)
	assert.Zero(t, report.FailedCount())
	assert.Len(t, rec.all(), writesAfterFirst, "second run must issue zero create/update calls")
}

func TestRun_MissingCorrelationFailsOnlyThatInstance(t *testing.T) {
	ctx := context.Background()
	orch, store, _, rec := testHarness(t, testDashboards(), testMonitors())

	// No dashboards imported: M1's reference can never resolve, M2 has none.
	require.NoError(t, store.ReplaceSource(ctx, "monitors", map[string]resource.Instance{
		"M1": {"id": "M1", "name": "broken ref", "dashboard_id": "D-GONE"},
		"M2": {"id": "M2", "name": "standalone"},
	}))

	report, err := orch.Run(ctx, ModeSync, nil)
	require.NoError(t, err)

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "M1", failures[0].SourceID)
	assert.Equal(t, StageRemap, failures[0].Stage)
	var resErr *ResolutionError
	assert.ErrorAs(t, failures[0].Err, &resErr)

	assert.GreaterOrEqual(t, rec.indexOf("create:monitors:M2"), 0, "sibling must still sync")
}

func TestRun_ResetDeletesDependentsFirst(t *testing.T) {
	ctx := context.Background()
	orch, store, _, rec := testHarness(t, testDashboards(), testMonitors())

	require.NoError(t, store.ReplaceSource(ctx, "dashboards", map[string]resource.Instance{
		"D1": {"id": "D1", "title": "t"},
	}))
	require.NoError(t, store.ReplaceSource(ctx, "monitors", map[string]resource.Instance{
		"M1": {"id": "M1", "dashboard_id": "D1"},
	}))
	_, err := orch.Run(ctx, ModeSync, nil)
	require.NoError(t, err)

	report, err := orch.Run(ctx, ModeReset, nil)
	require.NoError(t, err)
	assert.Zero(t, report.FailedCount())

	events := rec.all()
	monDel, dashDel := -1, -1
	for i, e := range events {
		switch {
		case e == "delete:monitors:monitors-dest-1":
			monDel = i
		case e == "delete:dashboards:dashboards-dest-1":
			dashDel = i
		}
	}
	require.GreaterOrEqual(t, monDel, 0)
	require.GreaterOrEqual(t, dashDel, 0)
	assert.Less(t, monDel, dashDel, "dependents must be deleted before dependencies")

	remaining, err := store.LoadDestination(ctx, "monitors")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRun_ResetLeavesDependenciesWhenDependentDeleteFails(t *testing.T) {
	ctx := context.Background()
	orch, store, adapters, rec := testHarness(t, testDashboards(), testMonitors())

	require.NoError(t, store.ReplaceSource(ctx, "dashboards", map[string]resource.Instance{
		"D1": {"id": "D1", "title": "t"},
	}))
	require.NoError(t, store.ReplaceSource(ctx, "monitors", map[string]resource.Instance{
		"M1": {"id": "M1", "dashboard_id": "D1"},
	}))
	_, err := orch.Run(ctx, ModeSync, nil)
	require.NoError(t, err)

	adapters["monitors"].failDelete["monitors-dest-1"] = true

	report, err := orch.Run(ctx, ModeReset, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.FailedCount(), "monitor delete fails, dashboard delete is skipped")
	assert.Equal(t, -1, rec.indexOf("delete:dashboards:dashboards-dest-1"))

	remaining, err := store.LoadDestination(ctx, "dashboards")
	require.NoError(t, err)
	assert.Contains(t, remaining, "D1", "referenced dashboard must be left intact")
}

func TestRun_ImportSupersedesSnapshot(t *testing.T) {
	ctx := context.Background()
	orch, store, adapters, _ := testHarness(t, testDashboards())

	adapters["dashboards"].fetches = []resource.Instance{
		{"id": "D1", "title": "one"},
		{"id": "D2", "title": "two"},
	}
	report, err := orch.Run(ctx, ModeImport, nil)
	require.NoError(t, err)
	assert.Zero(t, report.FailedCount())

	snapshot, err := store.LoadSource(ctx, "dashboards")
	require.NoError(t, err)
	assert.Len(t, snapshot, 2)

	// A later import fully replaces the snapshot.
	adapters["dashboards"].fetches = []resource.Instance{{"id": "D2", "title": "two v2"}}
	_, err = orch.Run(ctx, ModeImport, nil)
	require.NoError(t, err)

	snapshot, err = store.LoadSource(ctx, "dashboards")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "two v2", snapshot["D2"]["title"])
}

func TestRun_ImportFetchFailureClaimsNothing(t *testing.T) {
	ctx := context.Background()
	orch, store, adapters, _ := testHarness(t, testDashboards())

	require.NoError(t, store.ReplaceSource(ctx, "dashboards", map[string]resource.Instance{
		"D1": {"id": "D1", "title": "kept"},
	}))

	adapters["dashboards"].fetches = []resource.Instance{{"id": "D2", "title": "partial"}}
	adapters["dashboards"].fetchErr = fmt.Errorf("listing aborted")

	report, err := orch.Run(ctx, ModeImport, nil)
	require.NoError(t, err)

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, StageFetch, failures[0].Stage)
	for _, o := range report.Outcomes() {
		assert.NotEqual(t, "import", o.Action, "a partial listing must not claim imports")
	}

	// The previous snapshot survives the aborted listing untouched.
	snapshot, err := store.LoadSource(ctx, "dashboards")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "kept", snapshot["D1"]["title"])
}

func TestRun_MatchedExistingInstanceIsAdoptedNotRecreated(t *testing.T) {
	ctx := context.Background()
	webhooks := resource.Type{Name: "webhooks", Concurrent: true}
	orch, store, adapters, rec := testHarness(t, webhooks)

	require.NoError(t, store.ReplaceSource(ctx, "webhooks", map[string]resource.Instance{
		"W1": {"id": "W1", "name": "on-call", "url": "https://example.com/hook"},
	}))
	adapters["webhooks"].matches = map[string]string{"on-call": "dest-77"}

	report, err := orch.Run(ctx, ModeSync, nil)
	require.NoError(t, err)
	assert.Zero(t, report.FailedCount(), "failures: %v", report.Failures())

	// The destination already holds this webhook under its name, so it is
	// updated in place rather than duplicated.
	assert.Equal(t, -1, rec.indexOf("create:webhooks:W1"))
	require.GreaterOrEqual(t, rec.indexOf("update:webhooks:dest-77"), 0)

	entry, ok, err := store.GetDestination(ctx, "webhooks", "W1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dest-77", entry.DestinationID)

	// The adopted correlation persists: the next run is a no-op.
	writes := len(rec.all())
	_, err = orch.Run(ctx, ModeSync, nil)
	require.NoError(t, err)
	assert.Len(t, rec.all(), writes)
}

func TestRun_DiffsModeIssuesNoWrites(t *testing.T) {
	ctx := context.Background()
	orch, store, _, rec := testHarness(t, testDashboards())

	require.NoError(t, store.ReplaceSource(ctx, "dashboards", map[string]resource.Instance{
		"D1": {"id": "D1", "title": "t"},
	}))

	report, err := orch.Run(ctx, ModeDiffs, nil)
	require.NoError(t, err)
	assert.Empty(t, rec.all())

	outcomes := report.Outcomes()
	require.Len(t, outcomes, 1)
	assert.Equal(t, ActionCreate.String(), outcomes[0].Action)
	assert.NoError(t, outcomes[0].Err)
}

func TestRun_CyclicDeclarationsAbortBeforeProcessing(t *testing.T) {
	a := resource.Type{Name: "a", Connections: map[string][]string{"b": {"b"}}}
	b := resource.Type{Name: "b", Connections: map[string][]string{"a": {"a"}}}
	orch, _, _, rec := testHarness(t, a, b)

	_, err := orch.Run(context.Background(), ModeSync, nil)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, rec.all())
}
