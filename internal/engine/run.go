package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/orgsync-io/orgsync/internal/logging"
	"github.com/orgsync-io/orgsync/internal/resource"
	"github.com/orgsync-io/orgsync/internal/state"
)

// Mode selects the pipeline a run executes.
type Mode int

const (
	ModeImport Mode = iota
	ModeSync
	ModeDiffs
	ModeReset
)

func (m Mode) String() string {
	switch m {
	case ModeImport:
		return "import"
	case ModeSync:
		return "sync"
	case ModeDiffs:
		return "diffs"
	case ModeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// ParseMode resolves a pipeline mode name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "import":
		return ModeImport, nil
	case "sync":
		return ModeSync, nil
	case "diffs":
		return ModeDiffs, nil
	case "reset":
		return ModeReset, nil
	default:
		return 0, fmt.Errorf("unknown pipeline mode: %s", s)
	}
}

// defaultInstanceParallelism bounds concurrent instance tasks for a type
// whose declaration allows parallel processing. Actual request concurrency
// is further bounded by the transport limiter.
const defaultInstanceParallelism = 10

// Orchestrator drives import, sync, diff, and reset runs over every
// registered type in dependency-wave order.
type Orchestrator struct {
	registry *resource.Registry
	store    *state.Store

	// ForceMissingDependencies downgrades unresolved references during remap
	// to warnings instead of per-instance failures.
	ForceMissingDependencies bool

	// InstanceParallelism overrides the per-type instance task bound.
	InstanceParallelism int
}

func NewOrchestrator(registry *resource.Registry, store *state.Store) *Orchestrator {
	return &Orchestrator{registry: registry, store: store}
}

// Run executes one pipeline over the selected types (empty = all). Fatal
// configuration errors return before any network call; per-instance failures
// are collected in the report without halting independent work.
func (o *Orchestrator) Run(ctx context.Context, mode Mode, selected []string) (*Report, error) {
	graph, err := BuildGraph(o.registry.Types(), selected)
	if err != nil {
		return nil, err
	}
	graphTypes := make([]resource.Type, 0, len(graph.Names()))
	for _, name := range graph.Names() {
		graphTypes = append(graphTypes, graph.Type(name))
	}
	if err := ValidateExcludedPaths(graphTypes); err != nil {
		return nil, err
	}

	if err := o.store.Lock(ctx); err != nil {
		return nil, err
	}
	// The lock is released even when the run context was canceled.
	defer func() {
		if err := o.store.Unlock(context.WithoutCancel(ctx)); err != nil {
			logging.Warn("failed to release state lock", "error", err)
		}
	}()

	table := state.NewCorrelationTable()
	if err := o.store.LoadCorrelations(ctx, table, graph.Names()); err != nil {
		return nil, err
	}
	remapper := NewRemapper(table)
	remapper.ForceMissing = o.ForceMissingDependencies

	report := NewReport()
	waves := graph.Waves()
	if mode == ModeReset {
		waves = graph.ReversedWaves()
	}

	// Types whose reset left destination instances behind; their
	// dependencies must not be deleted out from under them.
	failedResets := make(map[string]bool)

	for i, wave := range waves {
		// An abort lets in-flight instance tasks reach a terminal state but
		// starts no further waves.
		if ctx.Err() != nil {
			logging.Warn("run aborted, skipping remaining waves", "wave", i)
			break
		}
		logging.Debug("starting wave", "wave", i, "types", wave, "mode", mode.String())

		var group errgroup.Group
		for _, name := range wave {
			if !graph.Selected(name) {
				continue
			}
			adapter, err := o.registry.Get(name)
			if err != nil {
				return nil, err
			}
			if mode == ModeReset {
				if blocked := firstFailedDependent(graph, name, failedResets); blocked != "" {
					o.skipReset(ctx, adapter, blocked, report)
					continue
				}
			}
			group.Go(func() error {
				o.runType(ctx, mode, adapter, table, remapper, report)
				return nil
			})
		}
		// Wave barrier: every type must reach a terminal state for all its
		// instances before a later wave reads the correlation table.
		_ = group.Wait()

		if mode == ModeReset {
			for _, outcome := range report.Failures() {
				failedResets[outcome.Type] = true
			}
		}
	}

	logging.Info("run complete", "mode", mode.String(), "summary", report.Summary())
	return report, nil
}

func (o *Orchestrator) runType(ctx context.Context, mode Mode, adapter resource.Adapter, table *state.CorrelationTable, remapper *Remapper, report *Report) {
	switch mode {
	case ModeImport:
		o.importType(ctx, adapter, report)
	case ModeSync:
		o.applyType(ctx, adapter, table, remapper, report, false)
	case ModeDiffs:
		o.applyType(ctx, adapter, table, remapper, report, true)
	case ModeReset:
		o.resetType(ctx, adapter, table, report)
	}
}

// importType fetches every instance from the source account and fully
// supersedes the type's source snapshot.
func (o *Orchestrator) importType(ctx context.Context, adapter resource.Adapter, report *Report) {
	typ := adapter.Type()
	snapshot := make(map[string]resource.Instance)

	for inst, err := range adapter.Fetch(ctx) {
		if err != nil {
			// A partial listing persists nothing; the previous snapshot
			// stays in place and no per-instance success is claimed.
			report.Record(Outcome{Type: typ.Name, SourceID: "*", Stage: StageFetch, Err: err})
			return
		}
		id, doc, err := adapter.Import(ctx, inst)
		if err != nil {
			report.Record(Outcome{Type: typ.Name, SourceID: "*", Stage: StageImport, Err: err})
			continue
		}
		snapshot[id] = doc
	}

	if err := o.store.ReplaceSource(ctx, typ.Name, snapshot); err != nil {
		report.Record(Outcome{Type: typ.Name, SourceID: "*", Stage: StageStore, Err: err})
		return
	}
	// Successes are recorded only once the snapshot is durably replaced.
	for _, id := range state.SourceIDs(snapshot) {
		report.Record(Outcome{Type: typ.Name, SourceID: id, Action: "import"})
	}
	logging.Info("imported type", "type", typ.Name, "instances", len(snapshot))
}

// applyType runs the sync pipeline for one type. With dryRun set it records
// the classification of every instance and issues no writes.
func (o *Orchestrator) applyType(ctx context.Context, adapter resource.Adapter, table *state.CorrelationTable, remapper *Remapper, report *Report, dryRun bool) {
	typ := adapter.Type()

	source, err := o.store.LoadSource(ctx, typ.Name)
	if err != nil {
		report.Record(Outcome{Type: typ.Name, SourceID: "*", Stage: StageStore, Err: err})
		return
	}
	if len(source) == 0 {
		logging.Warn("no imported instances for type, run import first", "type", typ.Name)
		return
	}

	ids := state.SourceIDs(source)
	if !dryRun {
		all := make([]resource.Instance, 0, len(ids))
		for _, id := range ids {
			all = append(all, source[id])
		}
		if err := adapter.PreApply(ctx, all); err != nil {
			report.Record(Outcome{Type: typ.Name, SourceID: "*", Stage: StageDiff,
				Err: fmt.Errorf("pre-apply hook rejected batch: %w", err)})
			return
		}
	}

	var group errgroup.Group
	group.SetLimit(o.typeParallelism(typ))
	for _, id := range ids {
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			o.applyInstance(ctx, adapter, typ, table, remapper, report, id, source[id], dryRun)
			return nil
		})
	}
	_ = group.Wait() // instance tasks report their own outcomes

	if !dryRun {
		if err := o.store.FlushDestination(ctx, typ.Name); err != nil {
			report.Record(Outcome{Type: typ.Name, SourceID: "*", Stage: StageStore, Err: err})
		}
	}
}

// applyInstance walks one instance through remap, diff classification, and
// the resulting write. Every path ends in exactly one recorded outcome.
func (o *Orchestrator) applyInstance(ctx context.Context, adapter resource.Adapter, typ resource.Type, table *state.CorrelationTable, remapper *Remapper, report *Report, sourceID string, inst resource.Instance, dryRun bool) {
	desired := inst.Clone()
	if err := remapper.Apply(typ, sourceID, desired); err != nil {
		report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Stage: StageRemap, Err: err})
		return
	}

	entry, hasEntry, err := o.store.GetDestination(ctx, typ.Name, sourceID)
	if err != nil {
		report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Stage: StageStore, Err: err})
		return
	}
	destID, hasCorrelation := table.Get(typ.Name, sourceID)

	if !hasCorrelation && !dryRun {
		matchID, ok, err := adapter.MatchExisting(ctx, desired)
		if err != nil {
			report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Stage: StageDiff, Err: err})
			return
		}
		if ok {
			table.Put(typ.Name, sourceID, matchID)
			destID, hasCorrelation = matchID, true
		}
	}

	sig := Signature(typ, desired)
	if hasCorrelation && hasEntry && entry.DiffSignature == sig {
		report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Action: ActionNoOp.String()})
		return
	}

	action := Classify(typ, desired, entry.Instance, hasCorrelation)
	if dryRun {
		report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Stage: StageDiff, Action: action.String()})
		return
	}

	switch action {
	case ActionNoOp:
		entry.DiffSignature = sig
		if err := o.store.PutDestination(ctx, typ.Name, sourceID, entry); err != nil {
			report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Stage: StageStore, Err: err})
			return
		}
		report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Action: action.String()})

	case ActionCreate:
		if err := adapter.PreResourceAction(ctx, desired); err != nil {
			report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Stage: StageCreate, Err: err})
			return
		}
		newID, applied, err := adapter.Create(ctx, desired)
		if err != nil {
			report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Stage: StageCreate, Err: err})
			return
		}
		// The correlation entry must be visible before any dependent
		// instance in a later wave remaps against it.
		table.Put(typ.Name, sourceID, newID)
		err = o.store.PutDestination(ctx, typ.Name, sourceID, state.DestinationEntry{
			DestinationID: newID, Instance: applied, DiffSignature: sig,
		})
		if err != nil {
			report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Stage: StageStore, Err: err})
			return
		}
		report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Action: action.String()})

	case ActionUpdate:
		if err := adapter.PreResourceAction(ctx, desired); err != nil {
			report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Stage: StageUpdate, Err: err})
			return
		}
		applied, err := adapter.Update(ctx, destID, desired)
		if err != nil {
			report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Stage: StageUpdate, Err: err})
			return
		}
		err = o.store.PutDestination(ctx, typ.Name, sourceID, state.DestinationEntry{
			DestinationID: destID, Instance: applied, DiffSignature: sig,
		})
		if err != nil {
			report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Stage: StageStore, Err: err})
			return
		}
		report.Record(Outcome{Type: typ.Name, SourceID: sourceID, Action: action.String()})
	}
}

// resetType deletes every destination instance of one type. Waves are
// processed in reverse, so dependents are already gone. A failed delete is
// reported and left alone; nothing is retried blindly.
func (o *Orchestrator) resetType(ctx context.Context, adapter resource.Adapter, table *state.CorrelationTable, report *Report) {
	typ := adapter.Type()

	dest, err := o.store.LoadDestination(ctx, typ.Name)
	if err != nil {
		report.Record(Outcome{Type: typ.Name, SourceID: "*", Stage: StageStore, Err: err})
		return
	}

	var group errgroup.Group
	group.SetLimit(o.typeParallelism(typ))
	for _, id := range state.SourceIDs(dest) {
		entry := dest[id]
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if entry.Instance != nil {
				if err := adapter.PreResourceAction(ctx, entry.Instance); err != nil {
					report.Record(Outcome{Type: typ.Name, SourceID: id, Stage: StageDelete, Err: err})
					return nil
				}
			}
			if err := adapter.Delete(ctx, entry.DestinationID); err != nil {
				report.Record(Outcome{Type: typ.Name, SourceID: id, Stage: StageDelete, Err: err})
				return nil
			}
			if err := o.store.RemoveDestination(ctx, typ.Name, id); err != nil {
				report.Record(Outcome{Type: typ.Name, SourceID: id, Stage: StageStore, Err: err})
				return nil
			}
			table.Remove(typ.Name, id)
			report.Record(Outcome{Type: typ.Name, SourceID: id, Action: "delete"})
			return nil
		})
	}
	_ = group.Wait() // instance tasks report their own outcomes

	if err := o.store.FlushDestination(ctx, typ.Name); err != nil {
		report.Record(Outcome{Type: typ.Name, SourceID: "*", Stage: StageStore, Err: err})
	}
}

// firstFailedDependent returns a dependent type whose reset failed, meaning
// name's instances may still be referenced and must be left intact.
func firstFailedDependent(graph *Graph, name string, failedResets map[string]bool) string {
	for _, dep := range graph.Dependents(name) {
		if failedResets[dep] {
			return dep
		}
	}
	return ""
}

// skipReset records every remaining destination instance of a type as failed
// because a dependent type could not be fully deleted.
func (o *Orchestrator) skipReset(ctx context.Context, adapter resource.Adapter, blockedBy string, report *Report) {
	typ := adapter.Type()
	dest, err := o.store.LoadDestination(ctx, typ.Name)
	if err != nil {
		report.Record(Outcome{Type: typ.Name, SourceID: "*", Stage: StageStore, Err: err})
		return
	}
	for _, id := range state.SourceIDs(dest) {
		report.Record(Outcome{Type: typ.Name, SourceID: id, Stage: StageDelete,
			Err: fmt.Errorf("skipped: dependent type %s still references this type", blockedBy)})
	}
}

func (o *Orchestrator) typeParallelism(typ resource.Type) int {
	if !typ.Concurrent {
		return 1
	}
	if o.InstanceParallelism > 0 {
		return o.InstanceParallelism
	}
	return defaultInstanceParallelism
}
