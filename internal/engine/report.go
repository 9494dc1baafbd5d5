package engine

import (
	"fmt"
	"sync"
)

// Stage names the point in the per-instance state machine where an outcome
// was recorded.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageImport Stage = "import"
	StageRemap  Stage = "remap"
	StageDiff   Stage = "diff"
	StageCreate Stage = "create"
	StageUpdate Stage = "update"
	StageDelete Stage = "delete"
	StageStore  Stage = "store"
)

// Outcome is the terminal per-instance result of one run.
type Outcome struct {
	Type     string
	SourceID string
	Stage    Stage
	Action   string
	Err      error
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s %s: failed at %s: %v", o.Type, o.SourceID, o.Stage, o.Err)
	}
	return fmt.Sprintf("%s %s: %s", o.Type, o.SourceID, o.Action)
}

// Report aggregates per-instance outcomes across a run. One instance's
// failure never affects how another is recorded.
type Report struct {
	mu       sync.Mutex
	outcomes []Outcome
	created  int
	updated  int
	deleted  int
	noops    int
	imported int
	failed   int
}

func NewReport() *Report {
	return &Report{}
}

// Record stores a terminal outcome.
func (r *Report) Record(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	if o.Err != nil {
		r.failed++
		return
	}
	switch o.Action {
	case "create":
		r.created++
	case "update":
		r.updated++
	case "delete":
		r.deleted++
	case "no-op":
		r.noops++
	case "import":
		r.imported++
	}
}

// Failures returns every failed outcome.
func (r *Report) Failures() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Outcome
	for _, o := range r.outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Outcomes returns every recorded outcome.
func (r *Report) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// FailedCount returns the number of instances that reached failed.
func (r *Report) FailedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Summary renders the run totals on one line.
func (r *Report) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("imported=%d created=%d updated=%d deleted=%d no-op=%d failed=%d",
		r.imported, r.created, r.updated, r.deleted, r.noops, r.failed)
}
