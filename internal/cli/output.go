package cli

import (
	"fmt"

	"github.com/orgsync-io/orgsync/internal/engine"
)

// renderReport prints per-instance outcomes and returns a non-nil error when
// any instance reached a failed state, so the process exits non-zero.
func renderReport(report *engine.Report) error {
	for _, o := range report.Outcomes() {
		if o.Err == nil && o.Action == engine.ActionNoOp.String() {
			continue
		}
		fmt.Println(o.String())
	}
	fmt.Println(report.Summary())

	if n := report.FailedCount(); n > 0 {
		return fmt.Errorf("%d instance(s) failed", n)
	}
	return nil
}
