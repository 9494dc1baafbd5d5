package cli

import (
	"github.com/spf13/cobra"

	"github.com/orgsync-io/orgsync/internal/engine"
)

var diffsCmd = &cobra.Command{
	Use:   "diffs",
	Short: "Show what sync would change, without writing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		orch, err := buildOrchestrator(ctx)
		if err != nil {
			return err
		}
		report, err := orch.Run(ctx, engine.ModeDiffs, flagResources)
		if err != nil {
			return err
		}
		return renderReport(report)
	},
}
