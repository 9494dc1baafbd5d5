package cli

import (
	"github.com/spf13/cobra"

	"github.com/orgsync-io/orgsync/internal/engine"
)

var flagForceMissingDeps bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay imported resources against the destination account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		orch, err := buildOrchestrator(ctx)
		if err != nil {
			return err
		}
		orch.ForceMissingDependencies = flagForceMissingDeps
		report, err := orch.Run(ctx, engine.ModeSync, flagResources)
		if err != nil {
			return err
		}
		return renderReport(report)
	},
}

func init() {
	syncCmd.Flags().BoolVar(&flagForceMissingDeps, "force-missing-dependencies", false,
		"Leave unresolved references in place instead of failing the instance")
}
