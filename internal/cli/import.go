package cli

import (
	"github.com/spf13/cobra"

	"github.com/orgsync-io/orgsync/internal/engine"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Fetch resources from the source account into local state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		orch, err := buildOrchestrator(ctx)
		if err != nil {
			return err
		}
		report, err := orch.Run(ctx, engine.ModeImport, flagResources)
		if err != nil {
			return err
		}
		return renderReport(report)
	},
}
