package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orgsync-io/orgsync/internal/engine"
)

var flagResetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete previously synced resources from the destination account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !flagResetYes {
			fmt.Print("This deletes synced resources from the destination account. Type 'yes' to continue: ")
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.TrimSpace(answer) != "yes" {
				fmt.Println("Reset cancelled.")
				return nil
			}
		}

		orch, err := buildOrchestrator(ctx)
		if err != nil {
			return err
		}
		report, err := orch.Run(ctx, engine.ModeReset, flagResources)
		if err != nil {
			return err
		}
		return renderReport(report)
	},
}

func init() {
	resetCmd.Flags().BoolVar(&flagResetYes, "yes", false, "Skip the interactive confirmation")
}
