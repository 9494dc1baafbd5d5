// Package cli is the thin command surface over the sync engine: it builds
// the account clients, state store, and orchestrator, then renders run
// reports. All engine behavior lives in internal/engine.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/orgsync-io/orgsync/internal/logging"
)

var (
	flagLogLevel       string
	flagStateDir       string
	flagStateBackend   string
	flagStateBucket    string
	flagStatePrefix    string
	flagStateRegion    string
	flagStateLockTable string
	flagResources      []string
	flagMaxConnections int
	flagRetryMax       int
	flagTimeout        int
)

var rootCmd = &cobra.Command{
	Use:   "orgsync",
	Short: "Migrate configuration resources between accounts",
	Long: `Orgsync migrates configuration-as-data resources (dashboards, monitors,
roles, ...) from a source account to a destination account, preserving
cross-resource references and staying idempotent across repeated runs.

Credentials are read from the environment:
  ORGSYNC_SOURCE_API_KEY, ORGSYNC_SOURCE_APP_KEY, ORGSYNC_SOURCE_API_URL
  ORGSYNC_DESTINATION_API_KEY, ORGSYNC_DESTINATION_APP_KEY, ORGSYNC_DESTINATION_API_URL`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(flagLogLevel)
	},
	SilenceUsage: true,
}

// ExecuteContext runs the root command under the given context, which
// carries the signal-driven abort.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagStateDir, "state-dir", "resources", "Directory for local state snapshots")
	pf.StringVar(&flagStateBackend, "state-backend", "local", "State backend (local, s3)")
	pf.StringVar(&flagStateBucket, "state-bucket", "", "S3 bucket for the s3 state backend")
	pf.StringVar(&flagStatePrefix, "state-prefix", "orgsync", "Key prefix for the s3 state backend")
	pf.StringVar(&flagStateRegion, "state-region", "", "Region for the s3 state backend")
	pf.StringVar(&flagStateLockTable, "state-lock-table", "", "DynamoDB table for s3 state run locking")
	pf.StringSliceVar(&flagResources, "resources", nil, "Resource types to process (default: all)")
	pf.IntVar(&flagMaxConnections, "max-connections", 0, "Maximum in-flight API requests")
	pf.IntVar(&flagRetryMax, "retry-max", -1, "Maximum retries per API call (0 disables retries, -1 uses the default)")
	pf.IntVar(&flagTimeout, "timeout", 0, "Per-call timeout in seconds")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(diffsCmd)
	rootCmd.AddCommand(resetCmd)
}
