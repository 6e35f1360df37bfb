package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-content/internal/app"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the content learning HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			return a.RunAPI(ctx)
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Claim and run content ingest jobs",
	Long: `Polls the content_ingest_job queue and runs claimed jobs through the ingest pipeline.
Several workers may share one database; claims never overlap.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			return a.RunWorker(ctx)
		})
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run the API and a worker in one process",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			return a.RunAll(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(apiCmd, workerCmd, allCmd)
}
