package cli

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-content/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Migrate(log)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
