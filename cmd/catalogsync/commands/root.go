package commands

import (
	"context"

	"catalogsync-backend/internal/config"
	"catalogsync-backend/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "catalogsync",
	Short:        "catalogsync mirrors a product catalog into a spreadsheet, writing only what changed.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			telemetry.InitSlog(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "Path to the json5 config file, <name>.local.json5 is merged on top.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
}

// ExecuteContext runs the command line, cobra has already printed the
// returned error.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
