package commands

import (
	"os"
	"time"

	"catalogsync-backend/lib/telemetry"
	"catalogsync-backend/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var runFlags overrides

func init() {
	addOverrideFlags(runCmd, &runFlags)
	rootCmd.AddCommand(runCmd)
}

func addOverrideFlags(cmd *cobra.Command, o *overrides) {
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Keep the sink and state in memory, nothing outside the process is written except hosted images.")
	cmd.Flags().IntVar(&o.maxProducts, "max-products", 0, "Stop after this many products.")
	cmd.Flags().BoolVar(&o.refreshImages, "refresh-images", false, "Upload every image again, overwriting cached entries.")
}

var runCmd = &cobra.Command{
	Use:   "run [--dry-run] [--max-products <n>] [--refresh-images]",
	Short: "Runs the pipeline over the whole catalog once.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		c, err := loadConfig(ctx, runFlags)
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		telemetry.InstrumentPerfStats(ctx, time.Minute)

		a, err := newApp(ctx, c)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		_, err = a.runOnce(ctx, os.Stdout)
		if err != nil {
			a.Close()
			serviceutil.Fatal(describeRunError(err), err)
		}
	},
}
