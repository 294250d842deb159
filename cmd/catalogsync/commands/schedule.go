package commands

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/internal/chrono"
	"catalogsync-backend/internal/telemetry"
	libtelemetry "catalogsync-backend/lib/telemetry"
	"catalogsync-backend/lib/timezone"
	"catalogsync-backend/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	scheduleFlags overrides
	scheduleSpec  string
	scheduleNow   bool
)

func init() {
	addOverrideFlags(scheduleCmd, &scheduleFlags)
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "", "Cron spec to run on, overrides the schedule in the config.")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "Also run once immediately.")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--cron <spec>] [--now]",
	Short: "Runs the pipeline on a cron schedule until interrupted.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		c, err := loadConfig(ctx, scheduleFlags)
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		if scheduleSpec != "" {
			c.Schedule = scheduleSpec
		}
		location, err := timezone.Load(c.Timezone)
		if err != nil {
			serviceutil.Fatal("failed to load timezone", err)
		}
		libtelemetry.InstrumentPerfStats(ctx, time.Minute)

		a, err := newApp(ctx, c)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		// a run-fatal failure stops the schedule, product failures do not
		var fatal atomic.Pointer[error]
		var running sync.Mutex
		stop := make(chan struct{})
		run := func() {
			if !running.TryLock() {
				slog.Warn("previous run is still in progress, skipping")
				return
			}
			defer running.Unlock()

			_, err := a.runOnce(ctx, os.Stdout)
			if err == nil || ctx.Err() != nil {
				return
			}
			slog.Error(describeRunError(err), "err", err)
			if catalog.IsRunFatal(err) && fatal.CompareAndSwap(nil, &err) {
				close(stop)
			}
		}

		cron := chrono.NewStandardCron(telemetry.SlogAPI{}, location)
		err = cron.Cron(c.Schedule, run)
		if err != nil {
			serviceutil.Fatal("invalid schedule", err)
		}
		slog.Info("scheduled", "cron", c.Schedule, "timezone", location.String())
		if scheduleNow {
			run()
		}

		select {
		case <-ctx.Done():
		case <-stop:
		}
		slog.Info("waiting for the current run to finish")
		<-cron.Stop().Done()

		if err := fatal.Load(); err != nil {
			a.Close()
			serviceutil.Fatal("schedule stopped", *err)
		}
	},
}
