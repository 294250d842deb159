package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"catalogsync-backend/cmd/catalogsync/commands"
	"catalogsync-backend/lib/telemetry"
	"catalogsync-backend/lib/util/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext(context.Background())

	telemetry.InitSlog(false)
	err := telemetry.SetupFromEnv(ctx, "catalogsync")
	if err != nil {
		slog.Warn("failed to setup telemetry", "err", err)
	}

	err = commands.ExecuteContext(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := telemetry.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Warn("failed to flush telemetry", "err", shutdownErr)
	}
	if err != nil {
		os.Exit(1)
	}
}
