package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"catalogsync-backend/lib/configutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

type Config struct {
	Otlp OtlpConfig `json:"otlp"`
}

func (c Config) Enabled() bool {
	return c.Otlp.Traces.enabled() || c.Otlp.Metrics.enabled()
}

var (
	providersLock  sync.Mutex
	tracerProvider *trace.TracerProvider
	meterProvider  *metric.MeterProvider
)

// InitSlog installs the process-wide slog handler, text for terminals and
// json otherwise.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
	if stat, err := os.Stderr.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func Setup(ctx context.Context, serviceName string, config Config) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	if !config.Enabled() {
		slog.Info("no otlp endpoints configured, telemetry export disabled")
		return nil
	}

	r, err := newResource(serviceName)
	if err != nil {
		return err
	}

	providersLock.Lock()
	defer providersLock.Unlock()

	// a later Setup replaces whatever an earlier one installed
	err = shutdownProviders(ctx)
	if err != nil {
		slog.Warn("failed to flush previous telemetry providers", "err", err)
	}

	if config.Otlp.Traces.enabled() {
		tracerProvider, err = newTraceProvider(ctx, r, config.Otlp.Traces)
		if err != nil {
			return err
		}
		otel.SetTracerProvider(tracerProvider)
	}
	if config.Otlp.Metrics.enabled() {
		meterProvider, err = newMetricProvider(ctx, r, config.Otlp.Metrics)
		if err != nil {
			return err
		}
		otel.SetMeterProvider(meterProvider)
	}
	return nil
}

// Shutdown flushes whatever exporters Setup created.
func Shutdown(ctx context.Context) error {
	providersLock.Lock()
	defer providersLock.Unlock()
	return shutdownProviders(ctx)
}

func shutdownProviders(ctx context.Context) error {
	var errs []error
	if tracerProvider != nil {
		errs = append(errs, tracerProvider.Shutdown(ctx))
		tracerProvider = nil
	}
	if meterProvider != nil {
		errs = append(errs, meterProvider.Shutdown(ctx))
		meterProvider = nil
	}
	return errors.Join(errs...)
}

// searches up the filesystem from the cwd to find a file
// called telemetry.json5, once found it will then use it
// as a config to setup telemetry
func SetupFromEnv(ctx context.Context, serviceName string) error {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if os.IsNotExist(err) {
		slog.Debug("telemetry.json5 not found, telemetry export disabled")
		return nil
	}
	if err != nil {
		return err
	}
	return Setup(ctx, serviceName, config)
}

var setupTestEnvironments sync.Map

// sets up telemetry in a testing environment, ensuring that it isn't
// set up more than once
func SetupForTesting(serviceName string) func() {
	_, setupAlready := setupTestEnvironments.LoadOrStore(serviceName, true)
	if setupAlready {
		return func() {}
	}

	InitSlog(true)
	err := SetupFromEnv(context.Background(), serviceName)
	if err != nil {
		panic(err)
	}

	return func() {
		err = Shutdown(context.Background())
		if err != nil {
			panic(err)
		}
	}
}
