package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/internal/catalog/extract"
	"catalogsync-backend/internal/catalog/imagecache"
	"catalogsync-backend/internal/catalog/normalize"
	"catalogsync-backend/internal/catalog/oracle"
	"catalogsync-backend/internal/catalog/pipeline"
	"catalogsync-backend/internal/catalog/state"
	"catalogsync-backend/internal/catalog/upsert"
	"catalogsync-backend/internal/chrono"
	"catalogsync-backend/internal/config"
	"catalogsync-backend/internal/media/freeimage"
	"catalogsync-backend/internal/report"
	"catalogsync-backend/internal/sink"
	"catalogsync-backend/internal/sink/gsheets"
	"catalogsync-backend/internal/sink/xlsx"
	"catalogsync-backend/internal/source/winediscovery"
	"catalogsync-backend/internal/telemetry"
	libtelemetry "catalogsync-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

type overrides struct {
	dryRun        bool
	maxProducts   int
	refreshImages bool
}

func (o overrides) apply(c *config.Config) {
	if o.dryRun {
		c.Sink.Kind = config.SinkMemory
		c.State.Backend = config.StateMemory
	}
	if o.maxProducts > 0 {
		c.Pipeline.MaxProducts = o.maxProducts
	}
	if o.refreshImages {
		c.Pipeline.RefreshImages = true
	}
}

// loadConfig reads the config file, a telemetry block in it takes over
// from telemetry.json5.
func loadConfig(ctx context.Context, o overrides) (config.Config, error) {
	c, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	o.apply(&c)

	if c.Telemetry.Enabled() {
		err = libtelemetry.Setup(ctx, "catalogsync", c.Telemetry)
		if err != nil {
			slog.Warn("failed to setup telemetry from config", "err", err)
		}
	}
	return c, nil
}

func openStore(ctx context.Context, c config.StateConfig) (state.Store, error) {
	switch c.Backend {
	case config.StateSQLite:
		return state.OpenSQLite(ctx, c.SQLite)
	case config.StateRedis:
		return state.NewRedis(ctx, c.Redis)
	case config.StateMemory:
		return state.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown state backend '%s'", c.Backend)
}

func openTable(c config.SinkConfig) (sink.Table, error) {
	switch c.Kind {
	case config.SinkXlsx:
		return xlsx.NewTable(c.Xlsx.Path, c.Xlsx.Sheet), nil
	case config.SinkGsheets:
		return gsheets.NewTable(c.Gsheets)
	case config.SinkMemory:
		return sink.NewMemoryTable(), nil
	}
	return nil, fmt.Errorf("unknown sink kind '%s'", c.Kind)
}

func newOracles(c config.LLMConfig) (oracle.TextOracle, oracle.ValueOracle) {
	opts := oracle.LLMOptions{
		Timeout:           c.Timeout(),
		RequestsPerMinute: c.RequestsPerMinute,
	}
	switch c.Provider {
	case config.LLMAnthropic:
		llm := oracle.NewLLM(oracle.NewAnthropicCompleter(c.ApiKey, c.Model), opts)
		return llm, llm
	case config.LLMOpenAI:
		client := resty.New()
		libtelemetry.InstrumentResty(client, "catalogsync.internal.catalog.oracle/http")
		llm := oracle.NewLLM(oracle.NewOpenAICompleter(client, c.BaseURL, c.ApiKey, c.Model), opts)
		return llm, llm
	}
	if c.DisableReadability {
		return oracle.Noop{}, oracle.Noop{}
	}
	return oracle.Readability{}, oracle.Noop{}
}

// app holds every component of a run, it is built once per process and can
// run the pipeline any number of times.
type app struct {
	config   config.Config
	store    state.Store
	upserter *sink.Upserter
	runner   pipeline.Runner
	mailer   report.Mailer
}

func newApp(ctx context.Context, c config.Config) (*app, error) {
	tel := telemetry.SlogAPI{}

	store, err := openStore(ctx, c.State)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	table, err := openTable(c.Sink)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open sink: %w", err)
	}
	source, err := winediscovery.New(c.Source, tel)
	if err != nil {
		store.Close()
		return nil, err
	}

	upserter := sink.NewUpserter(table, c.Source.CategoryURL)

	var host upsert.ImageHost
	if c.Images.ApiKey != "" {
		host = freeimage.NewClient(c.Images)
	} else {
		slog.Warn("no image host api key configured, rows are written without hosted images")
	}

	textOracle, valueOracle := newOracles(c.LLM)
	engine := upsert.New(upsert.Options{
		Store:         store,
		Images:        imagecache.New(store, tel, imagecache.Options{}),
		Host:          host,
		Sink:          upserter,
		Tel:           tel,
		RefreshImages: c.Pipeline.RefreshImages,
	})
	runner := pipeline.NewRunner(pipeline.Options{
		Source:      source,
		Extractor:   extract.New(textOracle, tel),
		Normalizer:  normalize.New(valueOracle, tel),
		Engine:      engine,
		Time:        chrono.NewStandardTime(),
		Tel:         tel,
		Concurrency: c.Pipeline.MaxConcurrency,
		MaxProducts: c.Pipeline.MaxProducts,
	})

	return &app{
		config:   c,
		store:    store,
		upserter: upserter,
		runner:   runner,
		mailer:   report.NewMailer(c.Smtp),
	}, nil
}

// runOnce runs the pipeline, prints the summary to out and mails it when
// smtp is configured. The returned error is the run's own error.
func (a *app) runOnce(ctx context.Context, out io.Writer) (*catalog.Summary, error) {
	// the sink is re-read every run so edits made to the table in between
	// runs are picked up
	a.upserter.Reset()

	summary, err := a.runner.Run(ctx)
	if summary != nil {
		report.Render(out, summary)
		if a.config.Smtp.Enabled() {
			mailErr := a.mailer.Send(context.WithoutCancel(ctx), summary)
			if mailErr != nil {
				slog.Warn("failed to mail run summary", "err", mailErr)
			}
		}
	}
	return summary, err
}

func (a *app) Close() error {
	return a.store.Close()
}

// describeRunError turns a failed run into the message printed before
// exiting.
func describeRunError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "run cancelled"
	case catalog.IsRunFatal(err):
		kind, _ := catalog.KindOf(err)
		return fmt.Sprintf("run aborted (%s)", kind)
	}
	return "run failed"
}
