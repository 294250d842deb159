// Package pipeline runs every discovered product through extraction,
// normalization, identity and upsert on a bounded pool of workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/internal/catalog/extract"
	"catalogsync-backend/internal/catalog/identity"
	"catalogsync-backend/internal/catalog/normalize"
	"catalogsync-backend/internal/catalog/upsert"
	"catalogsync-backend/internal/chrono"
	"catalogsync-backend/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("catalogsync.internal.catalog.pipeline")
var meter = otel.Meter("catalogsync.internal.catalog.pipeline")

var productsCounter, _ = meter.Int64Counter(
	"catalogsync.products",
	metric.WithDescription("products processed, by outcome"),
)

const (
	report_fetch    = "pipeline.fetch"
	report_product  = "pipeline.product"
	report_outcomes = "pipeline.outcomes"
)

// Link is a product page found while discovering the catalog.
type Link struct {
	URL     string
	PageNum int
}

// Page is a fetched product page, SourceURL is absolute.
type Page struct {
	Content   []byte
	PageNum   int
	SourceURL string
}

// Source discovers product pages and fetches them.
type Source interface {
	// Discover calls yield once per product link, it stops at the first
	// error returned by yield.
	Discover(ctx context.Context, yield func(Link) error) error
	Fetch(ctx context.Context, link Link) (Page, error)
}

type Options struct {
	Source     Source
	Extractor  extract.Extractor
	Normalizer normalize.Normalizer
	Engine     *upsert.Engine
	Time       chrono.TimeAPI
	Tel        telemetry.API
	// Concurrency is the number of products processed at once, defaults to 1.
	Concurrency int
	// MaxProducts stops discovery after that many products, 0 means no limit.
	MaxProducts int
}

type Runner struct {
	opts Options
}

func NewRunner(opts Options) Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Time == nil {
		opts.Time = chrono.NewStandardTime()
	}
	return Runner{opts: opts}
}

var errLimitReached = errors.New("product limit reached")

// Run processes the whole catalog once. Product failures are recorded in the
// returned summary, an error is only returned when the run could not finish:
// discovery failed, a run-fatal failure happened or ctx was cancelled. The
// summary is returned in every case.
func (r Runner) Run(ctx context.Context) (*catalog.Summary, error) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID))

	summary := catalog.NewSummary(runID, r.opts.Time.Now())
	defer func() {
		summary.Finish(r.opts.Time.Now())
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.opts.Concurrency)

	seen := map[string]struct{}{}
	discoverErr := r.opts.Source.Discover(groupCtx, func(link Link) error {
		if err := groupCtx.Err(); err != nil {
			return err
		}
		if _, dup := seen[link.URL]; dup {
			return nil
		}
		if r.opts.MaxProducts > 0 && len(seen) >= r.opts.MaxProducts {
			return errLimitReached
		}
		seen[link.URL] = struct{}{}

		group.Go(func() error {
			return r.process(groupCtx, summary, link)
		})
		return nil
	})
	waitErr := group.Wait()

	r.reportOutcomes(summary)

	err := waitErr
	switch {
	case err != nil:
	case ctx.Err() != nil:
		err = ctx.Err()
	case discoverErr != nil && !errors.Is(discoverErr, errLimitReached):
		err = catalog.NewError(catalog.KindFetchFailure, "", fmt.Errorf("discover products: %w", discoverErr))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run did not finish")
	}
	return summary, err
}

// process only returns run-fatal errors.
func (r Runner) process(ctx context.Context, summary *catalog.Summary, link Link) error {
	if ctx.Err() != nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "process")
	defer span.End()
	span.SetAttributes(attribute.String("source_url", link.URL))

	product, err := r.prepare(ctx, link)
	if err != nil {
		if ctx.Err() != nil {
			// dropped, the next run picks it up again
			return nil
		}
		r.observe(ctx, summary, link.URL, "", catalog.OutcomeError, err)
		return nil
	}

	outcome, err := r.opts.Engine.Apply(ctx, product)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	r.observe(ctx, summary, link.URL, product.Key.ID, outcome, err)
	if catalog.IsRunFatal(err) {
		return err
	}
	return nil
}

// prepare runs the strictly sequential stages leading up to the upsert.
func (r Runner) prepare(ctx context.Context, link Link) (catalog.Product, error) {
	page, err := r.opts.Source.Fetch(ctx, link)
	if err != nil {
		r.opts.Tel.ReportWarning(report_fetch, link.URL, err)
		return catalog.Product{}, catalog.NewError(catalog.KindFetchFailure, link.URL, err)
	}

	raw := r.opts.Extractor.Extract(ctx, page.Content, page.PageNum, page.SourceURL)
	record, err := r.opts.Normalizer.Normalize(ctx, raw)
	if err != nil {
		return catalog.Product{}, err
	}

	fingerprint, err := identity.Fingerprint(record)
	if err != nil {
		return catalog.Product{}, catalog.NewError(catalog.KindIdentityFailure, link.URL, err)
	}
	return catalog.Product{
		Record:      record,
		Key:         identity.Resolve(record),
		Fingerprint: fingerprint,
	}, nil
}

func (r Runner) observe(ctx context.Context, summary *catalog.Summary, productURL, key string, outcome catalog.Outcome, err error) {
	summary.Observe(outcome, productURL, key, err)
	productsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
	if err != nil {
		r.opts.Tel.ReportWarning(report_product, productURL, err)
	}
}

func (r Runner) reportOutcomes(summary *catalog.Summary) {
	r.opts.Tel.ReportCount(report_outcomes+".inserted", int64(summary.Inserted()))
	r.opts.Tel.ReportCount(report_outcomes+".updated", int64(summary.Updated()))
	r.opts.Tel.ReportCount(report_outcomes+".skipped", int64(summary.Skipped()))
	r.opts.Tel.ReportCount(report_outcomes+".errors", int64(summary.Errors()))
}
