// Package upsert decides, per product, whether the sink needs to hear about
// it and commits what it wrote to the state store.
package upsert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/internal/catalog/imagecache"
	"catalogsync-backend/internal/catalog/state"
	"catalogsync-backend/internal/chrono"
	"catalogsync-backend/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("catalogsync.internal.catalog.upsert")

const (
	report_sink  = "upsert_engine.sink-write"
	report_image = "upsert_engine.image"
	report_state = "upsert_engine.state"
)

// Sink receives one finished row per product, a row is written entirely or
// not at all.
type Sink interface {
	Upsert(ctx context.Context, record catalog.FinalRecord) error
}

// ImageHost downloads original images and hosts them elsewhere.
type ImageHost interface {
	Download(ctx context.Context, imageURL string) ([]byte, error)
	UploadBytes(ctx context.Context, data []byte, filename string) (catalog.ImageCacheEntry, error)
}

// Decide compares a product's fingerprint with what the previous run
// committed for the same key.
func Decide(prior *catalog.StateRecord, fingerprint catalog.Fingerprint) catalog.Decision {
	switch {
	case prior == nil:
		return catalog.DecisionInsert
	case prior.Fingerprint != fingerprint:
		return catalog.DecisionUpdate
	default:
		return catalog.DecisionSkip
	}
}

type Options struct {
	Store  state.Store
	Images *imagecache.Gateway
	// Host may be nil, products are then written without hosted images.
	Host ImageHost
	Sink Sink
	Time chrono.TimeAPI
	Tel  telemetry.API
	// RefreshImages uploads every image again and overwrites the cached
	// entry instead of trusting it.
	RefreshImages bool
}

type Engine struct {
	store         state.Store
	images        *imagecache.Gateway
	host          ImageHost
	sink          Sink
	time          chrono.TimeAPI
	tel           telemetry.API
	locks         *state.KeyLocks
	refreshImages bool
}

func New(opts Options) *Engine {
	if opts.Time == nil {
		opts.Time = chrono.NewStandardTime()
	}
	if opts.Images == nil {
		opts.Images = imagecache.New(opts.Store, opts.Tel, imagecache.Options{})
	}
	return &Engine{
		store:         opts.Store,
		images:        opts.Images,
		host:          opts.Host,
		sink:          opts.Sink,
		time:          opts.Time,
		tel:           opts.Tel,
		locks:         state.NewKeyLocks(),
		refreshImages: opts.RefreshImages,
	}
}

func lockKey(key catalog.ProductKey) string {
	if key.Derived {
		return "url:" + key.ID
	}
	return "sku:" + key.ID
}

// Apply runs the read-decide-write sequence of a single product, the
// sequence never interleaves with another Apply of the same key.
//
// A non-nil error always comes with OutcomeError, catalog.IsRunFatal tells
// whether the run should stop.
func (e *Engine) Apply(ctx context.Context, product catalog.Product) (catalog.Outcome, error) {
	ctx, span := tracer.Start(ctx, "Apply")
	defer span.End()

	sourceURL := product.Record.SourceURL
	span.SetAttributes(
		attribute.String("key", product.Key.ID),
		attribute.Bool("derived", product.Key.Derived),
		attribute.String("source_url", sourceURL),
	)

	outcome, err := e.apply(ctx, product)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert product")
	}
	return outcome, err
}

func (e *Engine) apply(ctx context.Context, product catalog.Product) (catalog.Outcome, error) {
	sourceURL := product.Record.SourceURL

	unlock := e.locks.Lock(lockKey(product.Key))
	defer unlock()

	prior, err := e.store.GetState(ctx, product.Key)
	if err != nil {
		if ctx.Err() != nil {
			return catalog.OutcomeError, ctx.Err()
		}
		e.tel.ReportBroken(report_state, err, product.Key.ID)
		return catalog.OutcomeError, catalog.NewError(catalog.KindStateFailure, sourceURL, err)
	}

	decision := Decide(prior, product.Fingerprint)
	if decision == catalog.DecisionSkip {
		return catalog.OutcomeSkipped, nil
	}

	now := e.time.Now()
	row := catalog.FinalRecord{
		Product:   product,
		Status:    catalog.RowStatusOK,
		Timestamp: now,
	}

	var imageErr error
	if product.Record.ImageOriginalURL != nil {
		entry, err := e.hostImage(ctx, *product.Record.ImageOriginalURL)
		switch {
		case catalog.IsRunFatal(err):
			return catalog.OutcomeError, err
		case err != nil:
			imageErr = catalog.NewError(catalog.KindImageFailure, sourceURL, err)
			e.tel.ReportWarning(report_image, imageErr)
			row.Status = catalog.RowStatusError
			row.ErrorMsg = err.Error()
		default:
			row.Image = entry
		}
	}

	err = e.sink.Upsert(ctx, row)
	if err != nil {
		if ctx.Err() != nil {
			return catalog.OutcomeError, ctx.Err()
		}
		e.tel.ReportWarning(report_sink, sourceURL, err)
		return catalog.OutcomeError, catalog.NewError(catalog.KindSinkWriteFailure, sourceURL, err)
	}
	if imageErr != nil {
		return catalog.OutcomeError, imageErr
	}

	// the row is written, a cancelled run still commits it
	err = e.store.PutState(context.WithoutCancel(ctx), catalog.StateRecord{
		Key:         product.Key,
		Fingerprint: product.Fingerprint,
		LastSeen:    now,
	})
	if err != nil {
		e.tel.ReportBroken(report_state, err, product.Key.ID)
		return catalog.OutcomeError, catalog.NewError(catalog.KindStateFailure, sourceURL, err)
	}

	if decision == catalog.DecisionInsert {
		return catalog.OutcomeInserted, nil
	}
	return catalog.OutcomeUpdated, nil
}

func (e *Engine) hostImage(ctx context.Context, imageURL string) (*catalog.ImageCacheEntry, error) {
	if e.host == nil {
		return nil, nil
	}

	data, err := e.host.Download(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	upload := func(ctx context.Context) (catalog.ImageCacheEntry, error) {
		entry, err := e.host.UploadBytes(ctx, data, imageFilename(imageURL))
		if err != nil {
			return catalog.ImageCacheEntry{}, fmt.Errorf("upload image: %w", err)
		}
		return entry, nil
	}

	if e.refreshImages {
		entry, err := upload(ctx)
		if err != nil {
			return nil, err
		}
		entry.SHA256 = hash
		err = e.images.Overwrite(ctx, entry)
		if err != nil {
			return nil, err
		}
		return &entry, nil
	}

	entry, _, err := e.images.Resolve(ctx, hash, upload)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func imageFilename(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return "image.jpg"
	}
	return path.Base(u.Path)
}
