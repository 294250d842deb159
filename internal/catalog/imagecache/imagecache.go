// Package imagecache is the only path through which hosted image results
// are read and written. Entries are keyed by the sha256 of the image bytes,
// so one image shared by many products is hosted once.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/internal/catalog/state"
	"catalogsync-backend/internal/telemetry"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("catalogsync.internal.catalog.imagecache")

const (
	report_inconsistency = "image_cache.inconsistency"
	report_upload        = "image_cache.upload"
)

var ErrEmptyHash = errors.New("image hash is empty")

// Upload hosts the image whose hash is being resolved.
type Upload func(ctx context.Context) (catalog.ImageCacheEntry, error)

type Options struct {
	// HotSize is the number of entries kept in memory in front of the store,
	// defaults to 4096.
	HotSize int
	// HotTTL defaults to an hour.
	HotTTL time.Duration
}

type Gateway struct {
	store state.Store
	tel   telemetry.API
	hot   *expirable.LRU[string, catalog.ImageCacheEntry]
	group singleflight.Group
}

func New(store state.Store, tel telemetry.API, opts Options) *Gateway {
	if opts.HotSize <= 0 {
		opts.HotSize = 4096
	}
	if opts.HotTTL <= 0 {
		opts.HotTTL = time.Hour
	}
	return &Gateway{
		store: store,
		tel:   tel,
		hot:   expirable.NewLRU[string, catalog.ImageCacheEntry](opts.HotSize, nil, opts.HotTTL),
	}
}

// Lookup returns the hosted result for sha256 or nil when the image has not
// been hosted yet.
func (g *Gateway) Lookup(ctx context.Context, sha256 string) (*catalog.ImageCacheEntry, error) {
	if sha256 == "" {
		return nil, ErrEmptyHash
	}
	cached, hit := g.hot.Get(sha256)
	if hit {
		return &cached, nil
	}

	entry, err := g.store.GetImageCache(ctx, sha256)
	if err != nil {
		return nil, catalog.NewError(catalog.KindStateFailure, "", fmt.Errorf("get image cache: %w", err))
	}
	if entry != nil {
		g.hot.Add(sha256, *entry)
	}
	return entry, nil
}

// Record persists a hosting result. Recording the same hash twice is not an
// error, the last write wins.
func (g *Gateway) Record(ctx context.Context, entry catalog.ImageCacheEntry) error {
	if entry.SHA256 == "" {
		return ErrEmptyHash
	}
	err := g.store.PutImageCache(ctx, entry)
	if err != nil {
		return catalog.NewError(catalog.KindStateFailure, "", fmt.Errorf("put image cache: %w", err))
	}
	g.hot.Add(entry.SHA256, entry)
	return nil
}

type resolved struct {
	entry    catalog.ImageCacheEntry
	uploaded bool
}

// Resolve returns the cached entry for sha256, calling upload only when
// there is none. Concurrent calls for the same hash share one upload, the
// later callers get the first caller's entry.
func (g *Gateway) Resolve(ctx context.Context, sha256 string, upload Upload) (entry catalog.ImageCacheEntry, uploaded bool, err error) {
	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("sha256", sha256))

	value, err, _ := g.group.Do(sha256, func() (any, error) {
		cached, err := g.Lookup(ctx, sha256)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return resolved{entry: *cached}, nil
		}

		fresh, err := upload(ctx)
		if err != nil {
			g.tel.ReportWarning(report_upload, sha256, err)
			return nil, catalog.NewError(catalog.KindImageFailure, "", err)
		}
		fresh = g.reconcile(sha256, fresh)

		err = g.Record(ctx, fresh)
		if err != nil {
			return nil, err
		}
		return resolved{entry: fresh, uploaded: true}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve image")
		return catalog.ImageCacheEntry{}, false, err
	}

	result := value.(resolved)
	span.SetAttributes(attribute.Bool("uploaded", result.uploaded))
	return result.entry, result.uploaded, nil
}

// reconcile trusts the fresh upload over whatever hash it claims to be for.
func (g *Gateway) reconcile(sha256 string, fresh catalog.ImageCacheEntry) catalog.ImageCacheEntry {
	if fresh.SHA256 != "" && fresh.SHA256 != sha256 {
		g.tel.ReportWarning(
			report_inconsistency,
			catalog.NewError(
				catalog.KindCacheInconsistency, "",
				fmt.Errorf("upload reported hash %s for image %s", fresh.SHA256, sha256),
			),
		)
	}
	fresh.SHA256 = sha256
	return fresh
}

// Overwrite replaces an existing entry with a fresh upload for the same
// content, used when a cached entry turns out to be stale.
func (g *Gateway) Overwrite(ctx context.Context, fresh catalog.ImageCacheEntry) error {
	prior, err := g.Lookup(ctx, fresh.SHA256)
	if err != nil {
		return err
	}
	if prior != nil && *prior != fresh {
		g.tel.ReportWarning(
			report_inconsistency,
			catalog.NewError(
				catalog.KindCacheInconsistency, "",
				fmt.Errorf("cached entry for %s disagrees with fresh upload", fresh.SHA256),
			),
			prior.DirectURL, fresh.DirectURL,
		)
	}
	return g.Record(ctx, fresh)
}
