// Package state persists what previous runs have seen: one record per
// product key and one hosting result per image hash.
package state

import (
	"context"

	"catalogsync-backend/internal/catalog"
)

// Store is a durable key-value record of products and images. Implementations
// must be safe for concurrent use, reads of missing keys return nil without
// an error.
type Store interface {
	GetState(ctx context.Context, key catalog.ProductKey) (*catalog.StateRecord, error)
	// PutState writes the whole record or nothing.
	PutState(ctx context.Context, record catalog.StateRecord) error
	GetImageCache(ctx context.Context, sha256 string) (*catalog.ImageCacheEntry, error)
	// PutImageCache overwrites any entry with the same hash.
	PutImageCache(ctx context.Context, entry catalog.ImageCacheEntry) error
	Close() error
}
