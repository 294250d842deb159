package imagecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/internal/catalog/state"
	"catalogsync-backend/internal/telemetry"

	"github.com/stretchr/testify/require"
)

func hosted(sha, name string) catalog.ImageCacheEntry {
	return catalog.ImageCacheEntry{
		SHA256:    sha,
		DirectURL: "https://iili.io/" + name + ".jpg",
		ViewerURL: "https://freeimage.host/i/" + name,
		ThumbURL:  "https://iili.io/" + name + ".th.jpg",
	}
}

func TestLookupAndRecord(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	gateway := New(store, telemetry.NewRecorder(), Options{})

	entry, err := gateway.Lookup(ctx, "aa")
	require.NoError(t, err)
	require.Nil(t, entry)

	require.NoError(t, gateway.Record(ctx, hosted("aa", "first")))
	require.NoError(t, gateway.Record(ctx, hosted("aa", "second")))

	entry, err = gateway.Lookup(ctx, "aa")
	require.NoError(t, err)
	require.Equal(t, hosted("aa", "second"), *entry)

	stored, err := store.GetImageCache(ctx, "aa")
	require.NoError(t, err)
	require.Equal(t, hosted("aa", "second"), *stored)

	_, images := store.Len()
	require.Equal(t, 1, images)

	require.ErrorIs(t, gateway.Record(ctx, catalog.ImageCacheEntry{}), ErrEmptyHash)
	_, err = gateway.Lookup(ctx, "")
	require.ErrorIs(t, err, ErrEmptyHash)
}

func TestLookupReadsThroughToStore(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	require.NoError(t, store.PutImageCache(ctx, hosted("bb", "stored")))

	gateway := New(store, telemetry.NewRecorder(), Options{HotSize: 1, HotTTL: time.Minute})
	entry, err := gateway.Lookup(ctx, "bb")
	require.NoError(t, err)
	require.Equal(t, hosted("bb", "stored"), *entry)
}

func TestResolveUploadsOnce(t *testing.T) {
	ctx := context.Background()
	gateway := New(state.NewMemory(), telemetry.NewRecorder(), Options{})

	var uploads atomic.Int32
	release := make(chan struct{})
	upload := func(context.Context) (catalog.ImageCacheEntry, error) {
		uploads.Add(1)
		<-release
		return hosted("", "shared"), nil
	}

	var wg sync.WaitGroup
	results := make(chan catalog.ImageCacheEntry, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, _, err := gateway.Resolve(ctx, "cc", upload)
			require.NoError(t, err)
			results <- entry
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for entry := range results {
		require.Equal(t, hosted("cc", "shared"), entry)
	}

	entry, uploaded, err := gateway.Resolve(ctx, "cc", upload)
	require.NoError(t, err)
	require.False(t, uploaded)
	require.Equal(t, "https://iili.io/shared.jpg", entry.DirectURL)
	require.Equal(t, int32(1), uploads.Load())
}

func TestResolveUploadFailure(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	tel := telemetry.NewRecorder()
	gateway := New(store, tel, Options{})

	_, _, err := gateway.Resolve(ctx, "dd", func(context.Context) (catalog.ImageCacheEntry, error) {
		return catalog.ImageCacheEntry{}, errors.New("413 payload too large")
	})
	require.Error(t, err)
	kind, ok := catalog.KindOf(err)
	require.True(t, ok)
	require.Equal(t, catalog.KindImageFailure, kind)
	require.Len(t, tel.Reports("warning", report_upload), 1)

	_, images := store.Len()
	require.Equal(t, 0, images)
}

func TestResolveTrustsFreshUpload(t *testing.T) {
	ctx := context.Background()
	tel := telemetry.NewRecorder()
	gateway := New(state.NewMemory(), tel, Options{})

	entry, uploaded, err := gateway.Resolve(ctx, "ee", func(context.Context) (catalog.ImageCacheEntry, error) {
		return hosted("ff", "mislabeled"), nil
	})
	require.NoError(t, err)
	require.True(t, uploaded)
	require.Equal(t, "ee", entry.SHA256)
	require.Len(t, tel.Reports("warning", report_inconsistency), 1)
}

func TestOverwrite(t *testing.T) {
	ctx := context.Background()
	tel := telemetry.NewRecorder()
	gateway := New(state.NewMemory(), tel, Options{})

	require.NoError(t, gateway.Record(ctx, hosted("gg", "stale")))
	require.NoError(t, gateway.Overwrite(ctx, hosted("gg", "stale")))
	require.Empty(t, tel.Reports("warning", report_inconsistency))

	require.NoError(t, gateway.Overwrite(ctx, hosted("gg", "fresh")))
	require.Len(t, tel.Reports("warning", report_inconsistency), 1)

	entry, err := gateway.Lookup(ctx, "gg")
	require.NoError(t, err)
	require.Equal(t, hosted("gg", "fresh"), *entry)
}

type failingStore struct {
	state.Store
}

func (failingStore) GetImageCache(context.Context, string) (*catalog.ImageCacheEntry, error) {
	return nil, errors.New("connection refused")
}

func TestLookupStoreFailureIsRunFatal(t *testing.T) {
	gateway := New(failingStore{}, telemetry.NewRecorder(), Options{})
	_, _, err := gateway.Resolve(context.Background(), "hh", func(context.Context) (catalog.ImageCacheEntry, error) {
		t.Fatal("upload must not be attempted")
		return catalog.ImageCacheEntry{}, nil
	})
	require.True(t, catalog.IsRunFatal(err))
}
