package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/lib/sqliteutil"
)

//go:embed schema.sql
var Schema string

// SQLite stores state in a sqlite (or libsql) database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite applies the schema to db and wraps it.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	err := sqliteutil.ApplySchema(ctx, db, Schema)
	if err != nil {
		return nil, fmt.Errorf("apply state schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// OpenSQLite opens the database described by config and applies the schema.
func OpenSQLite(ctx context.Context, config sqliteutil.Config) (*SQLite, error) {
	db, err := config.OpenDB()
	if err != nil {
		return nil, err
	}
	store, err := NewSQLite(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLite) GetState(ctx context.Context, key catalog.ProductKey) (*catalog.StateRecord, error) {
	var fingerprint string
	var lastSeen int64
	err := s.db.QueryRowContext(
		ctx,
		"select fingerprint, last_seen from product_state where key = ? and derived = ?",
		key.ID, boolToInt(key.Derived),
	).Scan(&fingerprint, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &catalog.StateRecord{
		Key:         key,
		Fingerprint: catalog.Fingerprint(fingerprint),
		LastSeen:    time.UnixMicro(lastSeen).UTC(),
	}, nil
}

func (s *SQLite) PutState(ctx context.Context, record catalog.StateRecord) error {
	_, err := s.db.ExecContext(
		ctx,
		`insert into product_state (key, derived, fingerprint, last_seen) values (?, ?, ?, ?)
		on conflict (key, derived) do update set
			fingerprint = excluded.fingerprint,
			last_seen = excluded.last_seen`,
		record.Key.ID,
		boolToInt(record.Key.Derived),
		string(record.Fingerprint),
		record.LastSeen.UnixMicro(),
	)
	return err
}

func (s *SQLite) GetImageCache(ctx context.Context, sha256 string) (*catalog.ImageCacheEntry, error) {
	entry := catalog.ImageCacheEntry{SHA256: sha256}
	err := s.db.QueryRowContext(
		ctx,
		"select direct_url, viewer_url, thumb_url from image_cache where sha256 = ?",
		sha256,
	).Scan(&entry.DirectURL, &entry.ViewerURL, &entry.ThumbURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *SQLite) PutImageCache(ctx context.Context, entry catalog.ImageCacheEntry) error {
	_, err := s.db.ExecContext(
		ctx,
		`insert into image_cache (sha256, direct_url, viewer_url, thumb_url) values (?, ?, ?, ?)
		on conflict (sha256) do update set
			direct_url = excluded.direct_url,
			viewer_url = excluded.viewer_url,
			thumb_url = excluded.thumb_url`,
		entry.SHA256, entry.DirectURL, entry.ViewerURL, entry.ThumbURL,
	)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
