package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"catalogsync-backend/lib/sqliteutil"
	"catalogsync-backend/lib/telemetry"
)

type DBParams struct {
	Name string
	// if unspecified, it will skip applying a schema
	Schema string
	// if true the database lives in a file under t.TempDir() instead of
	// `:memory:`, so it can be reopened
	OnDisk bool
}

type DBResult struct {
	DB   *sql.DB
	Path string
}

// SetupDB opens a sqlite database for a test, it is closed when the test
// finishes.
func SetupDB(t testing.TB, params DBParams) DBResult {
	t.Helper()
	t.Cleanup(telemetry.SetupForTesting("test:" + params.Name))

	path := ":memory:"
	if params.OnDisk {
		path = filepath.Join(t.TempDir(), params.Name+".db")
	}
	db, err := sqliteutil.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if params.Schema != "" {
		err = sqliteutil.ApplySchema(context.Background(), db, params.Schema)
		if err != nil {
			t.Fatal(err)
		}
	}
	return DBResult{DB: db, Path: path}
}
