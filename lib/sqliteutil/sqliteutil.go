package sqliteutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config selects between a local sqlite file and a remote libsql server.
// Url takes precedence when both are set.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Config) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		return openRemote(config.Url, config.AuthToken)
	}
	if config.File == "" {
		return nil, fmt.Errorf("neither a database file nor url was specified")
	}
	return OpenFile(config.File)
}

// OpenFile opens (creating if necessary) a local sqlite database, ":memory:"
// is accepted as well.
func OpenFile(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0755)
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, err
	}
	_, err = db.Exec("PRAGMA busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openRemote(rawUrl, authToken string) (*sql.DB, error) {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return nil, err
	}
	if authToken != "" {
		values := u.Query()
		values.Set("authToken", authToken)
		u.RawQuery = values.Encode()
	}
	return sql.Open("libsql", u.String())
}

// ApplySchema runs a schema script one statement at a time, libsql servers
// reject multi-statement execs. Every statement must be idempotent
// (CREATE ... IF NOT EXISTS).
func ApplySchema(ctx context.Context, db *sql.DB, schema string) error {
	for _, statement := range strings.Split(schema, ";") {
		statement = strings.TrimSpace(statement)
		if statement == "" {
			continue
		}
		_, err := db.ExecContext(ctx, statement)
		if err != nil {
			return err
		}
	}
	return nil
}
