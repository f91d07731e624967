package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/mithrel/whtreader/internal/db/migrations"
	"github.com/mithrel/whtreader/pkg/api"
)

// Open connects to the sqlite database at path (optionally prefixed with
// sqlite://), creating it if needed, and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty database path", api.ErrPersistence)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, persistErr("create data dir", err)
	}

	dbh, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, persistErr("open", err)
	}
	if err := dbh.PingContext(ctx); err != nil {
		_ = dbh.Close()
		return nil, persistErr("open", err)
	}
	if err := migrate(ctx, dbh); err != nil {
		_ = dbh.Close()
		return nil, persistErr("migrate", err)
	}
	return &Store{db: dbh}, nil
}

// dsn sets pragmas per connection: WAL so readers do not block the writer,
// a busy timeout for concurrent resyncs, and immediate write transactions
// so lock upgrades cannot deadlock.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}
