// Package db is the local cache of authors and their blog entries.
package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mithrel/whtreader/pkg/api"
)

// Store is the sqlite-backed cache. Every composite write runs in a single
// transaction so readers never see it half applied.
type Store struct {
	db *sql.DB
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// persistErr wraps a driver error in the persistence taxonomy. Not-found is
// passed through untouched.
func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, api.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", api.ErrPersistence, op, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type scanner interface {
	Scan(dest ...any) error
}
