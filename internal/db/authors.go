package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mithrel/whtreader/pkg/api"
)

const authorColumns = `id, display_name, handle, avatar, is_favorite`

// Authors come back ordered by display name (case-insensitive), absent names
// first, ties broken by id.
const authorOrder = ` ORDER BY display_name COLLATE NOCASE ASC, id ASC`

// UpsertAuthor inserts a or replaces the cached profile with the same id.
// The favorite flag of an existing row is kept. created reports whether the
// row did not exist before.
func (s *Store) UpsertAuthor(ctx context.Context, a api.Author) (created bool, err error) {
	if strings.TrimSpace(a.ID) == "" {
		return false, fmt.Errorf("%w: author without id", api.ErrPersistence)
	}
	err = withTx(ctx, s.db, func(tx dbtx) error {
		var err error
		created, err = upsertAuthorTx(ctx, tx, a)
		return err
	})
	return created, persistErr("upsert author", err)
}

// UpdateAuthors rewrites the profile fields of authors that are still
// cached, in one transaction. Authors deleted in the meantime are skipped.
// It returns the number of rows updated.
func (s *Store) UpdateAuthors(ctx context.Context, authors []api.Author) (int, error) {
	var updated int
	err := withTx(ctx, s.db, func(tx dbtx) error {
		for _, a := range authors {
			res, err := tx.ExecContext(ctx, `UPDATE authors SET display_name=?, handle=?, avatar=? WHERE id=?`,
				nullString(a.DisplayName), nullString(a.Handle), a.Avatar, a.ID)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, persistErr("update authors", err)
	}
	return updated, nil
}

func upsertAuthorTx(ctx context.Context, tx dbtx, a api.Author) (bool, error) {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM authors WHERE id=?`, a.ID).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO authors(id, display_name, handle, avatar, is_favorite) VALUES(?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, handle=excluded.handle, avatar=excluded.avatar`,
		a.ID, nullString(a.DisplayName), nullString(a.Handle), a.Avatar, a.IsFavorite)
	if err != nil {
		return false, err
	}
	return exists == 0, nil
}

// GetAuthor returns the cached author with id.
func (s *Store) GetAuthor(ctx context.Context, id string) (api.Author, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+authorColumns+` FROM authors WHERE id=?`, id)
	a, err := scanAuthor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Author{}, fmt.Errorf("author %s: %w", id, api.ErrNotFound)
	}
	return a, persistErr("get author", err)
}

// FindAuthor returns the cached author whose handle matches, ignoring case.
func (s *Store) FindAuthor(ctx context.Context, handle string) (api.Author, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+authorColumns+` FROM authors WHERE handle=? COLLATE NOCASE LIMIT 1`, handle)
	a, err := scanAuthor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Author{}, fmt.Errorf("author @%s: %w", handle, api.ErrNotFound)
	}
	return a, persistErr("find author", err)
}

// ListAuthors returns every cached author by display name.
func (s *Store) ListAuthors(ctx context.Context) ([]api.Author, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+authorColumns+` FROM authors`+authorOrder)
	if err != nil {
		return nil, persistErr("list authors", err)
	}
	defer rows.Close()

	var out []api.Author
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, persistErr("list authors", err)
		}
		out = append(out, a)
	}
	return out, persistErr("list authors", rows.Err())
}

// SetFavorite flags or unflags an author.
func (s *Store) SetFavorite(ctx context.Context, id string, favorite bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE authors SET is_favorite=? WHERE id=?`, favorite, id)
	if err != nil {
		return persistErr("set favorite", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("author %s: %w", id, api.ErrNotFound)
	}
	return nil
}

// DeleteAuthor removes an author and all of their entries. It returns the
// number of entries removed.
func (s *Store) DeleteAuthor(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := withTx(ctx, s.db, func(tx dbtx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE author_id=?`, id)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, `DELETE FROM authors WHERE id=?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("author %s: %w", id, api.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return 0, persistErr("delete author", err)
	}
	return removed, nil
}

func scanAuthor(sc scanner) (api.Author, error) {
	var (
		a           api.Author
		displayName sql.NullString
		handle      sql.NullString
	)
	if err := sc.Scan(&a.ID, &displayName, &handle, &a.Avatar, &a.IsFavorite); err != nil {
		return api.Author{}, err
	}
	a.DisplayName = displayName.String
	a.Handle = handle.String
	return a, nil
}
