package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mithrel/whtreader/pkg/api"
)

const entryColumns = `id, author_id, title, created_at, content, html, visibility`

// ReplaceAllEntries swaps the cached entry set of authorID for entries in a
// single transaction: afterwards exactly entries are cached for the author.
func (s *Store) ReplaceAllEntries(ctx context.Context, authorID string, entries []api.Entry) error {
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%w: entry without id", api.ErrPersistence)
		}
		if e.AuthorID != authorID {
			return fmt.Errorf("%w: entry %s belongs to %q, not %q", api.ErrPersistence, e.ID, e.AuthorID, authorID)
		}
	}
	err := withTx(ctx, s.db, func(tx dbtx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE author_id=?`, authorID); err != nil {
			return err
		}
		for _, e := range entries {
			_, err := tx.ExecContext(ctx, `INSERT INTO entries(`+entryColumns+`) VALUES(?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET author_id=excluded.author_id, title=excluded.title, created_at=excluded.created_at,
  content=excluded.content, html=excluded.html, visibility=excluded.visibility`,
				e.ID, e.AuthorID, nullString(e.Title), nullTime(e.CreatedAt), nullString(e.Content), nullString(e.HTML), nullString(e.Visibility))
			if err != nil {
				return fmt.Errorf("insert %s: %w", e.ID, err)
			}
		}
		return nil
	})
	return persistErr("replace entries", err)
}

// ListEntries returns authorID's entries newest first; entries without a
// creation time come last. A non-empty visibility keeps only matching
// entries, where an absent visibility counts as public.
func (s *Store) ListEntries(ctx context.Context, authorID, visibility string) ([]api.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM entries WHERE author_id=?`
	args := []any{authorID}
	if visibility != "" {
		q += ` AND COALESCE(NULLIF(visibility, ''), ?) = ?`
		args = append(args, api.DefaultVisibility, visibility)
	}
	q += ` ORDER BY created_at DESC NULLS LAST, id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, persistErr("list entries", err)
	}
	defer rows.Close()

	var out []api.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, persistErr("list entries", err)
		}
		out = append(out, e)
	}
	return out, persistErr("list entries", rows.Err())
}

// GetEntry returns the cached entry with id.
func (s *Store) GetEntry(ctx context.Context, id string) (api.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id=?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Entry{}, fmt.Errorf("entry %s: %w", id, api.ErrNotFound)
	}
	return e, persistErr("get entry", err)
}

func scanEntry(sc scanner) (api.Entry, error) {
	var (
		e                                api.Entry
		title, content, html, visibility sql.NullString
		createdAt                        sql.NullTime
	)
	if err := sc.Scan(&e.ID, &e.AuthorID, &title, &createdAt, &content, &html, &visibility); err != nil {
		return api.Entry{}, err
	}
	e.Title = title.String
	e.Content = content.String
	e.HTML = html.String
	e.Visibility = visibility.String
	if createdAt.Valid {
		e.CreatedAt = createdAt.Time.UTC()
	}
	return e, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
