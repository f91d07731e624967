// Package sync keeps the local cache in step with the remote network: it
// onboards authors, resyncs their entries, refreshes profiles and deletes
// authors, publishing an event after each completed write.
package sync

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mithrel/whtreader/internal/atproto"
	"github.com/mithrel/whtreader/internal/identity"
	"github.com/mithrel/whtreader/internal/notify"
	"github.com/mithrel/whtreader/pkg/api"
)

const defaultRefreshConcurrency = 8

//go:embed placeholder.png
var placeholderAvatar []byte

// PlaceholderAvatar returns the image stored for authors without an avatar.
func PlaceholderAvatar() []byte { return bytes.Clone(placeholderAvatar) }

// Remote is the network side of a sync.
type Remote interface {
	GetProfile(ctx context.Context, id identity.Identity) (atproto.Profile, error)
	ListEntries(ctx context.Context, id identity.Identity) ([]atproto.RawEntry, error)
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Renderer turns entry markdown into the cached HTML.
type Renderer interface {
	Render(ctx context.Context, markup string, inlineImages bool) (string, error)
}

// Store is the local cache. Only Service writes to it.
type Store interface {
	UpsertAuthor(ctx context.Context, a api.Author) (bool, error)
	UpdateAuthors(ctx context.Context, authors []api.Author) (int, error)
	GetAuthor(ctx context.Context, id string) (api.Author, error)
	FindAuthor(ctx context.Context, handle string) (api.Author, error)
	ListAuthors(ctx context.Context) ([]api.Author, error)
	SetFavorite(ctx context.Context, id string, favorite bool) error
	DeleteAuthor(ctx context.Context, id string) (int64, error)
	ReplaceAllEntries(ctx context.Context, authorID string, entries []api.Entry) error
	ListEntries(ctx context.Context, authorID, visibility string) ([]api.Entry, error)
	GetEntry(ctx context.Context, id string) (api.Entry, error)
}

// Deps are the collaborators a Service is built from. Events and Logger are
// optional.
type Deps struct {
	Store    Store
	Remote   Remote
	Renderer Renderer
	Events   *notify.Broker
	Logger   *slog.Logger
}

type Service struct {
	cfg      *viper.Viper
	store    Store
	remote   Remote
	renderer Renderer
	events   *notify.Broker
	logger   *slog.Logger
	locks    *keyedMutex
	now      func() time.Time
}

// New creates a Service. Settings are read from cfg on every call:
// render.inline_images, entries.visibility, sync.refresh_concurrency and
// sync.refresh_partial.
func New(cfg *viper.Viper, deps Deps) *Service {
	if cfg == nil {
		cfg = viper.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		remote:   deps.Remote,
		renderer: deps.Renderer,
		events:   deps.Events,
		logger:   logger,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// Onboard looks up the author named by input and caches their profile. A
// newly cached author gets an immediate full entry sync. The author.added
// event is published once the profile is stored; a failed entry sync after
// that point is returned together with the stored author.
func (s *Service) Onboard(ctx context.Context, input string) (api.Author, error) {
	id, err := identity.Resolve(input)
	if err != nil {
		return api.Author{}, err
	}
	author, err := s.fetchAuthor(ctx, id)
	if err != nil {
		return api.Author{}, err
	}
	if err := ctx.Err(); err != nil {
		return api.Author{}, err
	}

	wctx := context.WithoutCancel(ctx)
	created, err := s.store.UpsertAuthor(wctx, author)
	if err != nil {
		return api.Author{}, err
	}
	if stored, err := s.store.GetAuthor(wctx, author.ID); err == nil {
		author = stored
	}
	s.logger.Info("author stored", "author", author.ID, "handle", author.Handle, "created", created)
	s.publish(api.EventAuthorAdded, author, 0)

	if !created {
		return author, nil
	}
	if _, err := s.ResyncEntries(ctx, author.ID); err != nil {
		return author, fmt.Errorf("initial entry sync for %s: %w", author.ID, err)
	}
	return author, nil
}

// ResyncEntries replaces the cached entries of a cached author with the full
// set currently in their repository. Nothing is written unless every page is
// fetched and every entry renders. Resyncs of the same author are serialized.
func (s *Service) ResyncEntries(ctx context.Context, authorID string) (SyncReport, error) {
	id, err := identity.Resolve(authorID)
	if err != nil {
		return SyncReport{}, err
	}
	if !id.IsDID() {
		return SyncReport{}, fmt.Errorf("%w: entry sync needs a did, got %q", api.ErrInvalidIdentifier, authorID)
	}
	did := id.String()

	unlock, err := s.locks.Lock(ctx, did)
	if err != nil {
		return SyncReport{}, err
	}
	defer unlock()

	if _, err := s.store.GetAuthor(ctx, did); err != nil {
		return SyncReport{}, err
	}

	started := s.now()
	raw, err := s.remote.ListEntries(ctx, id)
	if err != nil {
		return SyncReport{}, fmt.Errorf("fetch entries for %s: %w", did, err)
	}
	entries, err := s.renderEntries(ctx, did, raw)
	if err != nil {
		return SyncReport{}, err
	}
	if err := ctx.Err(); err != nil {
		return SyncReport{}, err
	}

	// From here on the write completes even if ctx is canceled.
	wctx := context.WithoutCancel(ctx)
	author, err := s.store.GetAuthor(wctx, did)
	if err != nil {
		return SyncReport{}, err
	}
	prev, err := s.store.ListEntries(wctx, did, "")
	if err != nil {
		return SyncReport{}, err
	}
	if err := s.store.ReplaceAllEntries(wctx, did, entries); err != nil {
		return SyncReport{}, err
	}

	report := diffEntries(prev, entries)
	s.logger.Info("entries synced", "author", did,
		"fetched", report.Fetched, "added", report.Added, "changed", report.Changed, "removed", report.Removed,
		"took", s.now().Sub(started))
	s.publish(api.EventEntriesSynced, author, len(entries))
	return report, nil
}

func (s *Service) renderEntries(ctx context.Context, did string, raw []atproto.RawEntry) ([]api.Entry, error) {
	inline := s.cfg.GetBool("render.inline_images")
	entries := make([]api.Entry, 0, len(raw))
	for _, r := range raw {
		html, err := s.renderer.Render(ctx, r.Content, inline)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", r.URI, err)
		}
		entries = append(entries, api.Entry{
			ID:         r.URI,
			AuthorID:   did,
			Title:      r.Title,
			CreatedAt:  r.CreatedAt,
			Content:    r.Content,
			HTML:       html,
			Visibility: r.Visibility,
		})
	}
	return entries, nil
}

// RefreshAll re-fetches every cached author's profile concurrently and then
// writes the results in one batch, returning the refreshed author list.
//
// By default one failed fetch fails the whole batch and nothing is written.
// With sync.refresh_partial set, successful fetches are written and the
// failures are reported in a *RefreshError alongside the list.
func (s *Service) RefreshAll(ctx context.Context) ([]api.Author, error) {
	authors, err := s.store.ListAuthors(ctx)
	if err != nil {
		return nil, err
	}
	if len(authors) == 0 {
		return authors, nil
	}

	partial := s.cfg.GetBool("sync.refresh_partial")
	limit := s.cfg.GetInt("sync.refresh_concurrency")
	if limit <= 0 {
		limit = defaultRefreshConcurrency
	}

	fresh := make([]*api.Author, len(authors))
	failures := make([]error, len(authors))

	g, gctx := errgroup.WithContext(ctx)
	if partial {
		// A failure must not cancel the other fetches.
		g, gctx = &errgroup.Group{}, ctx
	}
	g.SetLimit(limit)
	for i, a := range authors {
		g.Go(func() error {
			updated, err := s.refreshOne(gctx, a)
			if err != nil {
				failures[i] = err
				if partial {
					return nil
				}
				return fmt.Errorf("refresh %s: %w", a.ID, err)
			}
			fresh[i] = &updated
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("author refresh failed", "authors", len(authors), "err", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := make([]api.Author, 0, len(authors))
	var rerr RefreshError
	for i, a := range authors {
		if fresh[i] != nil {
			batch = append(batch, *fresh[i])
		} else if failures[i] != nil {
			rerr.Failures = append(rerr.Failures, AuthorFailure{Author: a, Err: failures[i]})
		}
	}

	wctx := context.WithoutCancel(ctx)
	updated := 0
	if len(batch) > 0 {
		if updated, err = s.store.UpdateAuthors(wctx, batch); err != nil {
			return nil, err
		}
	}
	s.logger.Info("authors refreshed", "updated", updated, "failed", len(rerr.Failures))
	s.publish(api.EventAuthorsRefreshed, api.Author{}, updated)

	out, err := s.store.ListAuthors(wctx)
	if err != nil {
		return nil, err
	}
	if len(rerr.Failures) > 0 {
		return out, &rerr
	}
	return out, nil
}

func (s *Service) refreshOne(ctx context.Context, a api.Author) (api.Author, error) {
	id, err := identity.Resolve(a.ID)
	if err != nil {
		return api.Author{}, err
	}
	updated, err := s.fetchAuthor(ctx, id)
	if err != nil {
		return api.Author{}, err
	}
	if updated.ID != a.ID {
		return api.Author{}, fmt.Errorf("%w: profile for %s came back as %s", api.ErrRemoteFetch, a.ID, updated.ID)
	}
	updated.IsFavorite = a.IsFavorite
	return updated, nil
}

// Delete removes a cached author and all of their entries.
func (s *Service) Delete(ctx context.Context, authorID string) (api.Author, error) {
	unlock, err := s.locks.Lock(ctx, authorID)
	if err != nil {
		return api.Author{}, err
	}
	defer unlock()

	author, err := s.store.GetAuthor(ctx, authorID)
	if err != nil {
		return api.Author{}, err
	}
	if err := ctx.Err(); err != nil {
		return api.Author{}, err
	}
	removed, err := s.store.DeleteAuthor(context.WithoutCancel(ctx), authorID)
	if err != nil {
		return api.Author{}, err
	}
	s.logger.Info("author deleted", "author", authorID, "entries", removed)
	s.publish(api.EventAuthorDeleted, author, int(removed))
	return author, nil
}

// fetchAuthor builds an Author from the remote profile, downloading the
// avatar or falling back to the placeholder.
func (s *Service) fetchAuthor(ctx context.Context, id identity.Identity) (api.Author, error) {
	p, err := s.remote.GetProfile(ctx, id)
	if err != nil {
		return api.Author{}, fmt.Errorf("fetch profile %s: %w", id, err)
	}
	avatar := PlaceholderAvatar()
	if p.Avatar != "" {
		if avatar, err = s.remote.FetchBytes(ctx, p.Avatar); err != nil {
			return api.Author{}, fmt.Errorf("fetch avatar for %s: %w", p.DID, err)
		}
	}
	return api.Author{
		ID:          p.DID,
		DisplayName: p.DisplayName,
		Handle:      p.Handle,
		Avatar:      avatar,
	}, nil
}

func (s *Service) publish(typ api.EventType, author api.Author, count int) {
	if s.events == nil {
		return
	}
	s.events.Publish(api.Event{Time: s.now().UTC(), Type: typ, Author: author, Count: count})
}
