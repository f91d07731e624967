package sync

import (
	"context"

	"github.com/mithrel/whtreader/internal/identity"
	"github.com/mithrel/whtreader/pkg/api"
)

// Lookup finds a cached author by handle or DID without touching the network.
func (s *Service) Lookup(ctx context.Context, input string) (api.Author, error) {
	id, err := identity.Resolve(input)
	if err != nil {
		return api.Author{}, err
	}
	if id.IsDID() {
		return s.store.GetAuthor(ctx, id.String())
	}
	return s.store.FindAuthor(ctx, id.String())
}

// Authors lists every cached author.
func (s *Service) Authors(ctx context.Context) ([]api.Author, error) {
	return s.store.ListAuthors(ctx)
}

// Entries lists an author's cached entries newest first. An empty visibility
// uses entries.visibility from the config; AllVisibilities disables the
// filter.
func (s *Service) Entries(ctx context.Context, authorID, visibility string) ([]api.Entry, error) {
	switch visibility {
	case "":
		visibility = s.cfg.GetString("entries.visibility")
		if visibility == "" {
			visibility = api.DefaultVisibility
		}
	case AllVisibilities:
		visibility = ""
	}
	return s.store.ListEntries(ctx, authorID, visibility)
}

// AllVisibilities lists entries regardless of visibility.
const AllVisibilities = "all"

// Entry returns one cached entry.
func (s *Service) Entry(ctx context.Context, id string) (api.Entry, error) {
	return s.store.GetEntry(ctx, id)
}

// SetFavorite flags or unflags a cached author. Sync never changes the flag.
func (s *Service) SetFavorite(ctx context.Context, authorID string, favorite bool) error {
	return s.store.SetFavorite(ctx, authorID, favorite)
}
