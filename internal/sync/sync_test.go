package sync_test

import (
	"context"
	"errors"
	"path/filepath"
	stdsync "sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mithrel/whtreader/internal/atproto"
	"github.com/mithrel/whtreader/internal/atproto/atprototest"
	"github.com/mithrel/whtreader/internal/db"
	"github.com/mithrel/whtreader/internal/identity"
	"github.com/mithrel/whtreader/internal/notify"
	"github.com/mithrel/whtreader/internal/render"
	"github.com/mithrel/whtreader/internal/sync"
	"github.com/mithrel/whtreader/pkg/api"
)

const (
	aliceDID = "did:plc:alice"
	bobDID   = "did:plc:bob"
)

// countingStore records how often the entry set was replaced.
type countingStore struct {
	*db.Store
	mu       stdsync.Mutex
	replaces int
}

func (c *countingStore) ReplaceAllEntries(ctx context.Context, authorID string, entries []api.Entry) error {
	c.mu.Lock()
	c.replaces++
	c.mu.Unlock()
	return c.Store.ReplaceAllEntries(ctx, authorID, entries)
}

func (c *countingStore) Replaces() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replaces
}

type harness struct {
	srv    *atprototest.Server
	client *atproto.Client
	store  *countingStore
	cfg    *viper.Viper
	events <-chan api.Event
	svc    *sync.Service
}

func setupDB(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func setup(t *testing.T) *harness {
	t.Helper()
	srv := atprototest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddAuthor(aliceDID, "alice.test", "Alice", nil)
	srv.AddAuthor(bobDID, "bob.test", "Bob", []byte("bob-avatar"))

	h := &harness{
		srv:    srv,
		client: atproto.NewClient(srv.Options()),
		store:  &countingStore{Store: setupDB(t)},
		cfg:    viper.New(),
	}
	broker := notify.NewBroker()
	events, cancel := broker.Subscribe(64)
	t.Cleanup(cancel)
	h.events = events
	h.svc = h.newService(h.client, broker)
	return h
}

func (h *harness) newService(remote sync.Remote, broker *notify.Broker) *sync.Service {
	return sync.New(h.cfg, sync.Deps{
		Store:    h.store,
		Remote:   remote,
		Renderer: render.New(h.client),
		Events:   broker,
	})
}

func (h *harness) drain() []api.Event {
	var out []api.Event
	for {
		select {
		case ev := <-h.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(evs []api.Event) []api.EventType {
	out := make([]api.EventType, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func entryKeys(entries []api.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.RecordKey())
	}
	return out
}

func threeEntries() []atprototest.Entry {
	return []atprototest.Entry{
		{RKey: "jan", Title: "January", Content: "see [site](http://x.test)", CreatedAt: "2024-01-01T00:00:00Z"},
		{RKey: "none", Title: "Undated", Content: "no date"},
		{RKey: "mar", Title: "March", Content: "# March", CreatedAt: "2024-03-01T00:00:00Z"},
	}
}

func TestOnboardZeroPosts(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	author, err := h.svc.Onboard(ctx, "@Alice.test")
	require.NoError(t, err)
	assert.Equal(t, aliceDID, author.ID)
	assert.Equal(t, "alice.test", author.Handle)
	assert.Equal(t, "Alice", author.DisplayName)
	assert.Equal(t, sync.PlaceholderAvatar(), author.Avatar, "missing avatar falls back to the placeholder")

	stored, err := h.store.GetAuthor(ctx, aliceDID)
	require.NoError(t, err)
	assert.Equal(t, author, stored)

	entries, err := h.svc.Entries(ctx, aliceDID, "")
	require.NoError(t, err)
	assert.Empty(t, entries)

	evs := h.drain()
	assert.Equal(t, []api.EventType{api.EventAuthorAdded, api.EventEntriesSynced}, eventTypes(evs))
	assert.Equal(t, aliceDID, evs[0].Author.ID)
	assert.Equal(t, 0, evs[1].Count)
}

func TestOnboardSyncsEntries(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.srv.SetEntries(bobDID, append(threeEntries(),
		atprototest.Entry{RKey: "hidden", Content: "secret", CreatedAt: "2024-06-01T00:00:00Z", Visibility: "author"})...)

	author, err := h.svc.Onboard(ctx, "bob.test")
	require.NoError(t, err)
	assert.Equal(t, []byte("bob-avatar"), author.Avatar)
	assert.Equal(t, 1, h.store.Replaces())

	public, err := h.svc.Entries(ctx, bobDID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"mar", "jan", "none"}, entryKeys(public))
	assert.Contains(t, public[1].HTML, `target="_blank"`)
	assert.Contains(t, public[0].HTML, "<h1>March</h1>")
	assert.Equal(t, bobDID, public[0].AuthorID)

	all, err := h.svc.Entries(ctx, bobDID, sync.AllVisibilities)
	require.NoError(t, err)
	assert.Equal(t, []string{"hidden", "mar", "jan", "none"}, entryKeys(all))

	h.cfg.Set("entries.visibility", "author")
	hidden, err := h.svc.Entries(ctx, bobDID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"hidden"}, entryKeys(hidden))
}

func TestOnboardExistingAuthor(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	_, err := h.svc.Onboard(ctx, aliceDID)
	require.NoError(t, err)
	require.NoError(t, h.svc.SetFavorite(ctx, aliceDID, true))
	h.drain()

	h.srv.SetDisplayName(aliceDID, "Alice Again")
	author, err := h.svc.Onboard(ctx, "alice.test")
	require.NoError(t, err)
	assert.Equal(t, "Alice Again", author.DisplayName)
	assert.True(t, author.IsFavorite, "favorite is caller-owned")
	assert.Equal(t, 1, h.store.Replaces(), "replacing an existing author does not resync")
	assert.Equal(t, []api.EventType{api.EventAuthorAdded}, eventTypes(h.drain()))
}

func TestOnboardFailures(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	_, err := h.svc.Onboard(ctx, "  ")
	assert.ErrorIs(t, err, api.ErrInvalidIdentifier)

	_, err = h.svc.Onboard(ctx, "not a handle")
	assert.ErrorIs(t, err, api.ErrInvalidIdentifier)

	_, err = h.svc.Onboard(ctx, "ghost.test")
	assert.ErrorIs(t, err, api.ErrRemoteFetch)

	authors, err := h.svc.Authors(ctx)
	require.NoError(t, err)
	assert.Empty(t, authors)
	assert.Empty(t, h.drain())
}

func TestOnboardEntrySyncFailureKeepsAuthor(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.srv.SetEntries(aliceDID, threeEntries()...)
	h.srv.FailListPage(aliceDID, 2)

	author, err := h.svc.Onboard(ctx, "alice.test")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrRemoteFetch)
	assert.Equal(t, aliceDID, author.ID)

	_, err = h.store.GetAuthor(ctx, aliceDID)
	require.NoError(t, err, "the author stays cached")
	assert.Equal(t, []api.EventType{api.EventAuthorAdded}, eventTypes(h.drain()))
}

func TestResyncIdempotent(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.srv.SetEntries(aliceDID, threeEntries()...)
	_, err := h.svc.Onboard(ctx, aliceDID)
	require.NoError(t, err)

	before, err := h.svc.Entries(ctx, aliceDID, sync.AllVisibilities)
	require.NoError(t, err)

	for range 2 {
		report, err := h.svc.ResyncEntries(ctx, aliceDID)
		require.NoError(t, err)
		assert.Equal(t, sync.SyncReport{Fetched: 3}, report)
	}

	after, err := h.svc.Entries(ctx, aliceDID, sync.AllVisibilities)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestResyncReport(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.srv.SetEntries(aliceDID, threeEntries()...)
	_, err := h.svc.Onboard(ctx, aliceDID)
	require.NoError(t, err)
	h.drain()

	next := threeEntries()
	next[0].Content = "edited"
	next = append(next[:2], atprototest.Entry{RKey: "apr", Content: "new", CreatedAt: "2024-04-01T00:00:00Z"})
	h.srv.SetEntries(aliceDID, next...)

	report, err := h.svc.ResyncEntries(ctx, aliceDID)
	require.NoError(t, err)
	assert.Equal(t, sync.SyncReport{Fetched: 3, Added: 1, Changed: 1, Removed: 1}, report)

	entries, err := h.svc.Entries(ctx, aliceDID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"apr", "jan", "none"}, entryKeys(entries))

	evs := h.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, api.EventEntriesSynced, evs[0].Type)
	assert.Equal(t, 3, evs[0].Count)
}

func TestResyncPageFailureLeavesCache(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.srv.PageSize = 1
	h.srv.SetEntries(aliceDID, threeEntries()...)
	_, err := h.svc.Onboard(ctx, aliceDID)
	require.NoError(t, err)
	require.Equal(t, 1, h.store.Replaces())
	before, err := h.svc.Entries(ctx, aliceDID, sync.AllVisibilities)
	require.NoError(t, err)
	h.drain()

	h.srv.SetEntries(aliceDID, atprototest.Entry{RKey: "x", Content: "x"}, atprototest.Entry{RKey: "y"}, atprototest.Entry{RKey: "z"})
	h.srv.FailListPage(aliceDID, 2)

	_, err = h.svc.ResyncEntries(ctx, aliceDID)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrRemoteFetch)
	assert.Equal(t, 1, h.store.Replaces(), "no replace after a failed page")

	after, err := h.svc.Entries(ctx, aliceDID, sync.AllVisibilities)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, h.drain())
}

func TestResyncRenderFailureLeavesCache(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.srv.SetEntries(aliceDID, threeEntries()...)
	_, err := h.svc.Onboard(ctx, aliceDID)
	require.NoError(t, err)

	h.cfg.Set("render.inline_images", true)
	h.srv.SetEntries(aliceDID, atprototest.Entry{RKey: "img", Content: "![gone](" + h.srv.URL + "/assets/missing.png)"})

	_, err = h.svc.ResyncEntries(ctx, aliceDID)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrRender)
	assert.Equal(t, 1, h.store.Replaces())
}

func TestResyncInlinesImages(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.cfg.Set("render.inline_images", true)
	png := sync.PlaceholderAvatar()
	u := h.srv.AddAsset("pic.png", png)
	h.srv.SetEntries(aliceDID, atprototest.Entry{RKey: "img", Content: "![pic](" + u + ")"})

	_, err := h.svc.Onboard(ctx, aliceDID)
	require.NoError(t, err)
	e, err := h.svc.Entry(ctx, "at://"+aliceDID+"/"+api.EntryCollection+"/img")
	require.NoError(t, err)
	assert.Contains(t, e.HTML, `src="data:image/png;base64,`)
	assert.NotContains(t, e.HTML, h.srv.URL)
}

// cancelingRemote cancels the sync context right after the entry listing
// completes, before anything is written.
type cancelingRemote struct {
	*atproto.Client
	cancel context.CancelFunc
}

func (c *cancelingRemote) ListEntries(ctx context.Context, id identity.Identity) ([]atproto.RawEntry, error) {
	entries, err := c.Client.ListEntries(ctx, id)
	c.cancel()
	return entries, err
}

func TestResyncCanceledBeforeWrite(t *testing.T) {
	h := setup(t)
	h.srv.SetEntries(aliceDID, threeEntries()...)
	_, err := h.svc.Onboard(context.Background(), aliceDID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := h.newService(&cancelingRemote{Client: h.client, cancel: cancel}, nil)
	h.srv.SetEntries(aliceDID)

	_, err = svc.ResyncEntries(ctx, aliceDID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, h.store.Replaces())

	entries, err := h.svc.Entries(context.Background(), aliceDID, sync.AllVisibilities)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestResyncUnknownAuthor(t *testing.T) {
	h := setup(t)
	_, err := h.svc.ResyncEntries(context.Background(), aliceDID)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.Equal(t, 0, h.srv.ListRequests(aliceDID))

	_, err = h.svc.ResyncEntries(context.Background(), "alice.test")
	assert.ErrorIs(t, err, api.ErrInvalidIdentifier)
}

func TestResyncSameAuthorConcurrently(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.srv.SetEntries(aliceDID, threeEntries()...)
	_, err := h.svc.Onboard(ctx, aliceDID)
	require.NoError(t, err)

	var wg stdsync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.svc.ResyncEntries(ctx, aliceDID)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	entries, err := h.svc.Entries(ctx, aliceDID, sync.AllVisibilities)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, 7, h.store.Replaces())
}

func onboardBoth(t *testing.T, h *harness) {
	t.Helper()
	for _, in := range []string{"alice.test", "bob.test"} {
		_, err := h.svc.Onboard(context.Background(), in)
		require.NoError(t, err)
	}
	h.drain()
}

func TestRefreshAll(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	onboardBoth(t, h)
	require.NoError(t, h.svc.SetFavorite(ctx, bobDID, true))

	h.srv.SetDisplayName(aliceDID, "Zed Alice")
	h.srv.SetDisplayName(bobDID, "Bobby")

	authors, err := h.svc.RefreshAll(ctx)
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "Bobby", authors[0].DisplayName)
	assert.True(t, authors[0].IsFavorite)
	assert.Equal(t, "Zed Alice", authors[1].DisplayName)

	evs := h.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, api.EventAuthorsRefreshed, evs[0].Type)
	assert.Equal(t, 2, evs[0].Count)
}

func TestRefreshAllNoAuthors(t *testing.T) {
	authors, err := setup(t).svc.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, authors)
}

func TestRefreshAllFailsWholeBatch(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	onboardBoth(t, h)

	h.srv.SetDisplayName(aliceDID, "Changed")
	h.srv.FailProfile(bobDID, true)

	authors, err := h.svc.RefreshAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrRemoteFetch)
	assert.Nil(t, authors)

	alice, err := h.store.GetAuthor(ctx, aliceDID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", alice.DisplayName, "no author is updated when one fails")
	assert.Empty(t, h.drain())
}

func TestRefreshAllPartial(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.cfg.Set("sync.refresh_partial", true)
	h.cfg.Set("sync.refresh_concurrency", 1)
	onboardBoth(t, h)

	h.srv.SetDisplayName(aliceDID, "Changed")
	h.srv.FailProfile(bobDID, true)

	authors, err := h.svc.RefreshAll(ctx)
	require.Error(t, err)
	var rerr *sync.RefreshError
	require.True(t, errors.As(err, &rerr))
	require.Len(t, rerr.Failures, 1)
	assert.Equal(t, bobDID, rerr.Failures[0].Author.ID)
	assert.ErrorIs(t, err, api.ErrRemoteFetch)

	require.Len(t, authors, 2)
	assert.Equal(t, "Bob", authors[0].DisplayName)
	assert.Equal(t, "Changed", authors[1].DisplayName)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.srv.SetEntries(aliceDID,
		atprototest.Entry{RKey: "1"}, atprototest.Entry{RKey: "2"}, atprototest.Entry{RKey: "3"},
		atprototest.Entry{RKey: "4"}, atprototest.Entry{RKey: "5"})
	h.srv.SetEntries(bobDID, atprototest.Entry{RKey: "b"})
	onboardBoth(t, h)

	all, err := h.svc.Entries(ctx, aliceDID, sync.AllVisibilities)
	require.NoError(t, err)
	require.Len(t, all, 5)

	deleted, err := h.svc.Delete(ctx, aliceDID)
	require.NoError(t, err)
	assert.Equal(t, "alice.test", deleted.Handle)

	all, err = h.svc.Entries(ctx, aliceDID, sync.AllVisibilities)
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = h.svc.Lookup(ctx, aliceDID)
	assert.ErrorIs(t, err, api.ErrNotFound)

	bobs, err := h.svc.Entries(ctx, bobDID, sync.AllVisibilities)
	require.NoError(t, err)
	assert.Len(t, bobs, 1)

	evs := h.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, api.EventAuthorDeleted, evs[0].Type)
	assert.Equal(t, aliceDID, evs[0].Author.ID)
	assert.Equal(t, 5, evs[0].Count)

	_, err = h.svc.Delete(ctx, aliceDID)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.Empty(t, h.drain())
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	onboardBoth(t, h)

	a, err := h.svc.Lookup(ctx, "@ALICE.test")
	require.NoError(t, err)
	assert.Equal(t, aliceDID, a.ID)

	a, err = h.svc.Lookup(ctx, "at://"+bobDID)
	require.NoError(t, err)
	assert.Equal(t, "bob.test", a.Handle)

	_, err = h.svc.Lookup(ctx, "carol.test")
	assert.ErrorIs(t, err, api.ErrNotFound)
}
