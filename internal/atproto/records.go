package atproto

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mithrel/whtreader/internal/identity"
	"github.com/mithrel/whtreader/pkg/api"
)

// RawEntry is a com.whtwnd.blog.entry record as listed from the author's repo.
type RawEntry struct {
	URI        string
	CID        string
	AuthorDID  string
	Title      string
	Content    string
	Visibility string
	CreatedAt  time.Time // zero when absent or unparseable
}

// entryRecord mirrors the com.whtwnd.blog.entry lexicon fields we read.
type entryRecord struct {
	Type       string `json:"$type"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	CreatedAt  string `json:"createdAt"`
	Visibility string `json:"visibility"`
}

type listRecordsResponse struct {
	Cursor  string `json:"cursor"`
	Records []struct {
		URI   string          `json:"uri"`
		CID   string          `json:"cid"`
		Value json.RawMessage `json:"value"`
	} `json:"records"`
}

// ListEntries fetches every blog entry in the author's repository, following
// the listRecords cursor until it comes back empty. Any failed or malformed
// page fails the whole call and nothing fetched so far is returned.
func (c *Client) ListEntries(ctx context.Context, id identity.Identity) ([]RawEntry, error) {
	did, err := c.ResolveHandle(ctx, id)
	if err != nil {
		return nil, err
	}
	pds, err := c.ResolvePDS(ctx, did)
	if err != nil {
		return nil, err
	}

	var (
		entries []RawEntry
		cursor  string
		pages   int
	)
	for {
		params := url.Values{}
		params.Set("repo", did)
		params.Set("collection", api.EntryCollection)
		params.Set("limit", strconv.Itoa(c.pageSize))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var page listRecordsResponse
		if err := c.xrpcGet(ctx, pds, "com.atproto.repo.listRecords", params, &page); err != nil {
			return nil, err
		}
		if page.Records == nil {
			return nil, &RemoteError{Op: "com.atproto.repo.listRecords", URL: pds, Message: "page " + strconv.Itoa(pages+1) + " has no records field"}
		}
		pages++

		for _, r := range page.Records {
			entry, err := decodeEntry(did, r.URI, r.CID, r.Value)
			if err != nil {
				return nil, &RemoteError{Op: "com.atproto.repo.listRecords", URL: pds, Err: err}
			}
			entries = append(entries, entry)
		}

		next := strings.TrimSpace(page.Cursor)
		if next == "" {
			break
		}
		if next == cursor {
			return nil, &RemoteError{Op: "com.atproto.repo.listRecords", URL: pds, Message: "cursor did not advance"}
		}
		cursor = next
	}

	c.logger.Debug("entries listed", "did", did, "pages", pages, "count", len(entries))
	return entries, nil
}

func decodeEntry(did, uri, cid string, value json.RawMessage) (RawEntry, error) {
	if uri == "" {
		return RawEntry{}, errMissingURI
	}
	var rec entryRecord
	if len(value) > 0 {
		if err := json.Unmarshal(value, &rec); err != nil {
			return RawEntry{}, err
		}
	}
	return RawEntry{
		URI:        uri,
		CID:        cid,
		AuthorDID:  did,
		Title:      rec.Title,
		Content:    rec.Content,
		Visibility: rec.Visibility,
		CreatedAt:  parseRecordTime(rec.CreatedAt),
	}, nil
}

func parseRecordTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
