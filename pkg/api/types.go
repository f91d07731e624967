package api

import (
	"strings"
	"time"
)

// EntryCollection is the record collection WhiteWind blog entries live in.
const EntryCollection = "com.whtwnd.blog.entry"

// DefaultVisibility is the visibility surfaced to readers when none is requested.
const DefaultVisibility = "public"

// Author is a cached blog author. ID is the author's DID and never changes.
// Empty string fields mean "absent"; a nil Avatar means the placeholder is used.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Handle      string `json:"handle,omitempty"`
	Avatar      []byte `json:"avatar,omitempty"`
	IsFavorite  bool   `json:"is_favorite"`
}

// Label returns the best human-readable name for the author.
func (a Author) Label() string {
	switch {
	case a.DisplayName != "":
		return a.DisplayName
	case a.Handle != "":
		return a.Handle
	default:
		return a.ID
	}
}

// Entry is one blog post. Content is the markdown source of truth; HTML is
// derived from it and can always be regenerated.
type Entry struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	Title      string    `json:"title,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	Content    string    `json:"content,omitempty"`
	HTML       string    `json:"html,omitempty"`
	Visibility string    `json:"visibility,omitempty"`
}

// RecordKey returns the last path segment of the entry's at:// URI.
func (e Entry) RecordKey() string {
	i := strings.LastIndexByte(e.ID, '/')
	if i < 0 {
		return ""
	}
	return e.ID[i+1:]
}

// Permalink returns the public whtwnd.com URL used for sharing an entry.
func (e Entry) Permalink() string {
	rkey := e.RecordKey()
	if e.AuthorID == "" || rkey == "" {
		return ""
	}
	return "https://whtwnd.com/" + e.AuthorID + "/" + rkey
}

type EventType string

const (
	EventAuthorAdded      EventType = "author.added"
	EventAuthorDeleted    EventType = "author.deleted"
	EventEntriesSynced    EventType = "entries.synced"
	EventAuthorsRefreshed EventType = "authors.refreshed"
)

// Event is published after a mutation of the cache has completed.
type Event struct {
	Time   time.Time `json:"time"`
	Type   EventType `json:"type"`
	Author Author    `json:"author"`
	Count  int       `json:"count,omitempty"`
}
