package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mithrel/whtreader/pkg/api"
)

var (
	alice = api.Author{ID: "did:plc:alice", Handle: "alice.test", DisplayName: "Alice", IsFavorite: true}
	bob   = api.Author{ID: "did:plc:bob", Handle: "bob.test"}
	post  = api.Entry{
		ID:        "at://did:plc:alice/com.whtwnd.blog.entry/3kabc",
		AuthorID:  "did:plc:alice",
		Title:     "Hello\tworld",
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Content:   "# Hi\n\nsome *text*",
		HTML:      "<!DOCTYPE html><p>hi</p>",
	}
)

func TestWritePlainAuthors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePlainAuthors(&buf, []api.Author{alice, bob}, true))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id"))
	assert.Contains(t, lines[1], "did:plc:alice")
	assert.Contains(t, lines[1], "true")
	assert.Contains(t, lines[2], "bob.test")
	assert.Contains(t, lines[2], "false")
}

func TestWritePlainEntriesEscapes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePlainEntries(&buf, []api.Entry{post}, false))

	out := buf.String()
	assert.Contains(t, out, `Hello\tworld`)
	assert.Contains(t, out, "public")
	assert.Contains(t, out, "1709294400000")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestWritePlainEntryZeroTime(t *testing.T) {
	var buf bytes.Buffer
	e := post
	e.CreatedAt = time.Time{}
	e.Visibility = "author"
	require.NoError(t, WritePlainEntry(&buf, e, false))
	assert.Contains(t, buf.String(), "author")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(buf.String()), " 0"))
}

func TestWriteJSONAuthorsEmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONAuthors(&buf, nil, false))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteJSONEntries(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONEntries(&buf, []api.Entry{post}, true))

	var got []api.Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, post.ID, got[0].ID)
	assert.True(t, post.CreatedAt.Equal(got[0].CreatedAt))
}

func TestWritePrettyEntry(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePrettyEntry(&buf, post, 60))

	out := buf.String()
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "3kabc")
	assert.Contains(t, out, "text")
}

func TestWritePrettyAuthors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePrettyAuthors(&buf, []api.Author{alice, bob}, 20))

	out := buf.String()
	assert.Contains(t, out, "Authors (2)")
	assert.Contains(t, out, "★")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "@bob.test")
	assert.Equal(t, 1, strings.Count(out, "★"))
}

func TestWritePrettyEntries(t *testing.T) {
	var buf bytes.Buffer
	untitled := post
	untitled.Title = ""
	untitled.CreatedAt = time.Time{}
	require.NoError(t, WritePrettyEntries(&buf, []api.Entry{post, untitled}, 0))

	out := buf.String()
	assert.Contains(t, out, "Entries (2)")
	assert.Contains(t, out, "(untitled)")
	assert.Contains(t, out, "----------")
}

func TestWriteMarkdownAndHTMLEntry(t *testing.T) {
	var md, html bytes.Buffer
	require.NoError(t, WriteMarkdownEntry(&md, post))
	require.NoError(t, WriteHTMLEntry(&html, post))
	assert.Equal(t, post.Content+"\n", md.String())
	assert.Equal(t, post.HTML, html.String())
}
