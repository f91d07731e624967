package format

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mithrel/whtreader/pkg/api"
)

// TSV columns: id, handle, display_name, favorite
var authorHeaderLine = "id\thandle\tdisplay_name\tfavorite\n"

// TSV columns: id, title, visibility, created_unix_ms
var entryHeaderLine = "id\ttitle\tvisibility\tcreated_unix_ms\n"

func esc(field string) string {
	field = strings.ReplaceAll(field, "\t", "\\t")
	field = strings.ReplaceAll(field, "\n", "\\n")
	return field
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func WritePlainAuthors(w io.Writer, authors []api.Author, headers bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if headers {
		_, _ = io.WriteString(tw, authorHeaderLine)
	}
	for _, a := range authors {
		line := fmt.Sprintf("%s\t%s\t%s\t%t\n",
			esc(a.ID), esc(a.Handle), esc(a.DisplayName), a.IsFavorite)
		_, _ = io.WriteString(tw, line)
	}
	return tw.Flush()
}

func WritePlainEntries(w io.Writer, entries []api.Entry, headers bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if headers {
		_, _ = io.WriteString(tw, entryHeaderLine)
	}
	for _, e := range entries {
		writePlainEntryLine(tw, e)
	}
	return tw.Flush()
}

func WritePlainEntry(w io.Writer, e api.Entry, headers bool) error {
	return WritePlainEntries(w, []api.Entry{e}, headers)
}

func writePlainEntryLine(w io.Writer, e api.Entry) {
	vis := e.Visibility
	if vis == "" {
		vis = api.DefaultVisibility
	}
	line := fmt.Sprintf("%s\t%s\t%s\t%d\n",
		esc(e.ID), esc(e.Title), esc(vis), unixMillis(e.CreatedAt))
	_, _ = io.WriteString(w, line)
}
