package format

import (
	"encoding/json"
	"io"

	"github.com/mithrel/whtreader/pkg/api"
)

func writeJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func WriteJSONAuthors(w io.Writer, authors []api.Author, indent bool) error {
	if authors == nil {
		authors = []api.Author{}
	}
	return writeJSON(w, authors, indent)
}

func WriteJSONEntries(w io.Writer, entries []api.Entry, indent bool) error {
	if entries == nil {
		entries = []api.Entry{}
	}
	return writeJSON(w, entries, indent)
}

func WriteJSONEntry(w io.Writer, e api.Entry, indent bool) error {
	return writeJSON(w, e, indent)
}

// WriteJSONValue encodes anything else the CLI reports, such as a sync report.
func WriteJSONValue(w io.Writer, v any, indent bool) error {
	return writeJSON(w, v, indent)
}
