package present

import (
	"io"

	"github.com/mithrel/whtreader/internal/present/format"
	"github.com/mithrel/whtreader/pkg/api"
)

type Mode int

const (
	ModePlain Mode = iota
	ModePretty
	ModeJSON
	ModeHTML
	ModeMarkdown
)

type Options struct {
	Mode       Mode
	JSONIndent bool
	Headers    bool
	// Width is the terminal width used by pretty output; 0 means default.
	Width int
}

// ParseMode parses a string like "plain", "pretty", "json", "html", "markdown".
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "plain":
		return ModePlain, true
	case "pretty":
		return ModePretty, true
	case "json":
		return ModeJSON, true
	case "html":
		return ModeHTML, true
	case "markdown", "md":
		return ModeMarkdown, true
	default:
		return ModePlain, false
	}
}

// RenderAuthors renders the author list. Entry-only modes fall back to plain.
func RenderAuthors(w io.Writer, authors []api.Author, opts Options) error {
	switch opts.Mode {
	case ModeJSON:
		return format.WriteJSONAuthors(w, authors, opts.JSONIndent)
	case ModePretty:
		return format.WritePrettyAuthors(w, authors, opts.Width)
	default:
		return format.WritePlainAuthors(w, authors, opts.Headers)
	}
}

// RenderEntries renders a list of entries according to options.
func RenderEntries(w io.Writer, entries []api.Entry, opts Options) error {
	switch opts.Mode {
	case ModeJSON:
		return format.WriteJSONEntries(w, entries, opts.JSONIndent)
	case ModePretty:
		return format.WritePrettyEntries(w, entries, opts.Width)
	default:
		return format.WritePlainEntries(w, entries, opts.Headers)
	}
}

// RenderEntry renders a single entry according to options.
func RenderEntry(w io.Writer, e api.Entry, opts Options) error {
	switch opts.Mode {
	case ModeJSON:
		return format.WriteJSONEntry(w, e, opts.JSONIndent)
	case ModePretty:
		return format.WritePrettyEntry(w, e, opts.Width)
	case ModeHTML:
		return format.WriteHTMLEntry(w, e)
	case ModeMarkdown:
		return format.WriteMarkdownEntry(w, e)
	default:
		return format.WritePlainEntry(w, e, opts.Headers)
	}
}
