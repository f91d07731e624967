package format

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/mithrel/whtreader/pkg/api"
)

const defaultWrap = 80

// WritePrettyEntry renders a single entry's markdown for the terminal using glamour.
func WritePrettyEntry(w io.Writer, e api.Entry, width int) error {
	if width <= 0 {
		width = defaultWrap
	}
	title := e.Title
	if title == "" {
		title = "(untitled)"
	}
	created := "unknown"
	if !e.CreatedAt.IsZero() {
		created = e.CreatedAt.Local().Format(time.RFC3339)
	}

	md := fmt.Sprintf(`# %s

> **Created:** %s
>
> **Link:** %s

---

%s
`, title, created, e.Permalink(), strings.TrimSpace(e.Content))

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dracula"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}

	_, err = io.WriteString(w, out)
	return err
}

// WriteMarkdownEntry writes the raw markdown source.
func WriteMarkdownEntry(w io.Writer, e api.Entry) error {
	content := e.Content
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	_, err := io.WriteString(w, content)
	return err
}

// WriteHTMLEntry writes the cached display document.
func WriteHTMLEntry(w io.Writer, e api.Entry) error {
	_, err := io.WriteString(w, e.HTML)
	return err
}
