package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mithrel/whtreader/pkg/api"
)

var (
	prettyHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	prettyNameStyle   = lipgloss.NewStyle().Bold(true)
	prettyMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	prettyFavStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// WritePrettyAuthors prints one block per author with favorites starred.
// width bounds the rule under the header; <= 0 uses the default wrap.
func WritePrettyAuthors(w io.Writer, authors []api.Author, width int) error {
	if width <= 0 {
		width = defaultWrap
	}
	header := prettyHeaderStyle.Render(fmt.Sprintf("Authors (%d)", len(authors)))
	if _, err := fmt.Fprintf(w, "%s\n%s\n", header, prettyMutedStyle.Render(strings.Repeat("─", width))); err != nil {
		return err
	}
	for _, a := range authors {
		mark := "  "
		if a.IsFavorite {
			mark = prettyFavStyle.Render("★") + " "
		}
		handle := ""
		if a.Handle != "" {
			handle = " " + prettyMutedStyle.Render("@"+a.Handle)
		}
		if _, err := fmt.Fprintf(w, "%s%s%s\n  %s\n", mark, prettyNameStyle.Render(a.Label()), handle, prettyMutedStyle.Render(a.ID)); err != nil {
			return err
		}
	}
	return nil
}

// WritePrettyEntries prints a styled title line per entry.
func WritePrettyEntries(w io.Writer, entries []api.Entry, width int) error {
	if width <= 0 {
		width = defaultWrap
	}
	header := prettyHeaderStyle.Render(fmt.Sprintf("Entries (%d)", len(entries)))
	if _, err := fmt.Fprintf(w, "%s\n%s\n", header, prettyMutedStyle.Render(strings.Repeat("─", width))); err != nil {
		return err
	}
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = "(untitled)"
		}
		date := "----------"
		if !e.CreatedAt.IsZero() {
			date = e.CreatedAt.Local().Format("2006-01-02")
		}
		if _, err := fmt.Fprintf(w, "%s  %s\n            %s\n", prettyMutedStyle.Render(date), prettyNameStyle.Render(title), prettyMutedStyle.Render(e.ID)); err != nil {
			return err
		}
	}
	return nil
}
