package sync

import (
	"fmt"
	"strings"

	"github.com/mithrel/whtreader/pkg/api"
)

// SyncReport summarizes one entry resync.
type SyncReport struct {
	Fetched int `json:"fetched"`
	Added   int `json:"added"`
	Changed int `json:"changed"`
	Removed int `json:"removed"`
}

func (r SyncReport) String() string {
	return fmt.Sprintf("%d fetched, %d added, %d changed, %d removed", r.Fetched, r.Added, r.Changed, r.Removed)
}

// diffEntries compares the cached set with the freshly fetched one by
// content hash.
func diffEntries(prev, next []api.Entry) SyncReport {
	old := make(map[string]string, len(prev))
	for _, e := range prev {
		old[e.ID] = e.ContentHash()
	}
	r := SyncReport{Fetched: len(next)}
	seen := make(map[string]struct{}, len(next))
	for _, e := range next {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		h, ok := old[e.ID]
		switch {
		case !ok:
			r.Added++
		case h != e.ContentHash():
			r.Changed++
		}
	}
	for id := range old {
		if _, ok := seen[id]; !ok {
			r.Removed++
		}
	}
	return r
}

// AuthorFailure is one author whose profile could not be refreshed.
type AuthorFailure struct {
	Author api.Author
	Err    error
}

// RefreshError is returned by RefreshAll in partial mode when some authors
// failed. The authors that succeeded have been written.
type RefreshError struct {
	Failures []AuthorFailure
}

func (e *RefreshError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "refresh failed for %d author(s)", len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("; " + f.Author.ID + ": " + f.Err.Error())
	}
	return b.String()
}

func (e *RefreshError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
