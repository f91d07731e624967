package api

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ContentHash returns a deterministic BLAKE3 hash of the fields an entry is
// fetched with. HTML is excluded since it is derived from Content.
func (e Entry) ContentHash() string {
	h := blake3.New()

	h.Write([]byte(e.ID))
	h.Write([]byte{0})

	h.Write([]byte(e.AuthorID))
	h.Write([]byte{0})

	h.Write([]byte(e.Title))
	h.Write([]byte{0})

	h.Write([]byte(e.Content))
	h.Write([]byte{0})

	h.Write([]byte(e.Visibility))
	h.Write([]byte{0})

	// Timestamps in RFC3339Nano (UTC)
	if !e.CreatedAt.IsZero() {
		h.Write([]byte(e.CreatedAt.UTC().Format(timeRFC3339Nano)))
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}

const timeRFC3339Nano = "2006-01-02T15:04:05.999999999Z07:00"
