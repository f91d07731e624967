// Package identity validates and normalizes the strings users type to name an
// author: either a handle (alice.example.com) or a DID (did:plc:xyz).
package identity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mithrel/whtreader/pkg/api"
)

type Kind int

const (
	KindHandle Kind = iota + 1
	KindDID
)

func (k Kind) String() string {
	switch k {
	case KindHandle:
		return "handle"
	case KindDID:
		return "did"
	default:
		return "unknown"
	}
}

const (
	maxHandleLen = 253
	maxDIDLen    = 2048
)

var (
	handleRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	didRegex    = regexp.MustCompile(`^did:[a-z]+:[a-zA-Z0-9._:%-]*[a-zA-Z0-9._-]$`)
)

// Identity is a validated author reference. The zero value is invalid.
type Identity struct {
	kind  Kind
	value string
}

func (i Identity) Kind() Kind { return i.kind }
func (i Identity) String() string { return i.value }
func (i Identity) IsDID() bool { return i.kind == KindDID }
func (i Identity) IsHandle() bool { return i.kind == KindHandle }
func (i Identity) IsZero() bool { return i.kind == 0 }

// Method returns the DID method ("plc", "web"), or "" for handles.
func (i Identity) Method() string {
	if i.kind != KindDID {
		return ""
	}
	rest := strings.TrimPrefix(i.value, "did:")
	if j := strings.IndexByte(rest, ':'); j >= 0 {
		return rest[:j]
	}
	return ""
}

// Resolve parses a handle or DID. Surrounding whitespace, a leading "@" and an
// at:// prefix are accepted; handles are lowercased. Anything else fails with
// api.ErrInvalidIdentifier.
func Resolve(input string) (Identity, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "at://")
	// at://did:plc:xyz/collection/rkey names the repo in its first segment
	if j := strings.IndexByte(s, '/'); j >= 0 {
		s = s[:j]
	}
	s = strings.TrimPrefix(s, "@")
	if s == "" {
		return Identity{}, fmt.Errorf("%w: empty input", api.ErrInvalidIdentifier)
	}

	if strings.HasPrefix(s, "did:") {
		if len(s) > maxDIDLen || !didRegex.MatchString(s) {
			return Identity{}, fmt.Errorf("%w: malformed did %q", api.ErrInvalidIdentifier, input)
		}
		return Identity{kind: KindDID, value: s}, nil
	}

	if len(s) > maxHandleLen || !handleRegex.MatchString(s) {
		return Identity{}, fmt.Errorf("%w: %q is neither a handle nor a did", api.ErrInvalidIdentifier, input)
	}
	return Identity{kind: KindHandle, value: strings.ToLower(s)}, nil
}
