package atproto

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mithrel/whtreader/internal/identity"
	"github.com/mithrel/whtreader/pkg/api"
)

// Profile is the subset of app.bsky.actor.defs#profileViewDetailed the
// reader keeps.
type Profile struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"` // URL
}

// GetProfile looks up an author's profile by handle or DID.
func (c *Client) GetProfile(ctx context.Context, id identity.Identity) (Profile, error) {
	if id.IsZero() {
		return Profile{}, fmt.Errorf("%w: zero identity", api.ErrInvalidIdentifier)
	}
	params := url.Values{}
	params.Set("actor", id.String())

	var p Profile
	if err := c.xrpcGet(ctx, c.appView, "app.bsky.actor.getProfile", params, &p); err != nil {
		return Profile{}, err
	}
	if strings.TrimSpace(p.DID) == "" {
		return Profile{}, &RemoteError{Op: "app.bsky.actor.getProfile", URL: c.appView, Message: "profile without did"}
	}
	c.logger.Debug("profile fetched", "actor", id.String(), "did", p.DID, "handle", p.Handle)
	return p, nil
}

// ResolveHandle maps a handle to its DID. DIDs are returned unchanged.
func (c *Client) ResolveHandle(ctx context.Context, id identity.Identity) (string, error) {
	if id.IsDID() {
		return id.String(), nil
	}
	if id.IsZero() {
		return "", fmt.Errorf("%w: zero identity", api.ErrInvalidIdentifier)
	}
	params := url.Values{}
	params.Set("handle", id.String())

	var out struct {
		DID string `json:"did"`
	}
	if err := c.xrpcGet(ctx, c.appView, "com.atproto.identity.resolveHandle", params, &out); err != nil {
		return "", err
	}
	if out.DID == "" {
		return "", &RemoteError{Op: "com.atproto.identity.resolveHandle", URL: c.appView, Message: "empty did"}
	}
	return out.DID, nil
}
