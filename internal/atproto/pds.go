package atproto

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mithrel/whtreader/pkg/api"
)

type didDocument struct {
	ID      string `json:"id"`
	Service []struct {
		ID              string `json:"id"`
		Type            string `json:"type"`
		ServiceEndpoint string `json:"serviceEndpoint"`
	} `json:"service"`
}

// pdsEndpoint returns the service endpoint of the #atproto_pds entry.
func (d didDocument) pdsEndpoint() string {
	for _, s := range d.Service {
		if s.ID == "#atproto_pds" || strings.HasSuffix(s.ID, "#atproto_pds") {
			return strings.TrimRight(s.ServiceEndpoint, "/")
		}
	}
	return ""
}

// ResolvePDS returns the PDS hosting did's repository. Results are memoized
// for the lifetime of the client; a configured PDS override wins.
func (c *Client) ResolvePDS(ctx context.Context, did string) (string, error) {
	if c.pdsOverride != "" {
		return c.pdsOverride, nil
	}

	c.mu.Lock()
	cached, ok := c.pds[did]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	docURL, err := c.didDocumentURL(did)
	if err != nil {
		return "", err
	}
	var doc didDocument
	if err := c.getJSON(ctx, "resolve did", docURL, &doc); err != nil {
		return "", err
	}
	endpoint := doc.pdsEndpoint()
	if endpoint == "" {
		return "", &RemoteError{Op: "resolve did", URL: docURL, Message: "did document has no #atproto_pds service"}
	}

	c.mu.Lock()
	c.pds[did] = endpoint
	c.mu.Unlock()
	c.logger.Debug("pds resolved", "did", did, "pds", endpoint)
	return endpoint, nil
}

func (c *Client) didDocumentURL(did string) (string, error) {
	switch {
	case strings.HasPrefix(did, "did:plc:"):
		return c.plc + "/" + url.PathEscape(did), nil
	case strings.HasPrefix(did, "did:web:"):
		host, err := url.PathUnescape(strings.TrimPrefix(did, "did:web:"))
		if err != nil || host == "" || strings.Contains(host, ":") {
			return "", fmt.Errorf("%w: unsupported did:web %q", api.ErrInvalidIdentifier, did)
		}
		return "https://" + host + "/.well-known/did.json", nil
	default:
		return "", fmt.Errorf("%w: unsupported did method %q", api.ErrInvalidIdentifier, did)
	}
}
