// Package atproto is a minimal read-only AT Protocol client covering what the
// reader needs: profile lookup, paginated record listing and asset download.
// It never caches results and never retries.
package atproto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultAppView   = "https://public.api.bsky.app"
	defaultPLC       = "https://plc.directory"
	defaultPageSize  = 100
	defaultUserAgent = "whtreader"

	// maxAssetBytes bounds avatar and inline image downloads.
	maxAssetBytes = 16 << 20
)

// Options configures a Client. Zero values fall back to public defaults.
type Options struct {
	// AppViewURL serves app.bsky.actor.getProfile and handle resolution.
	AppViewURL string

	// PLCURL is the did:plc directory used to find an author's PDS.
	PLCURL string

	// PDSURL, when set, is used for record listing instead of resolving the
	// PDS from the author's DID document.
	PDSURL string

	// PageSize is the limit sent with each listRecords request (1-100).
	PageSize int

	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks XRPC over HTTP. It is safe for concurrent use.
type Client struct {
	appView     string
	plc         string
	pdsOverride string
	pageSize    int
	userAgent   string
	httpClient  *http.Client
	logger      *slog.Logger

	mu  sync.Mutex
	pds map[string]string // did -> pds endpoint
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		appView:     trimBase(opts.AppViewURL, defaultAppView),
		plc:         trimBase(opts.PLCURL, defaultPLC),
		pdsOverride: strings.TrimRight(strings.TrimSpace(opts.PDSURL), "/"),
		pageSize:    opts.PageSize,
		userAgent:   opts.UserAgent,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		pds:         make(map[string]string),
	}
	if c.pageSize <= 0 || c.pageSize > 100 {
		c.pageSize = defaultPageSize
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

func trimBase(s, fallback string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "/")
	if s == "" {
		return fallback
	}
	return s
}

// FetchBytes downloads a raw asset such as an avatar or an inline image.
func (c *Client) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &RemoteError{Op: "fetch asset", URL: rawURL, Err: errors.New("unsupported url")}
	}
	body, status, err := c.do(ctx, rawURL, "")
	if err != nil {
		return nil, &RemoteError{Op: "fetch asset", URL: rawURL, Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, newStatusError("fetch asset", rawURL, status, body)
	}
	return body, nil
}

// xrpcGet issues GET base/xrpc/method?params and decodes the JSON body into
// result. Non-2xx responses become a *RemoteError carrying the XRPC error.
func (c *Client) xrpcGet(ctx context.Context, base, method string, params url.Values, result any) error {
	endpoint := base + "/xrpc/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return c.getJSON(ctx, method, endpoint, result)
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, result any) error {
	body, status, err := c.do(ctx, endpoint, "application/json")
	if err != nil {
		return &RemoteError{Op: op, URL: endpoint, Err: err}
	}
	if status < 200 || status >= 300 {
		return newStatusError(op, endpoint, status, body)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return &RemoteError{Op: op, URL: endpoint, Status: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint, accept string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxAssetBytes {
		return nil, resp.StatusCode, fmt.Errorf("response exceeds %d bytes", maxAssetBytes)
	}
	return body, resp.StatusCode, nil
}
