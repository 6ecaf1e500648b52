// Package usage provides the client for the external usage/auth collaborator.
//
// Before a pooled transcription connection is created, the pool validates the
// caller's quota through [Client.Validate]. The collaborator also hands out
// the speech service API key so it never ships to browsers.
//
// The client is read-only from this service's perspective: usage accounting
// itself happens on the collaborator side.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrQuotaExceeded is returned by [Client.Validate] when the caller has used
// up the transcription allowance.
var ErrQuotaExceeded = errors.New("usage: quota exceeded")

const (
	statusEndpoint = "/v1/usage/status"
	keyEndpoint    = "/v1/keys/transcription"

	defaultTimeout  = 5 * time.Second
	defaultCacheTTL = 10 * time.Second
)

// Status is the quota snapshot returned by the collaborator.
type Status struct {
	// CanUse reports whether another transcription session may be started.
	CanUse bool `json:"can_use"`

	// CurrentUsage is the consumed allowance in the current period, in seconds.
	CurrentUsage int64 `json:"current_usage"`

	// Quota is the total allowance for the period, in seconds.
	Quota int64 `json:"quota"`

	// Remaining is the unconsumed allowance, in seconds.
	Remaining int64 `json:"remaining"`
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithCacheTTL sets how long a fetched [Status] is served from cache before a
// fresh request is made. Zero disables caching. Default: 10s.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used in tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// Client talks to the usage/auth collaborator over HTTPS.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	cacheTTL time.Duration

	mu        sync.Mutex
	cached    *Status
	cachedAt  time.Time
	cachedKey string
}

// New creates a [Client] for the collaborator at baseURL, authenticating with
// the given service token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("usage: baseURL must not be empty")
	}
	c := &Client{
		baseURL:  baseURL,
		token:    token,
		http:     &http.Client{Timeout: defaultTimeout},
		cacheTTL: defaultCacheTTL,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Fetch returns the current usage [Status], served from cache when fresh.
func (c *Client) Fetch(ctx context.Context) (Status, error) {
	c.mu.Lock()
	if c.cached != nil && c.cacheTTL > 0 && time.Since(c.cachedAt) < c.cacheTTL {
		st := *c.cached
		c.mu.Unlock()
		return st, nil
	}
	c.mu.Unlock()

	var st Status
	if err := c.get(ctx, statusEndpoint, &st); err != nil {
		return Status{}, fmt.Errorf("usage: fetch status: %w", err)
	}

	c.mu.Lock()
	c.cached = &st
	c.cachedAt = time.Now()
	c.mu.Unlock()

	return st, nil
}

// Validate confirms that a new transcription session may be started. It
// returns [ErrQuotaExceeded] when the allowance is exhausted.
func (c *Client) Validate(ctx context.Context) error {
	st, err := c.Fetch(ctx)
	if err != nil {
		return err
	}
	if !st.CanUse || st.Remaining <= 0 {
		return fmt.Errorf("%w: used %d of %d", ErrQuotaExceeded, st.CurrentUsage, st.Quota)
	}
	return nil
}

// APIKey retrieves the speech service API key from the collaborator. The key
// is cached for the lifetime of the client.
func (c *Client) APIKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cachedKey != "" {
		k := c.cachedKey
		c.mu.Unlock()
		return k, nil
	}
	c.mu.Unlock()

	var resp struct {
		APIKey string `json:"api_key"`
	}
	if err := c.get(ctx, keyEndpoint, &resp); err != nil {
		return "", fmt.Errorf("usage: fetch api key: %w", err)
	}
	if resp.APIKey == "" {
		return "", errors.New("usage: collaborator returned empty api key")
	}

	c.mu.Lock()
	c.cachedKey = resp.APIKey
	c.mu.Unlock()

	return resp.APIKey, nil
}

// InvalidateCache drops the cached status so the next Fetch hits the
// collaborator. Called after a quota-exceeded rejection is resolved upstream.
func (c *Client) InvalidateCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
