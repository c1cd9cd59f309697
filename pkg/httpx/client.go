// Package httpx is the instrumented HTTP client for outbound API calls.
// Cross-cutting behavior (timing, logging, response caching) lives in
// composable RoundTripper interceptors rather than wrappers around each
// call site, so callers use a plain http.Client surface.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chordialapp/metronome/pkg/cache"
)

const defaultTimeout = 10 * time.Second

// Options configures a Client.
type Options struct {
	// Base is the innermost transport; http.DefaultTransport when nil.
	Base http.RoundTripper
	// Timeout bounds each request end to end.
	Timeout time.Duration
	// Store receives cached GET responses in the api namespace. Caching
	// is disabled when nil.
	Store *cache.Store
	// CacheTTL is the lifetime of cached responses; the store default
	// applies when zero.
	CacheTTL time.Duration
	// Timing, when set, receives every round trip's outcome.
	Timing TimingFunc
}

// Client wraps http.Client with the interceptor chain applied. Response
// caching can be toggled at runtime; optimization rules switch it on
// when the network degrades.
type Client struct {
	logger  *zap.Logger
	http    *http.Client
	caching atomic.Bool
	ct      *cachingTransport
}

// New builds a client with the chain logging → timing → caching → base.
func New(logger *zap.Logger, opts Options) *Client {
	if opts.Base == nil {
		opts.Base = http.DefaultTransport
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	c := &Client{logger: logger}
	c.caching.Store(opts.Store != nil)

	var interceptors []Interceptor
	interceptors = append(interceptors, Logging(logger))
	if opts.Timing != nil {
		interceptors = append(interceptors, Timing(opts.Timing))
	}

	rt := opts.Base
	if opts.Store != nil {
		c.ct = &cachingTransport{
			next:    opts.Base,
			store:   opts.Store,
			ttl:     opts.CacheTTL,
			enabled: &c.caching,
		}
		rt = c.ct
	}

	c.http = &http.Client{
		Transport: Chain(rt, interceptors...),
		Timeout:   opts.Timeout,
	}
	return c
}

// SetCachingEnabled toggles response caching. With caching off, every
// request goes upstream; cached entries are left to expire on their own.
func (c *Client) SetCachingEnabled(enabled bool) {
	if c.caching.Swap(enabled) != enabled {
		c.logger.Info("response caching toggled", zap.Bool("enabled", enabled))
	}
}

// CachingEnabled reports the current toggle state.
func (c *Client) CachingEnabled() bool {
	return c.caching.Load()
}

// Do executes the request through the interceptor chain.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// Get fetches url and returns the body. Non-2xx statuses are errors.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	return body, nil
}

// CacheStats reports hit/miss/collapsed counts for the caching layer.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Shared int64 `json:"shared"`
}

// Stats returns caching-layer counters; zeros when caching is unwired.
func (c *Client) Stats() CacheStats {
	if c.ct == nil {
		return CacheStats{}
	}
	return CacheStats{
		Hits:   c.ct.hits.Load(),
		Misses: c.ct.misses.Load(),
		Shared: c.ct.shared.Load(),
	}
}
