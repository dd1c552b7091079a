// Package httpcache keeps raw JSON responses keyed by request URL so that
// repeated catalog reads are idempotent and survive transient failures.
package httpcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// Store persists response bodies by URL. Get reports false on a miss.
type Store interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Put(ctx context.Context, url string, body []byte) error
}

// NetworkError is a failed request or a non-2xx response
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network request %s failed: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("network request %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is (or wraps) a NetworkError
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// retryable reports whether a failed request is worth repeating. Client
// errors other than 429 are final.
func retryable(err error) bool {
	var ne *NetworkError
	if !errors.As(err, &ne) {
		return false
	}
	if ne.StatusCode == 0 {
		return true
	}
	return ne.StatusCode == http.StatusTooManyRequests || ne.StatusCode >= 500
}

// Validator rejects a well-formed body that must not be cached, such as an
// API-level failure answered with a 2xx status
type Validator func(body []byte) error

func check(body []byte, validators []Validator) error {
	for _, v := range validators {
		if err := v(body); err != nil {
			return err
		}
	}
	return nil
}

// Cache fetches JSON documents through an optional Store
type Cache struct {
	store    Store
	client   *http.Client
	attempts uint
	delay    time.Duration
}

// Option configures the cache
type Option func(*Cache)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) {
		c.client = client
	}
}

// WithRetry sets the number of attempts per network read and the base backoff
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Cache) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.delay = delay
	}
}

// New creates a cache over store. A nil store disables caching and every
// fetch goes straight to the network.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		client:   &http.Client{Timeout: 30 * time.Second},
		attempts: 1,
		delay:    250 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Enabled reports whether responses are cached
func (c *Cache) Enabled() bool {
	return c.store != nil
}

// FetchCached returns the cached body for url if one exists. Otherwise it
// fetches url, caches a 2xx response and returns it. When the network fails
// a stale cached body is returned if one appeared meanwhile. A body refused
// by a validator is returned but never cached, and a cached one reads as a
// miss.
func (c *Cache) FetchCached(ctx context.Context, url string, validators ...Validator) ([]byte, error) {
	if body, ok := c.lookup(ctx, url, validators); ok {
		slog.Debug("http cache hit", "url", url)
		return body, nil
	}

	body, err := c.fetch(ctx, url, false)
	if err != nil {
		if stale, ok := c.lookup(ctx, url, validators); ok {
			slog.Warn("network failed, serving stale response", "url", url, "error", err)
			return stale, nil
		}
		return nil, err
	}

	c.saveValid(ctx, url, body, validators)
	return body, nil
}

// FetchFresh always goes to the network and overwrites the cached body on
// success. Failures are returned as is; there is no stale fallback.
func (c *Cache) FetchFresh(ctx context.Context, url string, validators ...Validator) ([]byte, error) {
	body, err := c.fetch(ctx, url, true)
	if err != nil {
		return nil, err
	}

	c.saveValid(ctx, url, body, validators)
	return body, nil
}

func (c *Cache) saveValid(ctx context.Context, url string, body []byte, validators []Validator) {
	if err := check(body, validators); err != nil {
		slog.Warn("response not cached", "url", url, "error", err)
		return
	}
	c.save(ctx, url, body)
}

func (c *Cache) lookup(ctx context.Context, url string, validators []Validator) ([]byte, bool) {
	if c.store == nil {
		return nil, false
	}
	body, ok, err := c.store.Get(ctx, url)
	if err != nil {
		slog.Warn("http cache read failed", "url", url, "error", err)
		return nil, false
	}
	if !ok || !json.Valid(body) || check(body, validators) != nil {
		return nil, false
	}
	return body, true
}

func (c *Cache) save(ctx context.Context, url string, body []byte) {
	if c.store == nil {
		return
	}
	if err := c.store.Put(ctx, url, body); err != nil {
		slog.Warn("http cache write failed", "url", url, "error", err)
	}
}

// fetch performs a GET with retry and exponential backoff
func (c *Cache) fetch(ctx context.Context, url string, noCache bool) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			b, err := c.get(ctx, url, noCache)
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("retrying request", "url", url, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		if IsNetworkError(err) {
			return nil, err
		}
		return nil, &NetworkError{URL: url, Err: err}
	}

	return body, nil
}

func (c *Cache) get(ctx context.Context, url string, noCache bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if noCache {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	if !json.Valid(body) {
		return nil, &NetworkError{URL: url, Err: errors.New("response is not valid JSON")}
	}

	return body, nil
}
