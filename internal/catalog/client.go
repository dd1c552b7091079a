// Package catalog is a client for the remote contest catalog API.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/terra-clan/ladder-cache/internal/httpcache"
	"github.com/terra-clan/ladder-cache/internal/models"
)

// ErrAPIFailure is returned when the API answers with success=false
var ErrAPIFailure = errors.New("catalog api reported failure")

// DefaultCategoryLimit is the per-category contest limit requested from the API
const DefaultCategoryLimit = 10000

// Client reads contests and problems from the catalog API. GET requests go
// through the HTTP cache.
type Client struct {
	baseURL    string
	limit      int
	cache      *httpcache.Cache
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets the client used for write requests
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the write request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithCategoryLimit sets the limit query parameter of category reads
func WithCategoryLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// NewClient creates a catalog client. A nil cache means uncached reads.
func NewClient(baseURL string, cache *httpcache.Cache, opts ...Option) *Client {
	if cache == nil {
		cache = httpcache.New(nil)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   DefaultCategoryLimit,
		cache:   cache,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CategoriesURL is the URL of the category catalog
func (c *Client) CategoriesURL() string {
	return fmt.Sprintf("%s/contests/by-category?limit=%d", c.baseURL, c.limit)
}

// ContestURL is the URL of one contest's detail document
func (c *Client) ContestURL(contestID int) string {
	return fmt.Sprintf("%s/contests/%d", c.baseURL, contestID)
}

// ContestsByCategory returns every contest of the catalog, tagged with its
// section name. fresh bypasses the HTTP cache.
func (c *Client) ContestsByCategory(ctx context.Context, fresh bool) ([]models.Contest, error) {
	body, err := c.get(ctx, c.CategoriesURL(), fresh)
	if err != nil {
		return nil, err
	}

	contests, err := ParseCategories(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse categories: %w", err)
	}

	return contests, nil
}

// ContestProblems returns the problems of one contest. fresh bypasses the
// HTTP cache.
func (c *Client) ContestProblems(ctx context.Context, contestID int, fresh bool) ([]models.Problem, error) {
	body, err := c.get(ctx, c.ContestURL(contestID), fresh)
	if err != nil {
		return nil, err
	}

	problems, err := ParseProblems(body, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse contest %d: %w", contestID, err)
	}

	return problems, nil
}

// SyncResult is what the server reports after re-ingesting the catalog
type SyncResult struct {
	Inserted int64
	Updated  int64
}

// Sync asks the server to re-ingest the catalog from upstream
func (c *Client) Sync(ctx context.Context) (*SyncResult, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/contests/sync", nil)
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(resp)
	result := &SyncResult{
		Inserted: parsed.Get("inserted").Int(),
		Updated:  parsed.Get("updated").Int(),
	}

	slog.Info("catalog sync triggered", "inserted", result.Inserted, "updated", result.Updated)
	return result, nil
}

func (c *Client) get(ctx context.Context, url string, fresh bool) ([]byte, error) {
	if fresh {
		return c.cache.FetchFresh(ctx, url, rejectFailure)
	}
	return c.cache.FetchCached(ctx, url, rejectFailure)
}

// rejectFailure keeps {"success":false} documents out of the HTTP cache
func rejectFailure(body []byte) error {
	if ok := gjson.GetBytes(body, "success"); ok.Exists() && !ok.Bool() {
		return ErrAPIFailure
	}
	return nil
}

// doRequest performs an uncached HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &httpcache.NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &httpcache.NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	return respBody, nil
}
