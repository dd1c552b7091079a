// Package flatcache is the simple string-keyed durable tier. Values are JSON
// blobs. The typed helpers read a value that fails to decode as absent, and
// log and swallow write failures.
package flatcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/terra-clan/ladder-cache/internal/models"
)

// Durable keys
const (
	KeyContestsAll   = "contests_all"
	KeyContestsAllTS = "contests_all_ts"

	sectionPrefix  = "contests_all_section_"
	problemsPrefix = "problems_"
	jobPrefix      = "job_"
)

// ErrQuotaExceeded is returned by a backend that refuses a write for space.
var ErrQuotaExceeded = errors.New("flat cache quota exceeded")

// SectionKey returns the key of a section's contest list
func SectionKey(sectionKey string) string {
	return sectionPrefix + sectionKey
}

// ProblemsKey returns the key of a contest's problem list
func ProblemsKey(contestID int) string {
	return problemsPrefix + strconv.Itoa(contestID)
}

// JobKey returns the key of a section's resumable job record
func JobKey(sectionKey string) string {
	return jobPrefix + sectionKey
}

// Store is a synchronous string-keyed backend. Get reports false when the
// key is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Cache wraps a Store with JSON helpers that never fail the caller
type Cache struct {
	store Store
}

// New creates a Cache over store
func New(store Store) *Cache {
	return &Cache{store: store}
}

// Store returns the underlying backend
func (c *Cache) Store() Store {
	return c.store
}

// Get returns the raw value of key. Backend errors read as a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	value, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("flat cache read failed", "key", key, "error", err)
		return "", false
	}
	return value, ok
}

// Set writes a raw value. Failures are logged and returned.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	if err := c.store.Set(ctx, key, value); err != nil {
		slog.Warn("flat cache write failed", "key", key, "error", err)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Remove deletes a key. Failures are logged and returned.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if err := c.store.Remove(ctx, key); err != nil {
		slog.Warn("flat cache remove failed", "key", key, "error", err)
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the value of key into dst. Invalid JSON reads as absent.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		slog.Debug("ignoring corrupt flat cache entry", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return c.Set(ctx, key, string(payload))
}

// Contests returns the contest list stored under key, or nil when absent
func (c *Cache) Contests(ctx context.Context, key string) []models.Contest {
	var contests []models.Contest
	if !c.GetJSON(ctx, key, &contests) {
		return nil
	}
	if contests == nil {
		contests = []models.Contest{}
	}
	return contests
}

// PutContests stores a contest list under key
func (c *Cache) PutContests(ctx context.Context, key string, contests []models.Contest) error {
	if contests == nil {
		contests = []models.Contest{}
	}
	return c.SetJSON(ctx, key, contests)
}

// Problems returns the cached problem list of a contest. The second result
// is false when nothing usable is stored.
func (c *Cache) Problems(ctx context.Context, contestID int) ([]models.Problem, bool) {
	var problems []models.Problem
	if !c.GetJSON(ctx, ProblemsKey(contestID), &problems) {
		return nil, false
	}
	if problems == nil {
		problems = []models.Problem{}
	}
	return problems, true
}

// PutProblems stores the problem list of a contest
func (c *Cache) PutProblems(ctx context.Context, contestID int, problems []models.Problem) error {
	return c.SetJSON(ctx, ProblemsKey(contestID), problems)
}

// SetTimestamp stores t in unix milliseconds under key
func (c *Cache) SetTimestamp(ctx context.Context, key string, t time.Time) error {
	return c.Set(ctx, key, strconv.FormatInt(t.UnixMilli(), 10))
}

// Timestamp reads a unix-milliseconds timestamp written by SetTimestamp
func (c *Cache) Timestamp(ctx context.Context, key string) (time.Time, bool) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
