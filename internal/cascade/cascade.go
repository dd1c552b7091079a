// Package cascade resolves contests and problems across the cache tiers:
// in-memory state, the structured store, the flat cache and finally the
// catalog API, promoting what it finds into the faster tiers.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/terra-clan/ladder-cache/internal/catalog"
	"github.com/terra-clan/ladder-cache/internal/flatcache"
	"github.com/terra-clan/ladder-cache/internal/models"
	"github.com/terra-clan/ladder-cache/internal/sections"
	"github.com/terra-clan/ladder-cache/internal/storage"
)

// ErrUnknownSection is returned for a section name outside the fixed set
var ErrUnknownSection = sections.ErrUnknown

// WarningLoadFailed is shown to the user when a section could not be loaded
const WarningLoadFailed = "Could not load contests from the server. Showing cached data if available."

// SectionLoadError carries the user-visible warning of a failed section load
type SectionLoadError struct {
	Section string
	Warning string
	Err     error
}

func (e *SectionLoadError) Error() string {
	return fmt.Sprintf("failed to load section %s: %v", e.Section, e.Err)
}

func (e *SectionLoadError) Unwrap() error {
	return e.Err
}

// Remote is the catalog API as seen by the cascade
type Remote interface {
	ContestsByCategory(ctx context.Context, fresh bool) ([]models.Contest, error)
	ContestProblems(ctx context.Context, contestID int, fresh bool) ([]models.Problem, error)
	Sync(ctx context.Context) (*catalog.SyncResult, error)
}

// catalogFetchTimeout bounds one shared catalog request
const catalogFetchTimeout = 2 * time.Minute

// Options tunes the background prefetch
type Options struct {
	PageSize            int
	PrefetchChunk       int
	PrefetchConcurrency int
	ChunkDelay          time.Duration
	// PrefetchAll schedules every contest of a resolved section, not only
	// the first page.
	PrefetchAll bool
}

// DefaultOptions returns the dashboard defaults
func DefaultOptions() Options {
	return Options{
		PageSize:            models.DefaultPageSize,
		PrefetchChunk:       12,
		PrefetchConcurrency: 4,
		ChunkDelay:          50 * time.Millisecond,
		PrefetchAll:         true,
	}
}

// Cascade owns the read path and the in-memory tier
type Cascade struct {
	kv     storage.KeyValueStore
	flat   *flatcache.Cache
	remote Remote
	state  *State
	opts   Options

	catalogFetch singleflight.Group

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New creates a cascade over the given tiers
func New(kv storage.KeyValueStore, flat *flatcache.Cache, remote Remote, opts Options) *Cascade {
	defaults := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = defaults.PageSize
	}
	if opts.PrefetchChunk <= 0 {
		opts.PrefetchChunk = defaults.PrefetchChunk
	}
	if opts.PrefetchConcurrency <= 0 {
		opts.PrefetchConcurrency = defaults.PrefetchConcurrency
	}
	if opts.ChunkDelay < 0 {
		opts.ChunkDelay = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Cascade{
		kv:       kv,
		flat:     flat,
		remote:   remote,
		state:    NewState(),
		opts:     opts,
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// State returns the in-memory tier
func (c *Cascade) State() *State {
	return c.state
}

// ResolvedSections lists the sections resolved so far
func (c *Cascade) ResolvedSections() []string {
	return c.state.Sections()
}

// Options returns the effective options
func (c *Cascade) Options() Options {
	return c.opts
}

// Wait blocks until scheduled background work has finished
func (c *Cascade) Wait() {
	c.bg.Wait()
}

// Close cancels background work and waits for it
func (c *Cascade) Close() {
	c.bgCancel()
	c.bg.Wait()
}

// background runs fn detached from the caller's context
func (c *Cascade) background(name string, fn func(ctx context.Context)) {
	if c.bgCtx.Err() != nil {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background task panicked", "task", name, "panic", r)
			}
		}()
		fn(c.bgCtx)
	}()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
