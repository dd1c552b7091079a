package cascade

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/ladder-cache/internal/flatcache"
	"github.com/terra-clan/ladder-cache/internal/models"
	"github.com/terra-clan/ladder-cache/internal/sections"
)

// ResolveSection returns the contests of a section, most recent first.
//
// Tiers are tried in order: the per-section flat entry, the global flat
// list, the section's structured snapshot and finally the catalog API. A
// hit is promoted into the faster flat entries and problem prefetch is
// scheduled in the background. forceUpdate skips every cache tier.
//
// When the network fails with nothing cached the error is a
// *SectionLoadError and the contests are whatever the section last showed.
func (c *Cascade) ResolveSection(ctx context.Context, section string, forceUpdate bool) ([]models.Contest, error) {
	name, err := sections.Resolve(section)
	if err != nil {
		return nil, err
	}
	key := sections.Key(name)

	if !forceUpdate {
		if contests, ok := c.fromFlatSection(ctx, name, key); ok {
			c.settle(name, contests, true)
			return contests, nil
		}
		if contests, ok := c.fromFlatGlobal(ctx, name, key); ok {
			c.settle(name, contests, true)
			return contests, nil
		}
		if contests, ok := c.fromSnapshot(ctx, name, key); ok {
			c.settle(name, contests, false)
			return contests, nil
		}
	}

	contests, err := c.fromNetwork(ctx, name, forceUpdate)
	if err != nil {
		slog.Warn("failed to load section", "section", name, "error", err)
		prior, _ := c.state.Contests(name)
		return prior, &SectionLoadError{Section: name, Warning: WarningLoadFailed, Err: err}
	}

	c.settle(name, contests, false)
	return contests, nil
}

// UpdateContests asks the server to re-sync the catalog, then reloads the
// section from the network and refreshes every cache tier.
func (c *Cascade) UpdateContests(ctx context.Context, section string) ([]models.Contest, error) {
	name, err := sections.Resolve(section)
	if err != nil {
		return nil, err
	}

	if _, err := c.remote.Sync(ctx); err != nil {
		slog.Warn("catalog sync failed", "section", name, "error", err)
		prior, _ := c.state.Contests(name)
		return prior, &SectionLoadError{Section: name, Warning: WarningLoadFailed, Err: err}
	}

	return c.ResolveSection(ctx, name, true)
}

// ReloadSection reads the catalog (cache first), persists every flat tier,
// drops the in-memory problems and returns the section's contests. It backs
// a hard reload.
func (c *Cascade) ReloadSection(ctx context.Context, section string) ([]models.Contest, error) {
	name, err := sections.Resolve(section)
	if err != nil {
		return nil, err
	}

	contests, err := c.fromNetwork(ctx, name, false)
	if err != nil {
		return nil, &SectionLoadError{Section: name, Warning: WarningLoadFailed, Err: err}
	}

	c.state.ResetProblems()
	c.state.SetContests(name, contests)
	return contests, nil
}

// EnsureSectionCaches rebuilds the per-section flat entries when any of them
// is missing: from the global flat list if present, otherwise from each
// section's structured snapshot. It returns how many entries were written.
func (c *Cascade) EnsureSectionCaches(ctx context.Context) int {
	missing := false
	for _, name := range sections.All() {
		if _, ok := c.flat.Get(ctx, flatcache.SectionKey(sections.Key(name))); !ok {
			missing = true
			break
		}
	}
	if !missing {
		return 0
	}

	written := 0
	if global := c.flat.Contests(ctx, flatcache.KeyContestsAll); len(global) > 0 {
		for _, name := range sections.All() {
			if c.flat.PutContests(ctx, flatcache.SectionKey(sections.Key(name)), sections.Filter(global, name)) == nil {
				written++
			}
		}
		slog.Info("section caches rebuilt from global list", "sections", written)
		return written
	}

	for _, name := range sections.All() {
		key := sections.Key(name)
		snap := c.snapshot(ctx, key)
		if snap == nil || len(snap.Contests) == 0 {
			continue
		}
		if c.flat.PutContests(ctx, flatcache.SectionKey(key), sections.Filter(snap.Contests, name)) == nil {
			written++
		}
	}
	if written > 0 {
		slog.Info("section caches rebuilt from snapshots", "sections", written)
	}
	return written
}

// CatalogUpdatedAt returns when the global contest list was last fetched
func (c *Cascade) CatalogUpdatedAt(ctx context.Context) (time.Time, bool) {
	return c.flat.Timestamp(ctx, flatcache.KeyContestsAllTS)
}

func (c *Cascade) fromFlatSection(ctx context.Context, name, key string) ([]models.Contest, bool) {
	cached := c.flat.Contests(ctx, flatcache.SectionKey(key))
	if len(cached) == 0 {
		return nil, false
	}
	slog.Debug("section from flat cache", "section", name)
	return sections.Filter(cached, name), true
}

func (c *Cascade) fromFlatGlobal(ctx context.Context, name, key string) ([]models.Contest, bool) {
	global := c.flat.Contests(ctx, flatcache.KeyContestsAll)
	if len(global) == 0 {
		return nil, false
	}
	contests := sections.Filter(global, name)
	_ = c.flat.PutContests(ctx, flatcache.SectionKey(key), contests)
	slog.Debug("section from global flat list", "section", name)
	return contests, true
}

func (c *Cascade) fromSnapshot(ctx context.Context, name, key string) ([]models.Contest, bool) {
	snap := c.snapshot(ctx, key)
	if snap == nil || len(snap.Contests) == 0 {
		return nil, false
	}
	contests := sections.Filter(snap.Contests, name)
	_ = c.flat.PutContests(ctx, flatcache.SectionKey(key), contests)
	if n := c.state.MergeProblems(snap.ProblemsByContestID); n > 0 {
		slog.Debug("merged snapshot problems", "section", name, "contests", n)
	}
	slog.Debug("section from snapshot", "section", name)
	return contests, true
}

// fromNetwork fetches the whole catalog and persists the global list, its
// timestamp and all eight per-section entries. Concurrent callers share one
// request, which runs detached from any single caller: a caller that goes
// away stops waiting but the others still get the result.
func (c *Cascade) fromNetwork(ctx context.Context, name string, fresh bool) ([]models.Contest, error) {
	flight := "cached"
	if fresh {
		flight = "fresh"
	}

	ch := c.catalogFetch.DoChan(flight, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(c.bgCtx, catalogFetchTimeout)
		defer cancel()

		all, err := c.remote.ContestsByCategory(fetchCtx, fresh)
		if err != nil {
			return nil, err
		}
		c.persistCatalog(fetchCtx, all)
		return all, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			slog.Debug("shared catalog fetch", "section", name)
		}
		return sections.Filter(res.Val.([]models.Contest), name), nil
	}
}

func (c *Cascade) persistCatalog(ctx context.Context, all []models.Contest) {
	_ = c.flat.PutContests(ctx, flatcache.KeyContestsAll, all)
	_ = c.flat.SetTimestamp(ctx, flatcache.KeyContestsAllTS, time.Now())
	for _, name := range sections.All() {
		_ = c.flat.PutContests(ctx, flatcache.SectionKey(sections.Key(name)), sections.Filter(all, name))
	}
	slog.Info("catalog cached", "contests", len(all))
}

func (c *Cascade) snapshot(ctx context.Context, key string) *models.SectionSnapshot {
	snap, err := c.kv.GetSnapshot(ctx, key)
	if err != nil {
		slog.Warn("snapshot read failed", "section_key", key, "error", err)
		return nil
	}
	return snap
}

// settle records the resolved list and schedules background warm-up
func (c *Cascade) settle(name string, contests []models.Contest, mergeSnapshot bool) {
	c.state.SetContests(name, contests)

	ids := models.ContestIDs(contests)
	c.background("warm "+name, func(ctx context.Context) {
		if mergeSnapshot {
			if snap := c.snapshot(ctx, sections.Key(name)); snap != nil {
				c.state.MergeProblems(snap.ProblemsByContestID)
			}
		}
		c.WarmFirstPage(ctx, contests)
		if c.opts.PrefetchAll {
			if err := c.Prefetch(ctx, ids); err != nil {
				slog.Debug("prefetch stopped", "section", name, "error", err)
			}
		}
	})
}
