package cascade

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/ladder-cache/internal/models"
)

// WarmFirstPage loads the first page of contests into memory from the
// durable tiers only. It never touches the network.
func (c *Cascade) WarmFirstPage(ctx context.Context, contests []models.Contest) int {
	warmed := 0
	for _, contest := range models.Page(contests, 1, c.opts.PageSize) {
		if ctx.Err() != nil {
			break
		}
		if c.state.HasProblems(contest.ID) {
			continue
		}
		if problems, ok := c.fromCaches(ctx, contest.ID); ok {
			c.state.SetProblems(contest.ID, problems)
			warmed++
		}
	}
	return warmed
}

// Prefetch loads problems for every id not yet in memory. Ids are processed
// in chunks; inside a chunk a fixed number of workers pull the next index
// from a shared cursor. A short delay separates chunks.
func (c *Cascade) Prefetch(ctx context.Context, ids []int) error {
	pending := make([]int, 0, len(ids))
	for _, id := range ids {
		if !c.state.HasProblems(id) {
			pending = append(pending, id)
		}
	}

	for start := 0; start < len(pending); start += c.opts.PrefetchChunk {
		end := min(start+c.opts.PrefetchChunk, len(pending))
		if err := c.prefetchChunk(ctx, pending[start:end]); err != nil {
			return err
		}
		if end < len(pending) {
			if err := sleepCtx(ctx, c.opts.ChunkDelay); err != nil {
				return err
			}
		}
	}

	if len(pending) > 0 {
		slog.Debug("prefetch finished", "contests", len(pending))
	}
	return nil
}

func (c *Cascade) prefetchChunk(ctx context.Context, chunk []int) error {
	workers := min(c.opts.PrefetchConcurrency, len(chunk))
	var cursor atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(cursor.Add(1)) - 1
				if i >= len(chunk) {
					return nil
				}
				c.loadContest(gctx, chunk[i])
			}
		})
	}

	return g.Wait()
}

// loadContest resolves one contest unless it is already held or in flight
func (c *Cascade) loadContest(ctx context.Context, contestID int) {
	if c.state.HasProblems(contestID) || c.state.Loading(contestID) {
		return
	}
	c.state.SetLoading(contestID, true)
	defer c.state.SetLoading(contestID, false)

	c.ResolveProblems(ctx, contestID, false)
}
