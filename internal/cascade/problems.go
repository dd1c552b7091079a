package cascade

import (
	"context"
	"log/slog"

	"github.com/terra-clan/ladder-cache/internal/models"
)

// ResolveProblems returns the problems of a contest. The structured store is
// tried first, then the flat cache, then the catalog API; a network hit is
// written through to both durable tiers. With forceNetwork the cache tiers
// are skipped and the HTTP cache is bypassed. It never fails: when nothing
// is available the result is an empty slice.
func (c *Cascade) ResolveProblems(ctx context.Context, contestID int, forceNetwork bool) []models.Problem {
	if !forceNetwork {
		if problems, ok := c.fromCaches(ctx, contestID); ok {
			c.state.SetProblems(contestID, problems)
			return problems
		}
	}

	problems, err := c.remote.ContestProblems(ctx, contestID, forceNetwork)
	if err == nil && len(problems) > 0 {
		c.writeProblems(ctx, contestID, problems)
		c.state.SetProblems(contestID, problems)
		return problems
	}
	if err != nil {
		slog.Warn("failed to fetch contest problems", "contest_id", contestID, "error", err)
	}

	if problems, ok := c.fromCaches(ctx, contestID); ok {
		c.state.SetProblems(contestID, problems)
		return problems
	}
	if held, ok := c.state.Problems(contestID); ok {
		return held
	}
	return []models.Problem{}
}

// RefreshContest re-reads one contest from the network and merges it into
// the in-memory tier. On failure the previously cached problems are kept.
func (c *Cascade) RefreshContest(ctx context.Context, contestID int) []models.Problem {
	c.state.SetLoading(contestID, true)
	defer c.state.SetLoading(contestID, false)

	problems := c.ResolveProblems(ctx, contestID, true)
	slog.Info("contest refreshed", "contest_id", contestID, "problems", len(problems))
	return problems
}

// ReloadProblems loads one contest for a hard reload: the durable tiers
// are kept when they hold problems, otherwise the network is read with the
// HTTP cache bypassed.
func (c *Cascade) ReloadProblems(ctx context.Context, contestID int) []models.Problem {
	if problems, ok := c.fromCaches(ctx, contestID); ok {
		c.state.SetProblems(contestID, problems)
		return problems
	}
	return c.ResolveProblems(ctx, contestID, true)
}

// CachedProblems reads a contest from the durable tiers only
func (c *Cascade) CachedProblems(ctx context.Context, contestID int) ([]models.Problem, bool) {
	return c.fromCaches(ctx, contestID)
}

// fromCaches reads the structured store then the flat cache
func (c *Cascade) fromCaches(ctx context.Context, contestID int) ([]models.Problem, bool) {
	problems, err := c.kv.GetProblems(ctx, contestID)
	if err != nil {
		slog.Warn("structured store read failed", "contest_id", contestID, "error", err)
	} else if len(problems) > 0 {
		slog.Debug("problems from structured store", "contest_id", contestID)
		return problems, true
	}

	if problems, ok := c.flat.Problems(ctx, contestID); ok && len(problems) > 0 {
		slog.Debug("problems from flat cache", "contest_id", contestID)
		return problems, true
	}

	return nil, false
}

// writeProblems stores a network result in both durable tiers. Failures
// are logged and do not affect the result.
func (c *Cascade) writeProblems(ctx context.Context, contestID int, problems []models.Problem) {
	if err := c.kv.PutProblems(ctx, contestID, problems); err != nil {
		slog.Warn("structured store write failed", "contest_id", contestID, "error", err)
	}
	_ = c.flat.PutProblems(ctx, contestID, problems)
}
