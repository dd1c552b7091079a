package cascade

import (
	"context"
	"fmt"

	"github.com/terra-clan/ladder-cache/internal/models"
	"github.com/terra-clan/ladder-cache/internal/sections"
)

// SaveSnapshot persists the section's contests and the problems held for
// them. Problems of an earlier snapshot are kept for contests not loaded in
// memory. A section that was never resolved is skipped.
func (c *Cascade) SaveSnapshot(ctx context.Context, section string) error {
	name, err := sections.Resolve(section)
	if err != nil {
		return err
	}

	contests, ok := c.state.Contests(name)
	if !ok || len(contests) == 0 {
		return nil
	}

	key := sections.Key(name)
	ids := models.ContestIDs(contests)
	problems := c.state.ProblemsFor(ids)

	if prev := c.snapshot(ctx, key); prev != nil {
		for _, id := range ids {
			if len(problems[id]) == 0 && len(prev.ProblemsByContestID[id]) > 0 {
				problems[id] = prev.ProblemsByContestID[id]
			}
		}
	}

	snap := models.SectionSnapshot{
		SectionKey:          key,
		Contests:            contests,
		ProblemsByContestID: problems,
	}
	if err := c.kv.PutSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", name, err)
	}
	return nil
}

// Missing returns the ids of the section's contests that have no problems
// in memory yet, in display order.
func (c *Cascade) Missing(section string) ([]int, error) {
	name, err := sections.Resolve(section)
	if err != nil {
		return nil, err
	}

	contests, _ := c.state.Contests(name)
	missing := make([]int, 0)
	for _, contest := range contests {
		if !c.state.HasProblems(contest.ID) {
			missing = append(missing, contest.ID)
		}
	}
	return missing, nil
}
