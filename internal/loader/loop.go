package loader

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/terra-clan/ladder-cache/internal/models"
)

const snapshotTimeout = 10 * time.Second

// loop processes one contest per iteration until the job completes or is
// interrupted. A snapshot of the section is saved however it exits.
func (c *Coordinator) loop(r *run) {
	defer c.wg.Done()
	defer c.release(r)
	defer c.saveSnapshot(r)

	err := c.iterate(c.ctx, r)
	switch {
	case err == nil:
	case errors.Is(err, ErrJobInterrupted):
		slog.Info("job loop exited", "section", r.section, "run_id", r.id)
	default:
		slog.Warn("job loop failed", "section", r.section, "run_id", r.id, "error", err)
	}
}

func (c *Coordinator) iterate(ctx context.Context, r *run) error {
	for {
		job := c.jobs.Load(ctx, r.key)
		if !c.owns(ctx, r, job) {
			return c.interrupted(r, job)
		}

		if job.Completed >= len(job.ContestIDs) {
			job, err := c.update(ctx, r.key, func(j *models.Job) bool {
				if j.RunID != r.id || j.Status != models.JobRunning {
					return false
				}
				j.Status = models.JobCompleted
				return true
			})
			if err != nil {
				return err
			}
			if job != nil && job.Status == models.JobCompleted {
				c.complete(r, job)
			}
			return nil
		}

		cursor := job.Completed
		contestID := job.ContestIDs[cursor]
		problems := c.source.ReloadProblems(ctx, contestID)

		next, err := c.update(ctx, r.key, func(j *models.Job) bool {
			if j.RunID != r.id || j.Completed != cursor {
				return false
			}
			j.Completed = cursor + 1
			if j.Completed >= len(j.ContestIDs) {
				j.Status = models.JobCompleted
			}
			return true
		})
		if err != nil {
			return err
		}
		if next == nil || next.RunID != r.id || next.Completed != cursor+1 {
			return c.interrupted(r, next)
		}

		ev := newEvent(EventProgress, r.section, r.key, next)
		ev.ContestID = contestID
		c.events.publish(ev)
		slog.Debug("job progress", "section", r.section, "contest_id", contestID, "problems", len(problems), "completed", next.Completed, "total", len(next.ContestIDs))

		if next.Status == models.JobCompleted {
			c.complete(r, next)
			return nil
		}
		if next.Status != models.JobRunning {
			return c.interrupted(r, next)
		}

		if err := sleep(ctx, c.opts.Pace); err != nil {
			return c.interrupted(r, next)
		}
	}
}

// owns reports whether the persisted record still belongs to this run and
// asks for more work
func (c *Coordinator) owns(ctx context.Context, r *run, job *models.Job) bool {
	if ctx.Err() != nil || r.abort.Load() {
		return false
	}
	return job != nil && job.Status == models.JobRunning && job.RunID == r.id
}

func (c *Coordinator) interrupted(r *run, job *models.Job) error {
	if job != nil {
		c.events.publish(newEvent(EventInterrupted, r.section, r.key, job))
	}
	return ErrJobInterrupted
}

func (c *Coordinator) complete(r *run, job *models.Job) {
	c.events.publish(newEvent(EventCompleted, r.section, r.key, job))
	slog.Info("job completed", "section", r.section, "contests", len(job.ContestIDs), "run_id", r.id)
}

func (c *Coordinator) saveSnapshot(r *run) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if err := c.source.SaveSnapshot(ctx, r.section); err != nil {
		slog.Warn("failed to save snapshot", "section", r.section, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
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
