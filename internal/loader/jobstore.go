package loader

import (
	"context"
	"fmt"

	"github.com/terra-clan/ladder-cache/internal/flatcache"
	"github.com/terra-clan/ladder-cache/internal/models"
)

// JobStore persists job records in the flat cache under job_<sectionKey>.
// The persisted record, not in-memory state, decides whether a loop keeps
// running.
type JobStore struct {
	flat *flatcache.Cache
}

// NewJobStore creates a job store over the flat cache
func NewJobStore(flat *flatcache.Cache) *JobStore {
	return &JobStore{flat: flat}
}

// Load returns the job of a section, or nil when none is stored or the
// record is unreadable
func (s *JobStore) Load(ctx context.Context, sectionKey string) *models.Job {
	var job models.Job
	if !s.flat.GetJSON(ctx, flatcache.JobKey(sectionKey), &job) {
		return nil
	}
	if job.Status == "" {
		return nil
	}
	job.Clamp()
	return &job
}

// Save writes the job record of a section
func (s *JobStore) Save(ctx context.Context, sectionKey string, job *models.Job) error {
	if err := s.flat.SetJSON(ctx, flatcache.JobKey(sectionKey), job); err != nil {
		return fmt.Errorf("failed to save job %s: %w", sectionKey, err)
	}
	return nil
}

// Delete removes the job record of a section
func (s *JobStore) Delete(ctx context.Context, sectionKey string) error {
	return s.flat.Remove(ctx, flatcache.JobKey(sectionKey))
}
