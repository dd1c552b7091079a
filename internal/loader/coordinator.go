// Package loader runs resumable background loads of a section's problems.
// Progress is persisted after every contest so a load survives restarts and
// can be stopped from another process by rewriting its record.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/ladder-cache/internal/models"
	"github.com/terra-clan/ladder-cache/internal/sections"
)

var (
	// ErrJobInterrupted ends a loop that observed a stop
	ErrJobInterrupted = errors.New("job interrupted")
	// ErrAlreadyRunning is returned when a section already has an active loop
	ErrAlreadyRunning = errors.New("job already running")
)

// Source is what a job loop reads through
type Source interface {
	ReloadProblems(ctx context.Context, contestID int) []models.Problem
	ReloadSection(ctx context.Context, section string) ([]models.Contest, error)
	SaveSnapshot(ctx context.Context, section string) error
}

// Options tunes the job loops
type Options struct {
	// Pace is the pause between two contests
	Pace time.Duration
	// StaleAfter is how long a running job of another process may go
	// without an update before it is taken over
	StaleAfter time.Duration
	// Owner identifies this process in job records; generated when empty
	Owner string
}

// DefaultOptions returns the default loop settings
func DefaultOptions() Options {
	return Options{
		Pace:       50 * time.Millisecond,
		StaleAfter: 2 * time.Minute,
	}
}

type run struct {
	id      string
	section string
	key     string
	abort   atomic.Bool
}

// Coordinator owns the active loops of this process, at most one per
// section.
type Coordinator struct {
	source Source
	jobs   *JobStore
	opts   Options
	events *broker

	// serializes read-modify-write of job records within the process
	recMu sync.Mutex

	mu     sync.Mutex
	active map[string]*run

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a coordinator
func NewCoordinator(source Source, jobs *JobStore, opts Options) *Coordinator {
	defaults := DefaultOptions()
	if opts.Pace < 0 {
		opts.Pace = 0
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaults.StaleAfter
	}
	if opts.Owner == "" {
		opts.Owner = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		source: source,
		jobs:   jobs,
		opts:   opts,
		events: newBroker(),
		active: make(map[string]*run),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Owner returns the id this process writes into job records
func (c *Coordinator) Owner() string {
	return c.opts.Owner
}

// Start creates a running job over contestIDs and starts its loop
func (c *Coordinator) Start(ctx context.Context, section string, contestIDs []int) (*models.Job, error) {
	name, err := sections.Resolve(section)
	if err != nil {
		return nil, err
	}
	key := sections.Key(name)

	if c.IsActive(name) {
		return nil, ErrAlreadyRunning
	}

	now := time.Now()
	ids := make([]int, len(contestIDs))
	copy(ids, contestIDs)
	job := &models.Job{
		Status:     models.JobRunning,
		ContestIDs: ids,
		StartedAt:  now,
		RunID:      uuid.NewString(),
		Owner:      c.opts.Owner,
		UpdatedAt:  now,
	}

	if err := c.launch(ctx, name, key, job); err != nil {
		return nil, err
	}

	slog.Info("job started", "section", name, "contests", len(ids), "run_id", job.RunID)
	return job, nil
}

// StartSection performs a hard reload: it re-reads the catalog, drops the
// in-memory problems and starts a job over every contest of the section.
func (c *Coordinator) StartSection(ctx context.Context, section string) (*models.Job, error) {
	name, err := sections.Resolve(section)
	if err != nil {
		return nil, err
	}
	if c.IsActive(name) {
		return nil, ErrAlreadyRunning
	}

	contests, err := c.source.ReloadSection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to reload section: %w", err)
	}

	return c.Start(ctx, name, models.ContestIDs(contests))
}

// Stop marks the section's job stopped. The loop notices before its next
// contest. It returns nil when the section has no job.
func (c *Coordinator) Stop(ctx context.Context, section string) (*models.Job, error) {
	name, err := sections.Resolve(section)
	if err != nil {
		return nil, err
	}
	key := sections.Key(name)

	c.mu.Lock()
	if r, ok := c.active[key]; ok {
		r.abort.Store(true)
	}
	c.mu.Unlock()

	job, err := c.update(ctx, key, func(job *models.Job) bool {
		if job.Status != models.JobRunning {
			return false
		}
		job.Status = models.JobStopped
		return true
	})
	if err != nil || job == nil {
		return job, err
	}

	c.events.publish(newEvent(EventStopped, name, key, job))
	slog.Info("job stopped", "section", name, "completed", job.Completed, "total", len(job.ContestIDs))
	return job, nil
}

// Resume restarts a stopped (or orphaned running) job from its cursor. A
// completed job is returned unchanged. It returns nil when there is no job.
func (c *Coordinator) Resume(ctx context.Context, section string) (*models.Job, error) {
	name, err := sections.Resolve(section)
	if err != nil {
		return nil, err
	}
	key := sections.Key(name)

	if c.IsActive(name) {
		return nil, ErrAlreadyRunning
	}

	job := c.jobs.Load(ctx, key)
	if job == nil || job.Status.IsTerminal() {
		return job, nil
	}

	return c.takeOver(ctx, name, key, job)
}

// ResumeIfRunning restarts the loop of a job persisted as running, e.g.
// after a restart. A job of another process is taken over only once its
// record is stale. It reports whether a loop was started.
func (c *Coordinator) ResumeIfRunning(ctx context.Context, section string) (bool, error) {
	name, err := sections.Resolve(section)
	if err != nil {
		return false, err
	}
	key := sections.Key(name)

	if c.IsActive(name) {
		return false, nil
	}

	job := c.jobs.Load(ctx, key)
	if job == nil || job.Status != models.JobRunning {
		return false, nil
	}

	if job.Owner != "" && job.Owner != c.opts.Owner && !job.IsStale(time.Now(), c.opts.StaleAfter) {
		slog.Info("job owned by another process", "section", name, "owner", job.Owner)
		return false, nil
	}

	if _, err := c.takeOver(ctx, name, key, job); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Status returns the persisted job of a section, or nil
func (c *Coordinator) Status(ctx context.Context, section string) (*models.Job, error) {
	name, err := sections.Resolve(section)
	if err != nil {
		return nil, err
	}
	return c.jobs.Load(ctx, sections.Key(name)), nil
}

// IsActive reports whether this process runs a loop for the section
func (c *Coordinator) IsActive(section string) bool {
	name, ok := sections.Lookup(section)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, active := c.active[sections.Key(name)]
	return active
}

// Subscribe returns the events of a section and a function that ends the
// subscription
func (c *Coordinator) Subscribe(section string) (<-chan JobEvent, func(), error) {
	name, err := sections.Resolve(section)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := c.events.subscribe(sections.Key(name))
	return ch, cancel, nil
}

// Wait blocks until every loop has exited
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels every loop and waits for them
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) takeOver(ctx context.Context, name, key string, job *models.Job) (*models.Job, error) {
	job.Status = models.JobRunning
	job.RunID = uuid.NewString()
	job.Owner = c.opts.Owner
	job.UpdatedAt = time.Now()

	if err := c.launch(ctx, name, key, job); err != nil {
		return nil, err
	}

	slog.Info("job resumed", "section", name, "completed", job.Completed, "total", len(job.ContestIDs), "run_id", job.RunID)
	return job, nil
}

// launch persists job and starts its loop
func (c *Coordinator) launch(ctx context.Context, name, key string, job *models.Job) error {
	if c.ctx.Err() != nil {
		return c.ctx.Err()
	}

	c.mu.Lock()
	if _, ok := c.active[key]; ok {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	r := &run{id: job.RunID, section: name, key: key}
	c.active[key] = r
	c.mu.Unlock()

	c.recMu.Lock()
	err := c.jobs.Save(ctx, key, job)
	c.recMu.Unlock()
	if err != nil {
		c.release(r)
		return err
	}

	c.events.publish(newEvent(EventStarted, name, key, job))

	c.wg.Add(1)
	go c.loop(r)
	return nil
}

func (c *Coordinator) release(r *run) {
	c.mu.Lock()
	if c.active[r.key] == r {
		delete(c.active, r.key)
	}
	c.mu.Unlock()
}

// update applies fn to the persisted job of key and saves it when fn
// reports a change
func (c *Coordinator) update(ctx context.Context, key string, fn func(*models.Job) bool) (*models.Job, error) {
	c.recMu.Lock()
	defer c.recMu.Unlock()

	job := c.jobs.Load(ctx, key)
	if job == nil {
		return nil, nil
	}
	if !fn(job) {
		return job, nil
	}
	job.UpdatedAt = time.Now()
	if err := c.jobs.Save(ctx, key, job); err != nil {
		return nil, err
	}
	return job, nil
}
