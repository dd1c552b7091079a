package models

import "time"

// JobStatus represents the state of a resumable section load
type JobStatus string

const (
	JobRunning   JobStatus = "running"   // Loop active or waiting to be resumed
	JobStopped   JobStatus = "stopped"   // Cancelled, resumable from the cursor
	JobCompleted JobStatus = "completed" // Cursor reached the end
)

// IsTerminal returns true if the job can not be resumed
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted
}

// Job is the persisted record of a background section load. Completed is a
// cursor into ContestIDs.
type Job struct {
	Status     JobStatus `json:"status"`
	ContestIDs []int     `json:"contestIds"`
	Completed  int       `json:"completed"`
	StartedAt  time.Time `json:"startedAt"`
	RunID      string    `json:"runId,omitempty"`
	Owner      string    `json:"owner,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Clamp keeps Completed within 0..len(ContestIDs).
func (j *Job) Clamp() {
	if j.Completed < 0 {
		j.Completed = 0
	}
	if j.Completed > len(j.ContestIDs) {
		j.Completed = len(j.ContestIDs)
	}
}

// Remaining returns the number of contests not processed yet.
func (j *Job) Remaining() int {
	return len(j.ContestIDs) - j.Completed
}

// IsStale reports whether the record has not been touched for longer than d.
func (j *Job) IsStale(now time.Time, d time.Duration) bool {
	return now.Sub(j.UpdatedAt) > d
}
