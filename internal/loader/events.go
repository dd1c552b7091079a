package loader

import (
	"sync"
	"time"

	"github.com/terra-clan/ladder-cache/internal/models"
)

// EventType describes what happened to a job
type EventType string

const (
	EventStatus      EventType = "status"
	EventStarted     EventType = "started"
	EventProgress    EventType = "progress"
	EventStopped     EventType = "stopped"
	EventCompleted   EventType = "completed"
	EventInterrupted EventType = "interrupted"
)

// JobEvent is published after every job state change
type JobEvent struct {
	Type       EventType        `json:"type"`
	Section    string           `json:"section"`
	SectionKey string           `json:"sectionKey"`
	Status     models.JobStatus `json:"status"`
	Completed  int              `json:"completed"`
	Total      int              `json:"total"`
	ContestID  int              `json:"contestId,omitempty"`
	Time       time.Time        `json:"time"`
}

func newEvent(t EventType, section, key string, job *models.Job) JobEvent {
	return JobEvent{
		Type:       t,
		Section:    section,
		SectionKey: key,
		Status:     job.Status,
		Completed:  job.Completed,
		Total:      len(job.ContestIDs),
		Time:       time.Now(),
	}
}

// broker fans job events out to subscribers of a section. Slow subscribers
// miss events instead of blocking the loop.
type broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan JobEvent]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[chan JobEvent]struct{})}
}

func (b *broker) subscribe(key string) (<-chan JobEvent, func()) {
	ch := make(chan JobEvent, 32)

	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[chan JobEvent]struct{})
	}
	b.subs[key][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[key], ch)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broker) publish(ev JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[ev.SectionKey] {
		select {
		case ch <- ev:
		default:
		}
	}
}
