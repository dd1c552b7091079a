// Package snapshot periodically persists section snapshots.
package snapshot

import (
	"context"
	"log/slog"
	"time"
)

// Source lists resolved sections and saves their snapshots
type Source interface {
	ResolvedSections() []string
	SaveSnapshot(ctx context.Context, section string) error
}

// Worker saves a snapshot of every resolved section on an interval
type Worker struct {
	source   Source
	interval time.Duration
	done     chan struct{}
}

// NewWorker creates a snapshot worker
func NewWorker(source Source, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &Worker{
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the worker in a goroutine
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Wait blocks until a started worker has made its final pass
func (w *Worker) Wait() {
	<-w.done
}

// run is the main loop of the worker. A final pass runs on shutdown.
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	slog.Info("snapshot worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.SaveAll(flushCtx)
			cancel()
			slog.Info("snapshot worker stopped")
			return
		case <-ticker.C:
			w.SaveAll(ctx)
		}
	}
}

// SaveAll saves one snapshot per resolved section and returns how many
// were written
func (w *Worker) SaveAll(ctx context.Context) int {
	saved := 0
	for _, section := range w.source.ResolvedSections() {
		if err := w.source.SaveSnapshot(ctx, section); err != nil {
			slog.Warn("failed to save snapshot", "section", section, "error", err)
			continue
		}
		saved++
	}

	if saved > 0 {
		slog.Debug("snapshots saved", "sections", saved)
	}
	return saved
}
