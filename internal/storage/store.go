package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/terra-clan/ladder-cache/internal/models"
)

// KeyValueStore is the structured local store. It holds two tables: problem
// lists by contest id and section snapshots by section key. Values are
// replaced whole; a reader never observes a partially written value.
// Get methods return nil, nil when the key is absent.
type KeyValueStore interface {
	PutProblems(ctx context.Context, contestID int, problems []models.Problem) error
	GetProblems(ctx context.Context, contestID int) ([]models.Problem, error)

	PutSnapshot(ctx context.Context, snapshot models.SectionSnapshot) error
	GetSnapshot(ctx context.Context, sectionKey string) (*models.SectionSnapshot, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// SnapshotKey returns the meta table key of a section snapshot.
func SnapshotKey(sectionKey string) string {
	return fmt.Sprintf("snapshot_%s", sectionKey)
}

func problemsKey(contestID int) string {
	return strconv.Itoa(contestID)
}
