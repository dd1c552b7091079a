package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/terra-clan/ladder-cache/internal/models"
)

const (
	problemsBucket = "problems"
	metaBucket     = "meta"
)

// BoltStore implements KeyValueStore on a local BoltDB file
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) a BoltDB store at path
func OpenBolt(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage db: %w", err)
	}

	store := &BoltStore{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *BoltStore) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{problemsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// PutProblems replaces the problem list of a contest
func (s *BoltStore) PutProblems(ctx context.Context, contestID int, problems []models.Problem) error {
	return s.put(ctx, problemsBucket, problemsKey(contestID), problems)
}

// GetProblems returns the problem list of a contest, or nil if absent
func (s *BoltStore) GetProblems(ctx context.Context, contestID int) ([]models.Problem, error) {
	var problems []models.Problem
	found, err := s.get(ctx, problemsBucket, problemsKey(contestID), &problems)
	if err != nil || !found {
		return nil, err
	}
	if problems == nil {
		problems = []models.Problem{}
	}
	return problems, nil
}

// PutSnapshot replaces the snapshot of a section
func (s *BoltStore) PutSnapshot(ctx context.Context, snapshot models.SectionSnapshot) error {
	return s.put(ctx, metaBucket, SnapshotKey(snapshot.SectionKey), snapshot)
}

// GetSnapshot returns the snapshot of a section, or nil if absent
func (s *BoltStore) GetSnapshot(ctx context.Context, sectionKey string) (*models.SectionSnapshot, error) {
	var snap models.SectionSnapshot
	found, err := s.get(ctx, metaBucket, SnapshotKey(sectionKey), &snap)
	if err != nil || !found {
		return nil, err
	}
	snap.SectionKey = sectionKey
	if snap.ProblemsByContestID == nil {
		snap.ProblemsByContestID = make(map[int][]models.Problem)
	}
	return &snap, nil
}

// Ping checks that the database is open
func (s *BoltStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.View(func(tx *bbolt.Tx) error { return nil })
}

// Close closes the underlying BoltDB database
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) put(ctx context.Context, bucket, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", bucket, key, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%s bucket is missing", bucket)
		}
		return b.Put([]byte(key), payload)
	})
}

// get decodes the value under key into dst. A value that fails to decode is
// reported as absent.
func (s *BoltStore) get(ctx context.Context, bucket, key string, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%s bucket is missing", bucket)
		}
		if v := b.Get([]byte(key)); v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to read %s/%s: %w", bucket, key, err)
	}
	if payload == nil {
		return false, nil
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		slog.Warn("corrupt store entry", "bucket", bucket, "key", key, "error", err)
		return false, nil
	}
	return true, nil
}
