package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/terra-clan/ladder-cache/internal/models"
)

// MemoryStore implements KeyValueStore in process memory. Values are kept
// as encoded JSON so callers never share slices with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	problems  map[int][]byte
	snapshots map[string][]byte

	// Err, when set, is returned by every operation
	Err error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		problems:  make(map[int][]byte),
		snapshots: make(map[string][]byte),
	}
}

func (m *MemoryStore) PutProblems(_ context.Context, contestID int, problems []models.Problem) error {
	if m.Err != nil {
		return m.Err
	}
	payload, err := json.Marshal(problems)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.problems[contestID] = payload
	return nil
}

func (m *MemoryStore) GetProblems(_ context.Context, contestID int) ([]models.Problem, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	payload, ok := m.problems[contestID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	problems := []models.Problem{}
	if err := json.Unmarshal(payload, &problems); err != nil {
		return nil, nil
	}
	return problems, nil
}

func (m *MemoryStore) PutSnapshot(_ context.Context, snapshot models.SectionSnapshot) error {
	if m.Err != nil {
		return m.Err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.SectionKey] = payload
	return nil
}

func (m *MemoryStore) GetSnapshot(_ context.Context, sectionKey string) (*models.SectionSnapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	payload, ok := m.snapshots[sectionKey]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var snap models.SectionSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, nil
	}
	if snap.ProblemsByContestID == nil {
		snap.ProblemsByContestID = make(map[int][]models.Problem)
	}
	return &snap, nil
}

func (m *MemoryStore) Ping(context.Context) error { return m.Err }

func (m *MemoryStore) Close() error { return nil }
