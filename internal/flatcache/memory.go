package flatcache

import (
	"context"
	"sync"
)

// MemoryStore implements Store in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	size   int

	// MaxBytes, when positive, rejects writes that would grow the total size
	// of keys and values past it
	MaxBytes int

	// GetErr and SetErr are returned by Get and Set/Remove when non-nil
	GetErr error
	SetErr error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.size + len(key) + len(value)
	if old, ok := m.values[key]; ok {
		size -= len(key) + len(old)
	}
	if m.MaxBytes > 0 && size > m.MaxBytes {
		return ErrQuotaExceeded
	}
	m.values[key] = value
	m.size = size
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.values[key]; ok {
		m.size -= len(key) + len(old)
		delete(m.values, key)
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
