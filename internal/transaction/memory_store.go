package transaction

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory transaction store for demo/development mode.
type MemoryStore struct {
	records map[string]*Record
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

func (m *MemoryStore) Create(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	// Deep copy so callers never share the escrow event slices with the
	// stored record; only Update mutates stored state.
	return rec.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.ID]; !ok {
		return ErrNotFound
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, status Status) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*Record{}
	for _, rec := range m.records {
		if rec.Status == status {
			result = append(result, rec.Clone())
		}
	}
	return result, nil
}
