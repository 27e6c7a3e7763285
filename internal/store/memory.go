package store

import (
	"context"
	"sync"
)

// MemoryStore keeps credentials in process memory. Used by tests and
// ephemeral runs where persistence across restarts is not wanted.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[Kind]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Kind]string)}
}

// Save stores the value for the kind.
func (s *MemoryStore) Save(_ context.Context, kind Kind, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[kind] = value
	return nil
}

// Load returns the stored value and whether it was present.
func (s *MemoryStore) Load(_ context.Context, kind Kind) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[kind]
	return value, ok, nil
}

// Clear removes the given kinds.
func (s *MemoryStore) Clear(_ context.Context, kinds ...Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range kinds {
		delete(s.values, kind)
	}
	return nil
}

// ClearAll removes every enumerated kind.
func (s *MemoryStore) ClearAll(ctx context.Context) error {
	return s.Clear(ctx, AllKinds()...)
}
