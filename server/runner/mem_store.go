package runner

import (
	"slices"
	"sync"
)

// MemoryStore keeps the deployment record in memory only (no persistence).
type MemoryStore struct {
	rec DeploymentRecord
	mu  sync.Mutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored record.
func (s *MemoryStore) Load() DeploymentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.rec
	rec.Services = slices.Clone(s.rec.Services)
	return rec
}

// Save stores the record in memory.
func (s *MemoryStore) Save(rec DeploymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Services = slices.Clone(rec.Services)
	s.rec = rec
	return nil
}

// Clear forgets the stored record.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec = DeploymentRecord{}
	return nil
}
