package registrystore

import (
	"context"
	"sync"

	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

// MemoryStore is an in-process, mutex-guarded Store. It is the default
// used by the CLI and by tests: a single compiler process never needs
// Postgres just to resolve its own nested-machine references.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Name] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, name string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	if !ok {
		return Record{}, cerr.NotFound("state machine", name)
	}
	return rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
