package memory

import (
	"context"
	"sync"

	audit "folio/pkg/platform/audit"
)

// InMemoryStore keeps entries in insertion order. Used by tests and when no
// log path is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// ListAll returns every entry, oldest first.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries...), nil
}

// Tail returns the most recent n entries, newest first.
func (s *InMemoryStore) Tail(_ context.Context, n int) ([]audit.Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := max(len(s.entries)-n, 0)
	out := make([]audit.Entry, 0, len(s.entries)-start)
	for i := len(s.entries) - 1; i >= start; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
