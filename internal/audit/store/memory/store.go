package memory

import (
	"context"
	"sync"

	"simrelease/internal/audit"
)

// Store keeps audit entries in process, in append order.
type Store struct {
	mu      sync.RWMutex
	entries []audit.Entry
	err     error
}

func New() *Store {
	return &Store{}
}

// FailWith makes subsequent appends fail with err; nil restores success.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

// List returns matching entries, most recent first.
func (s *Store) List(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if !f.Matches(s.entries[i]) {
			continue
		}
		out = append(out, s.entries[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// All returns every entry in append order.
func (s *Store) All() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry(nil), s.entries...)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
