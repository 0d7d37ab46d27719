package memory

import (
	"context"
	"sync"

	history "gasledger/internal/history/domain"
)

// Store is an in-memory history store for demo/testing.
type Store struct {
	mu   sync.RWMutex
	data map[string]*history.PersistedState
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]*history.PersistedState)}
}

// Load returns a detached copy of the entry state, or a fresh state when
// the entry is unknown.
func (s *Store) Load(ctx context.Context, entryID string) (*history.PersistedState, error) {
	_ = ctx
	if entryID == "" {
		return nil, history.ErrEmptyEntryID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.data[entryID]; ok {
		return state.Clone(), nil
	}
	return history.NewPersistedState(entryID), nil
}

// Save stores a detached copy keyed by entry id.
func (s *Store) Save(ctx context.Context, state *history.PersistedState) error {
	_ = ctx
	if state == nil {
		return history.ErrNilState
	}
	if state.EntryID == "" {
		return history.ErrEmptyEntryID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[state.EntryID] = state.Clone()
	return nil
}
