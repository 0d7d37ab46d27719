package instrumented

import (
	"context"
	"errors"
	"time"

	history "gasledger/internal/history/domain"
	"gasledger/internal/observability/metrics"
)

// Store decorates a history store with save metrics labeled by backend.
type Store struct {
	inner   history.Store
	backend string
}

// NewStore wraps a history store.
func NewStore(inner history.Store, backend string) (*Store, error) {
	if inner == nil {
		return nil, errors.New("instrumented store: nil inner store")
	}
	return &Store{inner: inner, backend: backend}, nil
}

// Load delegates to the wrapped store.
func (s *Store) Load(ctx context.Context, entryID string) (*history.PersistedState, error) {
	return s.inner.Load(ctx, entryID)
}

// Save delegates to the wrapped store and records the outcome.
func (s *Store) Save(ctx context.Context, state *history.PersistedState) error {
	started := time.Now()
	err := s.inner.Save(ctx, state)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveStoreSave(s.backend, result, time.Since(started))
	return err
}
