package history

import "context"

// Store loads and persists per-entry reconciliation state.
//
// Load on a missing or unreadable store returns a fresh uninitialized
// state rather than an error: loss of history degrades gracefully, it
// never halts reconciliation. Save is atomic with respect to process
// crash; a failed save leaves the previously persisted state readable.
type Store interface {
	Load(ctx context.Context, entryID string) (*PersistedState, error)
	Save(ctx context.Context, state *PersistedState) error
}
