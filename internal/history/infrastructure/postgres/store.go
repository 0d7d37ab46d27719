package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	history "gasledger/internal/history/domain"
)

// Store persists entry state in Postgres: one JSONB document per entry
// plus normalized daily rows for SQL reporting. Save runs in a single
// transaction so a crash mid-write never leaves a partial state.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// NewStore constructs a Postgres-backed history store.
func NewStore(db *sql.DB, logger *log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres store: nil db")
	}
	return &Store{db: db, logger: logger}, nil
}

// EnsureSchema creates the backing tables when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS entry_state (
	entry_id   TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS daily_usage (
	entry_id       TEXT NOT NULL,
	day            DATE NOT NULL,
	usage          DOUBLE PRECISION NOT NULL,
	cost           DOUBLE PRECISION NOT NULL,
	start_balance  DOUBLE PRECISION NOT NULL,
	recharge_total DOUBLE PRECISION NOT NULL,
	flagged        BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (entry_id, day)
)`)
	return err
}

// Load reads the entry state. Missing rows yield a fresh uninitialized
// state; an undecodable document is logged loudly and also yields a
// fresh state rather than halting reconciliation.
func (s *Store) Load(ctx context.Context, entryID string) (*history.PersistedState, error) {
	if entryID == "" {
		return nil, history.ErrEmptyEntryID
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, `
SELECT state FROM entry_state WHERE entry_id = $1`, entryID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return history.NewPersistedState(entryID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load %s: %w", entryID, err)
	}

	state := history.NewPersistedState(entryID)
	if err := json.Unmarshal(payload, state); err != nil {
		if s.logger != nil {
			s.logger.Printf("postgres store: corrupt state entry=%s err=%v; starting fresh", entryID, err)
		}
		return history.NewPersistedState(entryID), nil
	}
	if state.KnownRechargeIDs == nil {
		state.KnownRechargeIDs = make(map[string]string)
	}
	if state.DailyHistory == nil {
		state.DailyHistory = make(map[string]history.DailyUsageRecord)
	}
	state.EntryID = entryID
	return state, nil
}

// Save upserts the state document and its daily rows transactionally.
func (s *Store) Save(ctx context.Context, state *history.PersistedState) error {
	if state == nil {
		return history.ErrNilState
	}
	if state.EntryID == "" {
		return history.ErrEmptyEntryID
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("postgres store: marshal state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO entry_state (entry_id, state, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (entry_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		state.EntryID, payload)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, record := range state.Days() {
		_, err := tx.ExecContext(ctx, `
INSERT INTO daily_usage (entry_id, day, usage, cost, start_balance, recharge_total, flagged)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (entry_id, day) DO UPDATE SET
	usage = EXCLUDED.usage,
	cost = EXCLUDED.cost,
	start_balance = EXCLUDED.start_balance,
	recharge_total = EXCLUDED.recharge_total,
	flagged = EXCLUDED.flagged`,
			state.EntryID, record.Date, record.Usage, record.Cost, record.StartBalance, record.RechargeTotal, record.Flagged)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
