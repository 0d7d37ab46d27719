package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	history "gasledger/internal/history/domain"
)

// Store persists one JSON state document per entry under a root
// directory. Writes go to a temporary file first and are renamed into
// place, so a crash mid-write never leaves a half-written state readable
// by the next Load.
type Store struct {
	root   string
	logger *log.Logger
}

// NewStore constructs a file store rooted at dir.
func NewStore(dir string, logger *log.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("file store: empty root dir")
	}
	return &Store{root: dir, logger: logger}, nil
}

// Load reads the state for an entry. A missing file yields a fresh
// uninitialized state; an unreadable or corrupt file is logged loudly
// and also yields a fresh state, never an error that halts the caller.
func (s *Store) Load(ctx context.Context, entryID string) (*history.PersistedState, error) {
	_ = ctx
	if entryID == "" {
		return nil, history.ErrEmptyEntryID
	}

	data, err := os.ReadFile(s.path(entryID))
	if err != nil {
		if !os.IsNotExist(err) && s.logger != nil {
			s.logger.Printf("file store: unreadable state entry=%s err=%v; starting fresh", entryID, err)
		}
		return history.NewPersistedState(entryID), nil
	}

	state := history.NewPersistedState(entryID)
	if err := json.Unmarshal(data, state); err != nil {
		if s.logger != nil {
			s.logger.Printf("file store: corrupt state entry=%s err=%v; starting fresh", entryID, err)
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

// Save writes the state atomically: marshal, write to a temp file in the
// same directory, then rename over the previous document.
func (s *Store) Save(ctx context.Context, state *history.PersistedState) error {
	_ = ctx
	if state == nil {
		return history.ErrNilState
	}
	if state.EntryID == "" {
		return history.ErrEmptyEntryID
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: marshal state: %w", err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("file store: create root: %w", err)
	}

	target := s.path(state.EntryID)
	tmp, err := os.CreateTemp(s.root, state.EntryID+".*.tmp")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: close temp: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("file store: replace state: %w", err)
	}
	return nil
}

func (s *Store) path(entryID string) string {
	return filepath.Join(s.root, entryID+".json")
}
