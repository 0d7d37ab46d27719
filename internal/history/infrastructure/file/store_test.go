package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	history "gasledger/internal/history/domain"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	state := history.NewPersistedState("entry-1")
	state.Initialized = true
	state.LastBalance = 380.5
	state.LastPollAt = time.Date(2026, 1, 31, 9, 31, 3, 0, time.UTC)
	state.MonthBaselineBalance = 500
	state.MonthStartDate = "2026-01-01"
	state.CycleDescription = "annual ladder cycle"
	state.KnownRechargeIDs = map[string]string{"R1": "2026-01-31", "R2": "2026-01-15"}
	state.DailyHistory = map[string]history.DailyUsageRecord{
		"2026-01-30": {Date: "2026-01-30", Usage: 3.2, Cost: 8.35, StartBalance: 420, RechargeTotal: 0},
		"2026-01-31": {Date: "2026-01-31", Usage: 4.1, Cost: 10.7, StartBalance: 391, RechargeTotal: 100, Flagged: false},
	}

	if err := store.Save(context.Background(), state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(context.Background(), "entry-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Initialized || loaded.LastBalance != state.LastBalance {
		t.Fatalf("scalar fields not reproduced: %+v", loaded)
	}
	if !loaded.LastPollAt.Equal(state.LastPollAt) {
		t.Fatalf("last poll at not reproduced: %v", loaded.LastPollAt)
	}
	if loaded.MonthBaselineBalance != 500 || loaded.MonthStartDate != "2026-01-01" {
		t.Fatalf("month baseline not reproduced: %+v", loaded)
	}
	if len(loaded.KnownRechargeIDs) != 2 || loaded.KnownRechargeIDs["R1"] != "2026-01-31" {
		t.Fatalf("known ids not reproduced: %v", loaded.KnownRechargeIDs)
	}
	for date, want := range state.DailyHistory {
		got, ok := loaded.DailyHistory[date]
		if !ok {
			t.Fatalf("missing daily record %s", date)
		}
		if got != want {
			t.Fatalf("daily record %s: got %+v, want %+v", date, got, want)
		}
	}
}

func TestLoadMissingYieldsFreshState(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	state, err := store.Load(context.Background(), "entry-x")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Initialized {
		t.Fatalf("fresh state must be uninitialized")
	}
	if state.EntryID != "entry-x" {
		t.Fatalf("expected entry id set, got %q", state.EntryID)
	}
	if state.KnownRechargeIDs == nil || state.DailyHistory == nil {
		t.Fatalf("fresh state maps must be allocated")
	}
}

func TestLoadCorruptYieldsFreshState(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "entry-1.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	state, err := store.Load(context.Background(), "entry-1")
	if err != nil {
		t.Fatalf("corrupt load must not fail the caller: %v", err)
	}
	if state.Initialized || len(state.DailyHistory) != 0 {
		t.Fatalf("expected fresh state, got %+v", state)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	state := history.NewPersistedState("entry-1")
	if err := store.Save(context.Background(), state); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "entry-1.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only entry-1.json, got %v", names)
	}
}
