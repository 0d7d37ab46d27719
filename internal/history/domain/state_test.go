package history

import (
	"testing"
	"time"
)

func TestRollingStatsZeroDays(t *testing.T) {
	state := NewPersistedState("entry-1")
	stats := state.RollingStats("", "")
	if stats.TotalDays != 0 || stats.Average != 0 || stats.Max != 0 || stats.Min != 0 || stats.Total != 0 {
		t.Fatalf("expected all-zero stats, got %+v", stats)
	}
}

func TestRollingStatsFold(t *testing.T) {
	state := NewPersistedState("entry-1")
	state.DailyHistory = map[string]DailyUsageRecord{
		"2026-01-29": {Date: "2026-01-29", Usage: 2},
		"2026-01-30": {Date: "2026-01-30", Usage: 6},
		"2026-01-31": {Date: "2026-01-31", Usage: 4},
	}

	stats := state.RollingStats("", "")
	if stats.TotalDays != 3 {
		t.Fatalf("expected 3 days, got %d", stats.TotalDays)
	}
	if stats.Average != 4 || stats.Max != 6 || stats.Min != 2 || stats.Total != 12 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	ranged := state.RollingStats("2026-01-30", "2026-01-31")
	if ranged.TotalDays != 2 || ranged.Total != 10 {
		t.Fatalf("unexpected ranged stats: %+v", ranged)
	}
}

func TestUpsertDayPastDatesWriteOnce(t *testing.T) {
	state := NewPersistedState("entry-1")
	state.UpsertDay(DailyUsageRecord{Date: "2026-01-30", Usage: 3}, "2026-01-31")
	state.UpsertDay(DailyUsageRecord{Date: "2026-01-30", Usage: 99}, "2026-01-31")

	record, ok := state.Get("2026-01-30")
	if !ok {
		t.Fatalf("expected record for 2026-01-30")
	}
	if record.Usage != 3 {
		t.Fatalf("past date overwritten: usage %v", record.Usage)
	}

	state.UpsertDay(DailyUsageRecord{Date: "2026-01-31", Usage: 1}, "2026-01-31")
	state.UpsertDay(DailyUsageRecord{Date: "2026-01-31", Usage: 2}, "2026-01-31")
	record, _ = state.Get("2026-01-31")
	if record.Usage != 2 {
		t.Fatalf("today must be upsertable: usage %v", record.Usage)
	}
}

func TestUpsertDayClampsNegativeUsage(t *testing.T) {
	state := NewPersistedState("entry-1")
	state.UpsertDay(DailyUsageRecord{Date: "2026-01-31", Usage: -5}, "2026-01-31")
	record, _ := state.Get("2026-01-31")
	if record.Usage != 0 {
		t.Fatalf("negative usage must be clamped, got %v", record.Usage)
	}
	if !record.Flagged {
		t.Fatalf("clamped record must be flagged")
	}
}

func TestDaysBetweenSorted(t *testing.T) {
	state := NewPersistedState("entry-1")
	for _, date := range []string{"2026-01-31", "2026-01-29", "2026-01-30"} {
		state.DailyHistory[date] = DailyUsageRecord{Date: date}
	}
	days := state.Days()
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	for i := 1; i < len(days); i++ {
		if days[i].Date <= days[i-1].Date {
			t.Fatalf("days not ascending: %s before %s", days[i-1].Date, days[i].Date)
		}
	}
}

func TestPruneKnownRechargesRespectsMonth(t *testing.T) {
	state := NewPersistedState("entry-1")
	state.MonthStartDate = "2026-01-01"
	state.KnownRechargeIDs = map[string]string{
		"old":        "2024-06-01",
		"this-month": "2026-01-05",
		"recent":     "2025-12-20",
	}

	state.PruneKnownRecharges(400, "2026-01-31")

	if _, ok := state.KnownRechargeIDs["old"]; ok {
		t.Fatalf("expected old id pruned")
	}
	if _, ok := state.KnownRechargeIDs["this-month"]; !ok {
		t.Fatalf("current-month id must never be pruned")
	}
	if _, ok := state.KnownRechargeIDs["recent"]; !ok {
		t.Fatalf("id within retention must be kept")
	}
}

func TestPruneKnownRechargesKeepsCurrentMonthEvenWhenAged(t *testing.T) {
	state := NewPersistedState("entry-1")
	state.MonthStartDate = "2024-01-01"
	state.KnownRechargeIDs = map[string]string{"in-cycle": "2024-01-02"}

	// Retention window of 30 days would normally drop it.
	state.PruneKnownRecharges(30, "2024-03-01")
	if _, ok := state.KnownRechargeIDs["in-cycle"]; !ok {
		t.Fatalf("id referenced by the active month must survive pruning")
	}
}

func TestMonthTotals(t *testing.T) {
	state := NewPersistedState("entry-1")
	state.MonthStartDate = "2026-01-01"
	state.DailyHistory = map[string]DailyUsageRecord{
		"2025-12-31": {Date: "2025-12-31", Usage: 9, RechargeTotal: 100},
		"2026-01-30": {Date: "2026-01-30", Usage: 3, RechargeTotal: 50},
		"2026-01-31": {Date: "2026-01-31", Usage: 4, RechargeTotal: 0},
	}
	if total := state.MonthRechargeTotal(); total != 50 {
		t.Fatalf("expected month recharge 50, got %v", total)
	}
	if total := state.MonthUsageTotal(); total != 7 {
		t.Fatalf("expected month usage 7, got %v", total)
	}
}

func TestCloneDetached(t *testing.T) {
	state := NewPersistedState("entry-1")
	state.Initialized = true
	state.LastPollAt = time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	state.KnownRechargeIDs["R1"] = "2026-01-31"
	state.DailyHistory["2026-01-31"] = DailyUsageRecord{Date: "2026-01-31", Usage: 4}

	clone := state.Clone()
	clone.KnownRechargeIDs["R2"] = "2026-02-01"
	clone.DailyHistory["2026-02-01"] = DailyUsageRecord{Date: "2026-02-01"}

	if len(state.KnownRechargeIDs) != 1 || len(state.DailyHistory) != 1 {
		t.Fatalf("clone not detached: %+v", state)
	}
}
