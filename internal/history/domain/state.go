package history

import (
	"sort"
	"time"
)

// DateLayout keys daily records by local calendar date.
const DateLayout = "2006-01-02"

// DailyUsageRecord is one per-day ledger line. Only the record for
// "today" is mutated in place; past dates are write-once.
type DailyUsageRecord struct {
	Date          string  `json:"date"`
	Usage         float64 `json:"usage"`
	Cost          float64 `json:"cost"`
	StartBalance  float64 `json:"start_balance"`
	RechargeTotal float64 `json:"recharge_total"`
	// Flagged marks a day whose raw balance delta was negative and
	// clamped to zero.
	Flagged bool `json:"flagged,omitempty"`
}

// RollingStats is a read-only fold over a date range of daily records.
type RollingStats struct {
	TotalDays int     `json:"total_days"`
	Average   float64 `json:"average"`
	Max       float64 `json:"max"`
	Min       float64 `json:"min"`
	Total     float64 `json:"total"`
}

// PersistedState is the durable reconciliation state for one account
// entry. It is owned exclusively by the history store; the engine works
// on a loaded copy and persists the whole state back atomically.
type PersistedState struct {
	EntryID string `json:"entry_id"`
	// Initialized flips to true on the first successful reconciliation
	// and never flips back.
	Initialized bool      `json:"initialized"`
	LastBalance float64   `json:"last_balance"`
	LastPollAt  time.Time `json:"last_poll_at"`
	// KnownRechargeIDs maps order id to the local date it was first
	// seen, so age-based pruning never has to guess.
	KnownRechargeIDs     map[string]string           `json:"known_recharge_ids"`
	DailyHistory         map[string]DailyUsageRecord `json:"daily_history"`
	MonthBaselineBalance float64                     `json:"month_baseline_balance"`
	MonthStartDate       string                      `json:"month_start_date"`
	CycleDescription     string                      `json:"cycle_description,omitempty"`
}

// NewPersistedState returns a fresh, uninitialized state for an entry.
func NewPersistedState(entryID string) *PersistedState {
	return &PersistedState{
		EntryID:          entryID,
		KnownRechargeIDs: make(map[string]string),
		DailyHistory:     make(map[string]DailyUsageRecord),
	}
}

// UpsertDay writes a daily record. The record for today may be replaced;
// any other existing date is write-once and silently kept.
func (s *PersistedState) UpsertDay(record DailyUsageRecord, today string) {
	if record.Date == "" {
		return
	}
	if record.Date != today {
		if _, exists := s.DailyHistory[record.Date]; exists {
			return
		}
	}
	if record.Usage < 0 {
		record.Usage = 0
		record.Flagged = true
	}
	if s.DailyHistory == nil {
		s.DailyHistory = make(map[string]DailyUsageRecord)
	}
	s.DailyHistory[record.Date] = record
}

// Get returns the record for a date, if present.
func (s *PersistedState) Get(date string) (DailyUsageRecord, bool) {
	record, ok := s.DailyHistory[date]
	return record, ok
}

// Days returns all daily records ordered by date ascending.
func (s *PersistedState) Days() []DailyUsageRecord {
	return s.DaysBetween("", "")
}

// DaysBetween returns daily records within [from, to], both inclusive and
// optional, ordered by date ascending.
func (s *PersistedState) DaysBetween(from, to string) []DailyUsageRecord {
	records := make([]DailyUsageRecord, 0, len(s.DailyHistory))
	for date, record := range s.DailyHistory {
		if from != "" && date < from {
			continue
		}
		if to != "" && date > to {
			continue
		}
		records = append(records, record)
	}
	sortDaily(records)
	return records
}

// RollingStats folds usage statistics over the given date range. Zero
// matching days yield all-zero stats, not an error.
func (s *PersistedState) RollingStats(from, to string) RollingStats {
	records := s.DaysBetween(from, to)
	stats := RollingStats{TotalDays: len(records)}
	if len(records) == 0 {
		return stats
	}
	stats.Min = records[0].Usage
	for _, record := range records {
		stats.Total += record.Usage
		if record.Usage > stats.Max {
			stats.Max = record.Usage
		}
		if record.Usage < stats.Min {
			stats.Min = record.Usage
		}
	}
	stats.Average = stats.Total / float64(len(records))
	return stats
}

// MonthRechargeTotal sums recharge totals attributed to days within the
// current billing month.
func (s *PersistedState) MonthRechargeTotal() float64 {
	if s.MonthStartDate == "" {
		return 0
	}
	var total float64
	for date, record := range s.DailyHistory {
		if date >= s.MonthStartDate {
			total += record.RechargeTotal
		}
	}
	return total
}

// MonthUsageTotal sums usage attributed to days within the current
// billing month.
func (s *PersistedState) MonthUsageTotal() float64 {
	if s.MonthStartDate == "" {
		return 0
	}
	var total float64
	for date, record := range s.DailyHistory {
		if date >= s.MonthStartDate {
			total += record.Usage
		}
	}
	return total
}

// PruneKnownRecharges drops order ids first seen more than retentionDays
// before today. Ids seen within the current billing month are never
// pruned, regardless of age.
func (s *PersistedState) PruneKnownRecharges(retentionDays int, today string) {
	if retentionDays <= 0 || len(s.KnownRechargeIDs) == 0 {
		return
	}
	day, err := time.Parse(DateLayout, today)
	if err != nil {
		return
	}
	cutoff := day.AddDate(0, 0, -retentionDays).Format(DateLayout)
	for id, seen := range s.KnownRechargeIDs {
		if seen >= cutoff {
			continue
		}
		if s.MonthStartDate != "" && seen >= s.MonthStartDate {
			continue
		}
		delete(s.KnownRechargeIDs, id)
	}
}

// Clone returns a deep copy detached from the receiver.
func (s *PersistedState) Clone() *PersistedState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.KnownRechargeIDs = make(map[string]string, len(s.KnownRechargeIDs))
	for id, seen := range s.KnownRechargeIDs {
		clone.KnownRechargeIDs[id] = seen
	}
	clone.DailyHistory = make(map[string]DailyUsageRecord, len(s.DailyHistory))
	for date, record := range s.DailyHistory {
		clone.DailyHistory[date] = record
	}
	return &clone
}

func sortDaily(records []DailyUsageRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date < records[j].Date
	})
}
