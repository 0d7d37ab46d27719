package account

import "time"

// AccountSnapshot is one point-in-time read of an account from the remote
// API. It is consumed once per reconciliation cycle and never persisted
// directly.
type AccountSnapshot struct {
	Balance float64
	Arrears float64

	// Figures reported directly by the remote API. A reported month usage
	// greater than zero is authoritative over the locally computed value.
	ReportedMonthUsage float64
	ReportedMonthCost  float64
	TotalUsage         float64
	AvailableDays      int
	LastMonthBalance   float64
	MonthEstimateCost  float64

	RechargeEvents   []RechargeEvent
	LadderTiers      []LadderTier
	CycleDescription string
	DailyUsage       []ReportedDailyUsage

	FetchedAt time.Time
}

// RechargeEvent is a single recharge order returned by the remote API.
// Identity is OrderID: two events with the same id are the same real-world
// transaction regardless of amount drift.
type RechargeEvent struct {
	OrderID      string
	Amount       float64
	CreatedAtRaw string
	// CreatedAt is the normalized local instant, zero until normalization.
	CreatedAt time.Time
}

// LadderTier is one band of the stepped price schedule. Tiers are read
// fresh from each snapshot; they are a pure function input, not state.
type LadderTier struct {
	Index      int
	LowerBound float64
	// UpperBound <= 0 marks an open-ended tier.
	UpperBound       float64
	UnitPrice        float64
	CycleDescription string
}

// OpenEnded reports whether the tier has no declared upper bound.
func (t LadderTier) OpenEnded() bool {
	return t.UpperBound <= 0
}

// ReportedDailyUsage is one per-day usage figure as reported by the remote
// API, keyed by local calendar date.
type ReportedDailyUsage struct {
	Date  string
	Usage float64
}
