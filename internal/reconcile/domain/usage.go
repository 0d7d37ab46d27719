package reconcile

import "math"

// UsageFigures holds derived usage and cost for one accounting window.
// RawCost keeps the signed value for debugging; Cost and Usage are
// clamped and never negative.
type UsageFigures struct {
	RawCost float64
	Cost    float64
	Usage   float64
	Clamped bool
}

// ComputeUsage reconstructs consumption cost from balance deltas:
//
//	cost = start_balance - current_balance + recharge_total
//
// Recharges increase the raw balance, which would otherwise read as
// negative usage. A negative computed cost (mid-cycle rebate) is clamped
// to zero for usage purposes while the raw value is retained. The usage
// quantity is derived from cost via unitPrice when positive.
func ComputeUsage(startBalance, currentBalance, rechargeTotal, unitPrice float64) UsageFigures {
	raw := startBalance - currentBalance + rechargeTotal
	figures := UsageFigures{RawCost: raw, Cost: raw}
	if raw < 0 {
		figures.Cost = 0
		figures.Clamped = true
	}
	if unitPrice > 0 {
		figures.Usage = figures.Cost / unitPrice
	}
	return figures
}

// QuantityDivergence returns the relative divergence between a directly
// reported quantity and the quantity implied by the computed cost. The
// reported value stays authoritative; large divergences are logged by the
// caller, never rejected.
func QuantityDivergence(reportedUsage, cost, unitPrice float64) float64 {
	if unitPrice <= 0 || reportedUsage <= 0 {
		return 0
	}
	implied := cost / unitPrice
	return math.Abs(implied-reportedUsage) / reportedUsage
}
