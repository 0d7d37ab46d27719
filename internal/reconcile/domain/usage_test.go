package reconcile

import (
	"math"
	"testing"
)

func TestComputeUsageBalanceDelta(t *testing.T) {
	figures := ComputeUsage(500, 380, 0, 3.0)
	if figures.Cost != 120 {
		t.Fatalf("expected cost 120, got %v", figures.Cost)
	}
	if figures.RawCost != 120 {
		t.Fatalf("expected raw cost 120, got %v", figures.RawCost)
	}
	if figures.Clamped {
		t.Fatalf("unexpected clamp")
	}
	if figures.Usage != 40 {
		t.Fatalf("expected usage 40, got %v", figures.Usage)
	}
}

func TestComputeUsageSameDayRecharge(t *testing.T) {
	// A recharge raises the balance; the recharge total restores the
	// consumption picture: 500 - 380 + 50 = 170.
	figures := ComputeUsage(500, 380, 50, 0)
	if figures.Cost != 170 {
		t.Fatalf("expected cost 170, got %v", figures.Cost)
	}
	if figures.Usage != 0 {
		t.Fatalf("expected zero usage without unit price, got %v", figures.Usage)
	}
}

func TestComputeUsageClampsNegative(t *testing.T) {
	// A mid-cycle rebate makes the raw value negative; the clamped cost
	// is zero but the raw signed value is retained.
	figures := ComputeUsage(100, 180, 0, 2.5)
	if figures.RawCost != -80 {
		t.Fatalf("expected raw cost -80, got %v", figures.RawCost)
	}
	if figures.Cost != 0 || figures.Usage != 0 {
		t.Fatalf("expected clamped cost/usage 0, got %v/%v", figures.Cost, figures.Usage)
	}
	if !figures.Clamped {
		t.Fatalf("expected clamp flag")
	}
}

func TestComputeUsageIdentityHolds(t *testing.T) {
	cases := []struct {
		start, current, recharge float64
	}{
		{500, 380, 0},
		{500, 380, 50},
		{0, 0, 0},
		{12.5, 80.25, 100},
		{100, 180, 0},
	}
	for _, tc := range cases {
		figures := ComputeUsage(tc.start, tc.current, tc.recharge, 1)
		want := tc.start - tc.current + tc.recharge
		if math.Abs(figures.RawCost-want) > 1e-9 {
			t.Fatalf("raw cost identity broken: got %v, want %v", figures.RawCost, want)
		}
		if figures.Cost < 0 || figures.Usage < 0 {
			t.Fatalf("clamped values must never be negative: %+v", figures)
		}
	}
}

func TestQuantityDivergence(t *testing.T) {
	// cost 120 at price 3.0 implies 40; reported 50 diverges by 20%.
	divergence := QuantityDivergence(50, 120, 3.0)
	if math.Abs(divergence-0.2) > 1e-9 {
		t.Fatalf("expected divergence 0.2, got %v", divergence)
	}
	if QuantityDivergence(0, 120, 3.0) != 0 {
		t.Fatalf("expected zero divergence without reported usage")
	}
	if QuantityDivergence(50, 120, 0) != 0 {
		t.Fatalf("expected zero divergence without unit price")
	}
}
