package reconcile

import (
	"errors"
	"math"
	"testing"

	account "gasledger/internal/account/domain"
)

func ladder() []account.LadderTier {
	return []account.LadderTier{
		{Index: 1, LowerBound: 0, UpperBound: 360, UnitPrice: 2.61},
		{Index: 2, LowerBound: 360, UpperBound: 600, UnitPrice: 3.13},
		{Index: 3, LowerBound: 600, UpperBound: 0, UnitPrice: 3.92},
	}
}

func TestResolveTierIntervals(t *testing.T) {
	tiers := ladder()
	cases := []struct {
		usage float64
		index int
	}{
		{0, 1},
		{359.99, 1},
		{360, 2},
		{599.99, 2},
		{600, 3},
		{99999, 3},
	}
	for _, tc := range cases {
		tier, err := ResolveTier(tc.usage, tiers)
		if err != nil {
			t.Fatalf("usage %v: %v", tc.usage, err)
		}
		if tier.Index != tc.index {
			t.Fatalf("usage %v: expected tier %d, got %d", tc.usage, tc.index, tier.Index)
		}
	}
}

func TestResolveTierUnsortedInput(t *testing.T) {
	tiers := []account.LadderTier{ladder()[2], ladder()[0], ladder()[1]}
	tier, err := ResolveTier(400, tiers)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tier.Index != 2 {
		t.Fatalf("expected tier 2, got %d", tier.Index)
	}
}

func TestResolveTierDeclaredUpperBoundOnLastTier(t *testing.T) {
	// A declared bound on the last tier still does not reject usage
	// beyond it: out of range falls into the last tier.
	tiers := []account.LadderTier{
		{Index: 1, LowerBound: 0, UpperBound: 100, UnitPrice: 2},
		{Index: 2, LowerBound: 100, UpperBound: 200, UnitPrice: 3},
	}
	tier, err := ResolveTier(5000, tiers)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tier.Index != 2 {
		t.Fatalf("expected last tier, got %d", tier.Index)
	}
}

func TestResolveTierEmptyList(t *testing.T) {
	if _, err := ResolveTier(10, nil); !errors.Is(err, ErrNoApplicableTier) {
		t.Fatalf("expected ErrNoApplicableTier, got %v", err)
	}
}

func TestDeriveUsageFromCostWithinFirstTier(t *testing.T) {
	usage, tier, err := DeriveUsageFromCost(261, ladder())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if math.Abs(usage-100) > 1e-9 {
		t.Fatalf("expected usage 100, got %v", usage)
	}
	if tier.Index != 1 {
		t.Fatalf("expected tier 1, got %d", tier.Index)
	}
}

func TestDeriveUsageFromCostSpansTiers(t *testing.T) {
	tiers := ladder()
	// Tier 1 absorbs 360*2.61 = 939.6; 100 more at 3.13 lands in tier 2.
	cost := 360*2.61 + 100*3.13
	usage, tier, err := DeriveUsageFromCost(cost, tiers)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if math.Abs(usage-460) > 1e-9 {
		t.Fatalf("expected usage 460, got %v", usage)
	}
	if tier.Index != 2 {
		t.Fatalf("expected tier 2, got %d", tier.Index)
	}
}

func TestDeriveUsageFromCostZero(t *testing.T) {
	usage, tier, err := DeriveUsageFromCost(0, ladder())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if usage != 0 || tier.Index != 1 {
		t.Fatalf("expected zero usage in tier 1, got %v tier %d", usage, tier.Index)
	}
}
