package reconcile

import (
	"sort"

	account "gasledger/internal/account/domain"
)

// ResolveTier finds the active price tier for a cumulative usage value.
// Tiers are scanned in ascending index order; the active tier is the
// first whose [lower, upper) interval contains the usage. The last tier
// is treated as open-ended when its declared upper bound is absent or
// non-positive, so an out-of-range usage always lands in the last tier.
// Only an empty tier list fails, with ErrNoApplicableTier.
func ResolveTier(cumulativeUsage float64, tiers []account.LadderTier) (account.LadderTier, error) {
	if len(tiers) == 0 {
		return account.LadderTier{}, ErrNoApplicableTier
	}
	if cumulativeUsage < 0 {
		return account.LadderTier{}, ErrNegativeUsage
	}

	ordered := sortedTiers(tiers)
	for i, tier := range ordered {
		last := i == len(ordered)-1
		if last || tier.OpenEnded() {
			if cumulativeUsage >= tier.LowerBound || last {
				return tier, nil
			}
			continue
		}
		if cumulativeUsage >= tier.LowerBound && cumulativeUsage < tier.UpperBound {
			return tier, nil
		}
	}
	return ordered[len(ordered)-1], nil
}

// DeriveUsageFromCost inverts the ladder schedule: given a cumulative
// cost within a cycle it returns the usage quantity that would produce it
// and the tier in which that quantity lands. Each bounded tier absorbs
// (upper-lower)*price of cost; the remainder falls into the next tier,
// with the final tier open-ended.
func DeriveUsageFromCost(cost float64, tiers []account.LadderTier) (float64, account.LadderTier, error) {
	if len(tiers) == 0 {
		return 0, account.LadderTier{}, ErrNoApplicableTier
	}
	if cost <= 0 {
		tier, err := ResolveTier(0, tiers)
		return 0, tier, err
	}

	ordered := sortedTiers(tiers)
	remaining := cost
	usage := 0.0
	for i, tier := range ordered {
		last := i == len(ordered)-1
		if tier.UnitPrice <= 0 {
			if last {
				return usage, tier, nil
			}
			continue
		}
		if last || tier.OpenEnded() {
			return usage + remaining/tier.UnitPrice, tier, nil
		}
		span := tier.UpperBound - tier.LowerBound
		capacity := span * tier.UnitPrice
		if remaining < capacity {
			return usage + remaining/tier.UnitPrice, tier, nil
		}
		usage += span
		remaining -= capacity
	}
	lastTier := ordered[len(ordered)-1]
	return usage, lastTier, nil
}

func sortedTiers(tiers []account.LadderTier) []account.LadderTier {
	ordered := make([]account.LadderTier, len(tiers))
	copy(ordered, tiers)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})
	return ordered
}
