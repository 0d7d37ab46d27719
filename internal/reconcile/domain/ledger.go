package reconcile

import (
	"sort"

	account "gasledger/internal/account/domain"
)

// AbsorbRecharges dedups recharge events against the set of already known
// order ids. Events whose id is already known are dropped, so re-ingesting
// a poll that re-returns historical orders is idempotent. Fresh events are
// returned in ascending normalized-time order. The returned map is the
// union of the input ids and the newly seen ones, each fresh id tagged
// with seenDate; the input map is never mutated.
//
// Events with an empty order id or a zero normalized time are malformed
// and are neither counted nor remembered: a given order id is counted
// exactly once over the lifetime of the account, or never.
func AbsorbRecharges(events []account.RechargeEvent, known map[string]string, seenDate string) ([]account.RechargeEvent, map[string]string) {
	updated := make(map[string]string, len(known)+len(events))
	for id, date := range known {
		updated[id] = date
	}

	var fresh []account.RechargeEvent
	for _, event := range events {
		if event.OrderID == "" || event.CreatedAt.IsZero() {
			continue
		}
		if _, ok := updated[event.OrderID]; ok {
			continue
		}
		updated[event.OrderID] = seenDate
		fresh = append(fresh, event)
	}

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].CreatedAt.Before(fresh[j].CreatedAt)
	})
	return fresh, updated
}
