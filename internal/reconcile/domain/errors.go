package reconcile

import "errors"

var (
	// ErrMalformedTimestamp marks a recharge timestamp that cannot be
	// parsed at all. Callers drop the single event and keep processing.
	ErrMalformedTimestamp = errors.New("reconcile: malformed timestamp")
	// ErrNoApplicableTier is returned only for an empty tier list.
	ErrNoApplicableTier = errors.New("reconcile: no applicable tier")
	// ErrNegativeUsage marks a cumulative usage below zero.
	ErrNegativeUsage = errors.New("reconcile: negative cumulative usage")
)
