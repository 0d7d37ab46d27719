package upstream

import "errors"

var (
	// ErrAuthExpired marks a rejected or expired access token. The caller
	// must not reconcile and must leave persisted state untouched.
	ErrAuthExpired = errors.New("upstream: auth expired")
	// ErrNetwork marks a transport-level failure.
	ErrNetwork = errors.New("upstream: network error")
	// ErrNoData marks a response without usable account data.
	ErrNoData = errors.New("upstream: no data")
)
