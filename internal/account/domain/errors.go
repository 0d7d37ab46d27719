package account

import "errors"

var (
	// ErrEmptyOrderID marks a recharge event without a stable identity.
	ErrEmptyOrderID = errors.New("account: empty order id")
	// ErrEmptyEntryID marks a missing account entry identifier.
	ErrEmptyEntryID = errors.New("account: empty entry id")
)
