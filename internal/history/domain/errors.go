package history

import "errors"

var (
	// ErrEmptyEntryID marks a store call without an entry identifier.
	ErrEmptyEntryID = errors.New("history: empty entry id")
	// ErrNilState marks an attempt to persist a nil state.
	ErrNilState = errors.New("history: nil state")
)
