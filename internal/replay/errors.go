package replay

import "errors"

var (
	// ErrInvalidOrdering is returned when journal entries are not in commit order.
	ErrInvalidOrdering = errors.New("journal entries are not in commit order")

	// ErrDivergence is returned when a replayed operation does not reproduce the recorded one.
	ErrDivergence = errors.New("replay diverged from journal")
)
