package history

import "errors"

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("history: not found")

	// ErrInvalidQuery is returned for an unknown sort column, direction or
	// search column.
	ErrInvalidQuery = errors.New("history: invalid query")
)
