package records

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("receipt status changed")
)
