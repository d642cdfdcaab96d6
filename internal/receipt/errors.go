package receipt

import "errors"

var (
	ErrRecordUpdate   = errors.New("receipt record update failed")
	ErrNotRecoverable = errors.New("no cached receipt to retry")
	ErrNoDraft        = errors.New("no cached receipt for draft")
)
