package activation

import "errors"

var (
	ErrActivationNotFound = errors.New("activation not found")
	ErrActivationExpired  = errors.New("activation expired")
	ErrActivationUnpaid   = errors.New("activation unpaid")
)
