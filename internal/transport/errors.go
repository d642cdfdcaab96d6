package transport

import (
	"errors"
	"fmt"
)

var (
	ErrStall   = errors.New("no upload progress")
	ErrTimeout = errors.New("upload took too long")
	ErrAborted = errors.New("upload aborted")
)

// Kind classifies why an upload failed.
type Kind string

const (
	KindStatus  Kind = "status"
	KindNetwork Kind = "network"
	KindTimeout Kind = "timeout"
	KindStall   Kind = "stall"
	KindAborted Kind = "aborted"
)

type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("upload rejected with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a failure worth retrying as is:
// stalls, timeouts and connection errors.
func IsTransient(err error) bool {
	var terr *Error
	if !errors.As(err, &terr) {
		return false
	}

	switch terr.Kind {
	case KindStall, KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}

// StatusCode returns the HTTP status of a rejected upload, or 0.
func StatusCode(err error) int {
	var terr *Error
	if errors.As(err, &terr) && terr.Kind == KindStatus {
		return terr.StatusCode
	}
	return 0
}
