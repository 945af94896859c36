package transport

import (
	"errors"
	"fmt"
	"time"
)

// Transport owns a line-oriented command/response link to the instrument.
// Implementations serialize exchanges internally: only one command or query
// is ever in flight, so callers do not need their own locking for wire
// access. A transport never retries and never interprets responses.
type Transport interface {
	Open() error
	Close() error

	// WriteLine sends one command line. The line terminator is added by the
	// implementation.
	WriteLine(line string) error

	// QueryLine sends one query line and waits up to timeout for a single
	// terminated response line. A timeout surfaces as ErrTimeout (wrapped).
	QueryLine(line string, timeout time.Duration) (string, error)
}

// ErrTimeout marks a response that did not arrive in time. Callers that need
// to distinguish a slow instrument from a dead link test for this with
// errors.Is.
var ErrTimeout = errors.New("response timeout")

// ErrNotOpen is returned for exchanges on a closed link.
var ErrNotOpen = errors.New("link not open")

// Error wraps a hard link fault (open failed, write failed, read failed).
// Any Error other than a wrapped ErrTimeout is fatal to the operation that
// caused it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is a transport fault that should terminate the
// caller's sequence, as opposed to a bounded response timeout.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return !errors.Is(err, ErrTimeout)
}
