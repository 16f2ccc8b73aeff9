package correlator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDevice is returned by CreatePending for an empty device ID.
	ErrInvalidDevice = errors.New("correlator: device is required")

	// ErrTimeout is the outcome of a request whose deadline passed unanswered.
	ErrTimeout = errors.New("correlator: timed out waiting for device")

	// ErrCanceled is wrapped by CanceledError.
	ErrCanceled = errors.New("correlator: request canceled")

	// ErrClosed is returned once the correlator has been shut down.
	ErrClosed = errors.New("correlator: closed")
)

// CanceledError is the outcome of a request aborted by Cancel or CancelWaiter.
type CanceledError struct {
	Device string
	Reason string
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("%v: device %q: %s", ErrCanceled, e.Device, e.Reason)
}

// Unwrap lets errors.Is match ErrCanceled.
func (e *CanceledError) Unwrap() error {
	return ErrCanceled
}
