package telemetry

import (
	"errors"
	"fmt"
)

// ErrDecode is the sentinel wrapped by every DecodeError.
//
//	if errors.Is(err, telemetry.ErrDecode) {
//	    // drop the message
//	}
var ErrDecode = errors.New("telemetry: decode failed")

// DecodeError describes why a payload could not be decoded.
type DecodeError struct {
	// Field is the offending JSON field, empty when the payload as a whole is bad.
	Field string

	// Reason is a short human-readable description.
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrDecode, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrDecode, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrDecode.
func (e *DecodeError) Unwrap() error {
	return ErrDecode
}

func decodeErr(field, reason string) *DecodeError {
	return &DecodeError{Field: field, Reason: reason}
}
