package command

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCommand is returned for a command missing its device or status.
	ErrInvalidCommand = errors.New("command: invalid command")

	// ErrPublish is wrapped by PublishError.
	ErrPublish = errors.New("command: publish failed")
)

// PublishError reports a command that could not be handed to the broker.
type PublishError struct {
	Device string
	Topic  string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%v: device %q on %s: %v", ErrPublish, e.Device, e.Topic, e.Err)
}

// Unwrap matches both ErrPublish and the transport cause.
func (e *PublishError) Unwrap() []error {
	return []error{ErrPublish, e.Err}
}
