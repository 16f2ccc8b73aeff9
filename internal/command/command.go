package command

import (
	"fmt"
	"strings"
	"time"
)

// Command asks a device to change state.
type Command struct {
	Device string `json:"device"`
	Status string `json:"status"`
}

// Validate checks that both fields are present.
func (c Command) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Device) == "" {
		missing = append(missing, "device")
	}
	if strings.TrimSpace(c.Status) == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidCommand, strings.Join(missing, " and "))
	}
	return nil
}

// Outcome classifies how an issued command ended.
type Outcome string

// Command outcomes, also used as metric labels.
const (
	OutcomeResolved      Outcome = "resolved"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeCanceled      Outcome = "canceled"
	OutcomeClosed        Outcome = "closed"
	OutcomePublishFailed Outcome = "publish_failed"
	OutcomeInvalid       Outcome = "invalid"
)

// Result messages shown to operators.
const (
	MessageSuccess = "Device controlled successfully"
	MessageTimeout = "Timeout: No response from device"
)

// Result is the caller-facing answer to Issue.
//
// On success Device, Status and Time come from the device's own status
// report. On failure Device and RequestedStatus echo the command.
type Result struct {
	Success         bool       `json:"success"`
	Message         string     `json:"message"`
	Device          string     `json:"device"`
	Status          string     `json:"status,omitempty"`
	RequestedStatus string     `json:"requestedStatus,omitempty"`
	Time            *time.Time `json:"time,omitempty"`
	Outcome         Outcome    `json:"-"`
}
