package command

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/esplink/internal/correlator"
)

// Sender publishes a command. *Publisher satisfies it.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
}

// Correlator is the subset of *correlator.Correlator used by Service.
type Correlator interface {
	CreatePending(device string) (*correlator.Waiter, error)
	CancelWaiter(w *correlator.Waiter, reason string) bool
}

// Logger defines the logging interface used by Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Metrics receives per-command measurements.
type Metrics interface {
	CommandIssued()
	CommandCompleted(outcome string, latency time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) CommandIssued()                         {}
func (noopMetrics) CommandCompleted(string, time.Duration) {}

// Service issues commands and waits for the device to confirm them.
type Service struct {
	correlator Correlator
	sender     Sender
	logger     Logger
	metrics    Metrics
}

// NewService creates a Service.
func NewService(c Correlator, s Sender) *Service {
	return &Service{
		correlator: c,
		sender:     s,
		logger:     noopLogger{},
		metrics:    noopMetrics{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMetrics sets the metrics sink for the service.
func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

// Issue publishes cmd and blocks until the device reports its status, the
// correlator deadline passes, or ctx ends.
//
// The pending request is registered before publishing so a fast device
// cannot answer before anyone is listening. If publishing fails, or ctx ends
// first, the request is withdrawn; a newer request for the same device is
// left untouched.
func (s *Service) Issue(ctx context.Context, cmd Command) Result {
	start := time.Now()
	s.metrics.CommandIssued()

	res := s.issue(ctx, cmd)

	s.metrics.CommandCompleted(string(res.Outcome), time.Since(start))
	if res.Success {
		s.logger.Info("device controlled", "device", cmd.Device, "status", res.Status, "duration", time.Since(start))
	} else {
		s.logger.Warn("device control failed",
			"device", cmd.Device,
			"requested_status", cmd.Status,
			"outcome", res.Outcome,
			"message", res.Message,
		)
	}
	return res
}

func (s *Service) issue(ctx context.Context, cmd Command) Result {
	if err := cmd.Validate(); err != nil {
		return failed(cmd, OutcomeInvalid, err.Error())
	}

	w, err := s.correlator.CreatePending(cmd.Device)
	if err != nil {
		return failed(cmd, outcomeOf(err), err.Error())
	}

	if err := s.sender.Send(ctx, cmd); err != nil {
		s.correlator.CancelWaiter(w, err.Error())
		if errors.Is(err, ErrPublish) {
			return failed(cmd, OutcomePublishFailed, err.Error())
		}
		return failed(cmd, outcomeOf(err), err.Error())
	}
	s.logger.Debug("command published", "device", cmd.Device, "status", cmd.Status, "request_id", w.ID())

	ev, err := w.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.correlator.CancelWaiter(w, "caller abandoned request")
		}
		return failed(cmd, outcomeOf(err), messageOf(err))
	}

	t := ev.Time
	return Result{
		Success: true,
		Message: MessageSuccess,
		Device:  ev.Device,
		Status:  ev.Status,
		Time:    &t,
		Outcome: OutcomeResolved,
	}
}

func failed(cmd Command, outcome Outcome, message string) Result {
	return Result{
		Success:         false,
		Message:         message,
		Device:          cmd.Device,
		RequestedStatus: cmd.Status,
		Outcome:         outcome,
	}
}

func outcomeOf(err error) Outcome {
	switch {
	case errors.Is(err, correlator.ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, correlator.ErrClosed):
		return OutcomeClosed
	case errors.Is(err, ErrInvalidCommand), errors.Is(err, correlator.ErrInvalidDevice):
		return OutcomeInvalid
	default:
		return OutcomeCanceled
	}
}

func messageOf(err error) string {
	if errors.Is(err, correlator.ErrTimeout) {
		return MessageTimeout
	}
	var ce *correlator.CanceledError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return err.Error()
}
