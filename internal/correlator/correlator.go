package correlator

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/esplink/internal/telemetry"
)

// DefaultTimeout is how long a device has to acknowledge a command.
const DefaultTimeout = 4 * time.Second

// Logger defines the logging interface used by the Correlator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives table-level measurements.
type Metrics interface {
	SetPendingRequests(n int)
	ObserveResolution(matched bool)
}

type noopMetrics struct{}

func (noopMetrics) SetPendingRequests(int) {}
func (noopMetrics) ObserveResolution(bool) {}

// Option configures a Correlator.
type Option func(*Correlator)

// WithTimeout sets the deadline window for new requests. Non-positive
// values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock replaces the wall clock and timers, for tests.
func WithClock(clock Clock) Option {
	return func(c *Correlator) {
		c.clock = clock
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Correlator) {
		c.metrics = m
	}
}

// Correlator matches inbound device status events to pending commands.
//
// All methods are safe for concurrent use.
type Correlator struct {
	table   *table
	timeout time.Duration
	clock   Clock
	metrics Metrics
	logger  Logger
	closed  atomic.Bool
}

// New creates a Correlator with DefaultTimeout and the wall clock unless
// overridden by options.
func New(opts ...Option) *Correlator {
	c := &Correlator{
		table:   newTable(),
		timeout: DefaultTimeout,
		clock:   realClock{},
		metrics: noopMetrics{},
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetLogger sets the logger for the correlator.
func (c *Correlator) SetLogger(logger Logger) {
	c.logger = logger
}

// Timeout returns the deadline window applied to new requests.
func (c *Correlator) Timeout() time.Duration {
	return c.timeout
}

// CreatePending registers a request for device's next status event and
// arms its deadline timer.
//
// Any request already pending for device is displaced: it can no longer be
// resolved and will fail with ErrTimeout at its own deadline.
func (c *Correlator) CreatePending(device string) (*Waiter, error) {
	if device == "" {
		return nil, ErrInvalidDevice
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	p := newPending(uuid.NewString(), device, c.clock.Now(), c.timeout)
	if prev := c.table.insert(device, p); prev != nil {
		c.logger.Warn("pending request superseded",
			"device", device,
			"superseded_id", prev.id,
			"request_id", p.id,
		)
	}
	p.arm(c.clock.AfterFunc(c.timeout, func() { c.timeoutFire(p) }))

	c.metrics.SetPendingRequests(c.table.len())
	c.logger.Debug("pending request created", "device", device, "request_id", p.id, "deadline", p.deadline)

	return &Waiter{p: p}, nil
}

// Resolve completes the request pending for device with ev. It reports
// false when nothing was waiting, which is normal for unsolicited reports
// and for replies that arrive after the deadline.
func (c *Correlator) Resolve(device string, ev telemetry.DeviceStatusEvent) bool {
	p := c.table.take(device)
	if p == nil {
		c.metrics.ObserveResolution(false)
		return false
	}
	c.metrics.SetPendingRequests(c.table.len())

	p.stopTimer()
	ok := p.complete(ev, nil)
	c.metrics.ObserveResolution(ok)
	if ok {
		c.logger.Debug("pending request resolved", "device", device, "request_id", p.id, "status", ev.Status)
	}
	return ok
}

// Cancel fails the request pending for device with a *CanceledError.
// It reports false when nothing was pending.
func (c *Correlator) Cancel(device, reason string) bool {
	p := c.table.take(device)
	if p == nil {
		return false
	}
	c.metrics.SetPendingRequests(c.table.len())
	return c.cancel(p, reason)
}

// CancelWaiter fails w's request with a *CanceledError if it is still
// pending. Unlike Cancel it never touches a newer request for the same
// device.
func (c *Correlator) CancelWaiter(w *Waiter, reason string) bool {
	if c.table.takeIf(w.p.device, w.p) {
		c.metrics.SetPendingRequests(c.table.len())
	}
	return c.cancel(w.p, reason)
}

func (c *Correlator) cancel(p *pending, reason string) bool {
	p.stopTimer()
	ok := p.complete(telemetry.DeviceStatusEvent{}, &CanceledError{Device: p.device, Reason: reason})
	if ok {
		c.logger.Debug("pending request canceled", "device", p.device, "request_id", p.id, "reason", reason)
	}
	return ok
}

// timeoutFire runs on p's deadline timer. It only removes p itself from the
// table, never a newer request that superseded it.
func (c *Correlator) timeoutFire(p *pending) {
	if c.table.takeIf(p.device, p) {
		c.metrics.SetPendingRequests(c.table.len())
	}

	err := fmt.Errorf("%w: device %q did not respond within %v", ErrTimeout, p.device, c.timeout)
	if p.complete(telemetry.DeviceStatusEvent{}, err) {
		c.logger.Info("pending request timed out", "device", p.device, "request_id", p.id)
	}
}

// Pending returns the request currently pending for device.
func (c *Correlator) Pending(device string) (Info, bool) {
	p := c.table.get(device)
	if p == nil {
		return Info{}, false
	}
	return p.info(), true
}

// PendingCount returns the number of devices with a pending request.
func (c *Correlator) PendingCount() int {
	return c.table.len()
}

// Snapshot lists pending requests, oldest first.
func (c *Correlator) Snapshot() []Info {
	entries := c.table.snapshot()
	out := make([]Info, 0, len(entries))
	for _, p := range entries {
		out = append(out, p.info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Device < out[j].Device
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close rejects new requests and fails every pending one with ErrClosed.
// Superseded waiters still fail at their own deadline. Close is idempotent.
func (c *Correlator) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	drained := c.table.drain()
	for _, p := range drained {
		p.stopTimer()
		p.complete(telemetry.DeviceStatusEvent{}, ErrClosed)
	}
	c.metrics.SetPendingRequests(0)

	if len(drained) > 0 {
		c.logger.Info("correlator closed", "failed_pending", len(drained))
	}
	return nil
}
