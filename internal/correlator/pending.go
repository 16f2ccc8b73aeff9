package correlator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/esplink/internal/telemetry"
)

// pending is one in-flight request. Its outcome is written exactly once,
// guarded by completed, and published to readers by closing done.
type pending struct {
	id        string
	device    string
	createdAt time.Time
	deadline  time.Time

	completed atomic.Bool
	done      chan struct{}
	event     telemetry.DeviceStatusEvent
	err       error

	timerMu sync.Mutex
	timer   Timer
}

func newPending(id, device string, now time.Time, timeout time.Duration) *pending {
	return &pending{
		id:        id,
		device:    device,
		createdAt: now,
		deadline:  now.Add(timeout),
		done:      make(chan struct{}),
	}
}

// complete sets the outcome if none has been set. It reports whether this
// call won.
func (p *pending) complete(ev telemetry.DeviceStatusEvent, err error) bool {
	if !p.completed.CompareAndSwap(false, true) {
		return false
	}
	p.event = ev
	p.err = err
	close(p.done)
	return true
}

// arm attaches the deadline timer. If the request already completed while
// the timer was being created, the timer is stopped at once.
func (p *pending) arm(t Timer) {
	p.timerMu.Lock()
	p.timer = t
	p.timerMu.Unlock()

	if p.completed.Load() {
		t.Stop()
	}
}

func (p *pending) stopTimer() {
	p.timerMu.Lock()
	t := p.timer
	p.timerMu.Unlock()

	if t != nil {
		t.Stop()
	}
}

func (p *pending) info() Info {
	return Info{
		ID:        p.id,
		Device:    p.device,
		CreatedAt: p.createdAt,
		Deadline:  p.deadline,
	}
}

// Info describes a pending request for diagnostics.
type Info struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	CreatedAt time.Time `json:"created_at"`
	Deadline  time.Time `json:"deadline"`
}

// Waiter is the caller's handle on a pending request.
type Waiter struct {
	p *pending
}

// ID uniquely identifies the request.
func (w *Waiter) ID() string { return w.p.id }

// Device is the device the request was created for.
func (w *Waiter) Device() string { return w.p.device }

// CreatedAt is when the request was registered.
func (w *Waiter) CreatedAt() time.Time { return w.p.createdAt }

// Deadline is when the request fails with ErrTimeout if still unanswered.
func (w *Waiter) Deadline() time.Time { return w.p.deadline }

// Done is closed when the request has an outcome.
func (w *Waiter) Done() <-chan struct{} { return w.p.done }

// Wait blocks until the request completes or ctx ends.
//
// The result is the matching status event, or an error wrapping ErrTimeout,
// ErrCanceled or ErrClosed. If ctx ends first, ctx.Err() is returned and the
// request stays pending until its deadline; use CancelWaiter to release it
// early.
func (w *Waiter) Wait(ctx context.Context) (telemetry.DeviceStatusEvent, error) {
	select {
	case <-w.p.done:
		return w.p.event, w.p.err
	case <-ctx.Done():
		return telemetry.DeviceStatusEvent{}, ctx.Err()
	}
}
