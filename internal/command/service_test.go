package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/esplink/internal/correlator"
	"github.com/nerrad567/esplink/internal/telemetry"
)

// =============================================================================
// Test helpers
// =============================================================================

var deviceTime = time.Date(2023, time.November, 14, 22, 13, 20, 0, time.UTC)

// respondingDevice returns a publish hook that answers every command on the
// status path, the way the firmware does.
func respondingDevice(t *testing.T, corr *correlator.Correlator) func([]byte) {
	t.Helper()
	return func(payload []byte) {
		var cmd Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			t.Errorf("device received bad payload %s: %v", payload, err)
			return
		}
		go corr.Resolve(cmd.Device, telemetry.DeviceStatusEvent{
			Device: cmd.Device,
			Status: strings.ToUpper(cmd.Status),
			Time:   deviceTime,
		})
	}
}

type recordingMetrics struct {
	mu       sync.Mutex
	issued   int
	outcomes map[string]int
}

func (m *recordingMetrics) CommandIssued() {
	m.mu.Lock()
	m.issued++
	m.mu.Unlock()
}

func (m *recordingMetrics) CommandCompleted(outcome string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func newTestService(t *testing.T, timeout time.Duration, transport *fakeTransport) (*Service, *correlator.Correlator) {
	t.Helper()
	corr := correlator.New(correlator.WithTimeout(timeout))
	t.Cleanup(func() { corr.Close() }) //nolint:errcheck // Test cleanup
	return NewService(corr, NewPublisher(transport, "esp8266/control", 1)), corr
}

// =============================================================================
// Issue Tests
// =============================================================================

func TestService_IssueSuccess(t *testing.T) {
	transport := &fakeTransport{}
	svc, corr := newTestService(t, time.Second, transport)
	transport.onPublish = respondingDevice(t, corr)

	metrics := &recordingMetrics{}
	svc.SetMetrics(metrics)

	res := svc.Issue(context.Background(), Command{Device: "DEV1", Status: "on"})

	if !res.Success {
		t.Fatalf("Issue() = %+v, want success", res)
	}
	if res.Message != MessageSuccess {
		t.Errorf("Message = %q, want %q", res.Message, MessageSuccess)
	}
	if res.Device != "DEV1" || res.Status != "ON" {
		t.Errorf("Device/Status = %s/%s, want DEV1/ON (from the device report)", res.Device, res.Status)
	}
	if res.Time == nil || !res.Time.Equal(deviceTime) {
		t.Errorf("Time = %v, want %v", res.Time, deviceTime)
	}
	if res.Outcome != OutcomeResolved {
		t.Errorf("Outcome = %s, want %s", res.Outcome, OutcomeResolved)
	}
	if corr.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", corr.PendingCount())
	}
	if metrics.issued != 1 || metrics.outcomes["resolved"] != 1 {
		t.Errorf("metrics issued=%d outcomes=%v", metrics.issued, metrics.outcomes)
	}
}

func TestService_IssueTimeout(t *testing.T) {
	transport := &fakeTransport{}
	svc, corr := newTestService(t, 30*time.Millisecond, transport)

	start := time.Now()
	res := svc.Issue(context.Background(), Command{Device: "DEV1", Status: "on"})
	elapsed := time.Since(start)

	if res.Success {
		t.Fatal("Issue() succeeded with a silent device")
	}
	if res.Message != MessageTimeout {
		t.Errorf("Message = %q, want %q", res.Message, MessageTimeout)
	}
	if res.Device != "DEV1" || res.RequestedStatus != "on" {
		t.Errorf("Device/RequestedStatus = %s/%s, want DEV1/on", res.Device, res.RequestedStatus)
	}
	if res.Outcome != OutcomeTimeout {
		t.Errorf("Outcome = %s, want %s", res.Outcome, OutcomeTimeout)
	}
	if elapsed > time.Second {
		t.Errorf("Issue() took %v, want about 30ms", elapsed)
	}
	if corr.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", corr.PendingCount())
	}
}

func TestService_IssuePublishFailure(t *testing.T) {
	transport := &fakeTransport{err: errors.New("mqtt: client not connected")}
	svc, corr := newTestService(t, time.Minute, transport)

	start := time.Now()
	res := svc.Issue(context.Background(), Command{Device: "DEV1", Status: "on"})

	if res.Success {
		t.Fatal("Issue() succeeded although publish failed")
	}
	if res.Outcome != OutcomePublishFailed {
		t.Errorf("Outcome = %s, want %s", res.Outcome, OutcomePublishFailed)
	}
	if !strings.Contains(res.Message, "client not connected") {
		t.Errorf("Message = %q, want the publish error text", res.Message)
	}
	if time.Since(start) > time.Second {
		t.Error("Issue() waited for the deadline after a publish failure")
	}
	if corr.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", corr.PendingCount())
	}
}

func TestService_IssueInvalid(t *testing.T) {
	transport := &fakeTransport{}
	svc, corr := newTestService(t, time.Second, transport)

	res := svc.Issue(context.Background(), Command{Device: "DEV1"})

	if res.Success || res.Outcome != OutcomeInvalid {
		t.Errorf("Issue() = %+v, want invalid", res)
	}
	if len(transport.published()) != 0 {
		t.Error("invalid command was published")
	}
	if corr.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", corr.PendingCount())
	}
}

func TestService_IssueAfterClose(t *testing.T) {
	transport := &fakeTransport{}
	svc, corr := newTestService(t, time.Second, transport)
	corr.Close() //nolint:errcheck // Test setup

	res := svc.Issue(context.Background(), Command{Device: "DEV1", Status: "on"})
	if res.Success || res.Outcome != OutcomeClosed {
		t.Errorf("Issue() = %+v, want closed", res)
	}
	if len(transport.published()) != 0 {
		t.Error("command published after shutdown")
	}
}

func TestService_IssueShutdownWhileWaiting(t *testing.T) {
	transport := &fakeTransport{}
	svc, corr := newTestService(t, time.Minute, transport)
	transport.onPublish = func([]byte) {
		go corr.Close() //nolint:errcheck // Simulated shutdown
	}

	res := svc.Issue(context.Background(), Command{Device: "DEV1", Status: "on"})
	if res.Success || res.Outcome != OutcomeClosed {
		t.Errorf("Issue() = %+v, want closed", res)
	}
}

func TestService_IssueContextCanceled(t *testing.T) {
	transport := &fakeTransport{}
	svc, corr := newTestService(t, time.Minute, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := svc.Issue(ctx, Command{Device: "DEV1", Status: "on"})
	if res.Success || res.Outcome != OutcomeCanceled {
		t.Errorf("Issue() = %+v, want canceled", res)
	}
	if corr.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 (abandoned request withdrawn)", corr.PendingCount())
	}
}

func TestService_IssueConcurrentDevices(t *testing.T) {
	transport := &fakeTransport{}
	svc, corr := newTestService(t, 2*time.Second, transport)
	transport.onPublish = respondingDevice(t, corr)

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		device := fmt.Sprintf("DEV%d", i)
		g.Go(func() error {
			res := svc.Issue(context.Background(), Command{Device: device, Status: "off"})
			if !res.Success {
				return fmt.Errorf("%s: %s", device, res.Message)
			}
			if res.Device != device {
				return fmt.Errorf("%s: resolved with event for %s", device, res.Device)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if len(transport.published()) != 32 {
		t.Errorf("publish calls = %d, want 32", len(transport.published()))
	}
}

// =============================================================================
// Result Tests
// =============================================================================

func TestResult_JSON(t *testing.T) {
	tm := deviceTime
	tests := []struct {
		name string
		res  Result
		want string
	}{
		{
			name: "success",
			res:  Result{Success: true, Message: MessageSuccess, Device: "DEV1", Status: "ON", Time: &tm, Outcome: OutcomeResolved},
			want: `{"success":true,"message":"Device controlled successfully","device":"DEV1","status":"ON","time":"2023-11-14T22:13:20Z"}`,
		},
		{
			name: "failure",
			res:  Result{Message: MessageTimeout, Device: "DEV1", RequestedStatus: "on", Outcome: OutcomeTimeout},
			want: `{"success":false,"message":"Timeout: No response from device","device":"DEV1","requestedStatus":"on"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.res)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}
