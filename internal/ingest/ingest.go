package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/esplink/internal/infrastructure/mqtt"
	"github.com/nerrad567/esplink/internal/telemetry"
)

// Result labels for ingest metrics.
const (
	ResultStored      = "stored"
	ResultDecodeError = "decode_error"
	ResultStoreError  = "store_error"
)

// defaultStoreTimeout bounds each persistence call made from a delivery goroutine.
const defaultStoreTimeout = 5 * time.Second

// ReadingStore persists sensor readings.
type ReadingStore interface {
	SaveSensorReading(ctx context.Context, r telemetry.SensorReading) error
}

// StatusStore persists device status events.
type StatusStore interface {
	SaveStatusEvent(ctx context.Context, ev telemetry.DeviceStatusEvent) error
}

// Resolver completes a pending command. *correlator.Correlator satisfies it.
type Resolver interface {
	Resolve(device string, ev telemetry.DeviceStatusEvent) bool
}

// Observer receives every decoded event after it has been handled.
// Observe runs on the MQTT delivery goroutine and must not block.
type Observer interface {
	Observe(ev telemetry.Event)
}

// Subscriber registers MQTT handlers. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface used by the Ingestor.
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

// Metrics counts handled messages by topic and result.
type Metrics interface {
	IngestMessage(topic, result string)
}

type noopMetrics struct{}

func (noopMetrics) IngestMessage(string, string) {}

// Ingestor handles telemetry and status messages.
//
// Stores and resolver may be nil, in which case that step is skipped.
// Configure observers, logger and metrics before calling Subscribe.
type Ingestor struct {
	readings     ReadingStore
	statuses     StatusStore
	resolver     Resolver
	observers    []Observer
	logger       Logger
	metrics      Metrics
	storeTimeout time.Duration
}

// New creates an Ingestor.
func New(readings ReadingStore, statuses StatusStore, resolver Resolver) *Ingestor {
	return &Ingestor{
		readings:     readings,
		statuses:     statuses,
		resolver:     resolver,
		logger:       noopLogger{},
		metrics:      noopMetrics{},
		storeTimeout: defaultStoreTimeout,
	}
}

// SetLogger sets the logger for the ingestor.
func (i *Ingestor) SetLogger(logger Logger) {
	i.logger = logger
}

// SetMetrics sets the metrics sink for the ingestor.
func (i *Ingestor) SetMetrics(m Metrics) {
	i.metrics = m
}

// AddObserver registers o to receive decoded events.
func (i *Ingestor) AddObserver(o Observer) {
	i.observers = append(i.observers, o)
}

// Subscribe registers HandleTelemetry and HandleStatus on their topics.
func (i *Ingestor) Subscribe(sub Subscriber, topics mqtt.Topics, qos byte) error {
	if err := sub.Subscribe(topics.Telemetry(), qos, i.HandleTelemetry); err != nil {
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	if err := sub.Subscribe(topics.Status(), qos, i.HandleStatus); err != nil {
		return fmt.Errorf("subscribing to status: %w", err)
	}
	i.logger.Info("ingest subscribed", "telemetry", topics.Telemetry(), "status", topics.Status())
	return nil
}

// HandleTelemetry stores one sensor reading. Undecodable payloads and
// storage failures are logged; it always returns nil so one bad message
// never affects the next.
func (i *Ingestor) HandleTelemetry(topic string, payload []byte) error {
	r, err := telemetry.DecodeSensorReading(payload)
	if err != nil {
		i.logger.Warn("dropping telemetry message", "topic", topic, "error", err, "payload_size", len(payload))
		i.metrics.IngestMessage(topic, ResultDecodeError)
		return nil
	}

	result := ResultStored
	if i.readings != nil {
		ctx, cancel := context.WithTimeout(context.Background(), i.storeTimeout)
		err := i.readings.SaveSensorReading(ctx, r)
		cancel()
		if err != nil {
			i.logger.Error("storing sensor reading", "error", err, "time", r.Time)
			result = ResultStoreError
		}
	}
	i.metrics.IngestMessage(topic, result)
	i.logger.Debug("sensor reading received",
		"time", r.Time,
		"temperature", r.Temperature,
		"humidity", r.Humidity,
		"light", r.Light,
	)

	i.notify(r)
	return nil
}

// HandleStatus stores one device status event and resolves the command
// waiting on that device, if any. Resolution happens even if storage
// fails. Undecodable payloads are logged and never resolve anything.
func (i *Ingestor) HandleStatus(topic string, payload []byte) error {
	ev, err := telemetry.DecodeStatusEvent(payload)
	if err != nil {
		i.logger.Warn("dropping status message", "topic", topic, "error", err, "payload_size", len(payload))
		i.metrics.IngestMessage(topic, ResultDecodeError)
		return nil
	}

	result := ResultStored
	if i.statuses != nil {
		ctx, cancel := context.WithTimeout(context.Background(), i.storeTimeout)
		err := i.statuses.SaveStatusEvent(ctx, ev)
		cancel()
		if err != nil {
			i.logger.Error("storing status event", "device", ev.Device, "error", err)
			result = ResultStoreError
		}
	}
	i.metrics.IngestMessage(topic, result)

	matched := false
	if i.resolver != nil {
		matched = i.resolver.Resolve(ev.Device, ev)
	}
	i.logger.Debug("status event received", "device", ev.Device, "status", ev.Status, "matched", matched)

	i.notify(ev)
	return nil
}

func (i *Ingestor) notify(ev telemetry.Event) {
	for _, o := range i.observers {
		o.Observe(ev)
	}
}
