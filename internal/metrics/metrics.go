package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "esplink"

// commandBuckets cover a fast LAN round-trip up to well past the default
// 4s deadline.
var commandBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8}

// Metrics holds every collector.
type Metrics struct {
	commandsTotal  prometheus.Counter
	commandResults *prometheus.CounterVec
	commandLatency *prometheus.HistogramVec
	pending        prometheus.Gauge
	resolutions    *prometheus.CounterVec
	ingestMessages *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total device commands issued.",
		}),
		commandResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_results_total",
			Help:      "Device command outcomes.",
		}, []string{"outcome"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_latency_seconds",
			Help:      "Time from issuing a command to its outcome.",
			Buckets:   commandBuckets,
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Devices with a command awaiting acknowledgement.",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Status events by whether they completed a pending command.",
		}, []string{"matched"}),
		ingestMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_messages_total",
			Help:      "MQTT messages handled by topic and result.",
		}, []string{"topic", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	for _, c := range []prometheus.Collector{
		m.commandsTotal,
		m.commandResults,
		m.commandLatency,
		m.pending,
		m.resolutions,
		m.ingestMessages,
		m.httpRequests,
		m.httpDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	return m, nil
}

// NewRegistry returns a registry preloaded with Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// CommandIssued counts a command entering the service.
func (m *Metrics) CommandIssued() {
	if m == nil {
		return
	}
	m.commandsTotal.Inc()
}

// CommandCompleted records a command outcome and its latency.
func (m *Metrics) CommandCompleted(outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.commandResults.WithLabelValues(outcome).Inc()
	m.commandLatency.WithLabelValues(outcome).Observe(latency.Seconds())
}

// SetPendingRequests sets the pending request gauge.
func (m *Metrics) SetPendingRequests(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// ObserveResolution counts a status event that did or did not complete a
// pending command.
func (m *Metrics) ObserveResolution(matched bool) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(strconv.FormatBool(matched)).Inc()
}

// IngestMessage counts one handled MQTT message.
func (m *Metrics) IngestMessage(topic, result string) {
	if m == nil {
		return
	}
	m.ingestMessages.WithLabelValues(topic, result).Inc()
}

// ObserveHTTP records one HTTP request. route should be the route pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
