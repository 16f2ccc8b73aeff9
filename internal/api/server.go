package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/esplink/internal/command"
	"github.com/nerrad567/esplink/internal/correlator"
	"github.com/nerrad567/esplink/internal/history"
	"github.com/nerrad567/esplink/internal/infrastructure/config"
	"github.com/nerrad567/esplink/internal/infrastructure/logging"
	"github.com/nerrad567/esplink/internal/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown. Control requests can block for the whole
// command window, so this must stay well above it.
const gracefulShutdownTimeout = 10 * time.Second

// Commander issues device commands and waits for their acknowledgment.
type Commander interface {
	Issue(ctx context.Context, cmd command.Command) command.Result
}

// SensorHistory reads and prunes stored sensor readings.
type SensorHistory interface {
	LatestSensorReading(ctx context.Context) (history.SensorRecord, error)
	ListSensorReadings(ctx context.Context, q history.Query) (history.Page[history.SensorRecord], error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActionHistory reads and prunes stored device status events.
type ActionHistory interface {
	ListStatusEvents(ctx context.Context, q history.Query) (history.Page[history.ActionRecord], error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PendingSource exposes in-flight command requests.
type PendingSource interface {
	Snapshot() []correlator.Info
	PendingCount() int
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionStatus reports broker connectivity.
type ConnectionStatus interface {
	IsConnected() bool
}

// PoolStats exposes database connection pool statistics.
type PoolStats interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Commands Commander
	Sensors  SensorHistory
	Actions  ActionHistory
	Pending  PendingSource

	// Checks are reported by /health under their map key.
	Checks map[string]HealthChecker

	MQTT ConnectionStatus // optional, for /system
	DB   PoolStats        // optional, for /system

	// Metrics records per-route request counts. Gatherer, when set, is
	// served at MetricsPath (default /metrics).
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	MetricsPath string

	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for esplink.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	commands    Commander
	sensors     SensorHistory
	actions     ActionHistory
	pending     PendingSource
	checks      map[string]HealthChecker
	mqtt        ConnectionStatus
	db          PoolStats
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	metricsPath string
	version     string
	startTime   time.Time
	server      *http.Server
	listener    net.Listener
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, command service, history, pending source)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("command service is required")
	}
	if deps.Sensors == nil || deps.Actions == nil {
		return nil, fmt.Errorf("history repositories are required")
	}
	if deps.Pending == nil {
		return nil, fmt.Errorf("pending source is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		commands:    deps.Commands,
		sensors:     deps.Sensors,
		actions:     deps.Actions,
		pending:     deps.Pending,
		checks:      deps.Checks,
		mqtt:        deps.MQTT,
		db:          deps.DB,
		metrics:     deps.Metrics,
		gatherer:    deps.Gatherer,
		metricsPath: deps.MetricsPath,
		version:     deps.Version,
		startTime:   time.Now(),
	}
	if s.metricsPath == "" {
		s.metricsPath = "/metrics"
	}
	if s.wsCfg.Path == "" {
		s.wsCfg.Path = "/api/v1/ws"
	}

	// An injected hub is shared with the ingestor, which feeds it events.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(s.wsCfg, s.logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// The listener is bound before Start returns, so a port conflict is
// reported to the caller. Requests are served in a background goroutine
// until Close().
//
// Parameters:
//   - ctx: Parent context for the hub's lifetime (not the listener's)
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		s.cancel()
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
