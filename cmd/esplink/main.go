// esplink bridges ESP8266 devices on an MQTT broker to an HTTP dashboard.
//
// Devices publish sensor readings and status acknowledgments; esplink
// stores them, pushes them to WebSocket clients, and turns dashboard
// control requests into MQTT commands that wait for the device's reply.
package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/esplink/internal/api"
	"github.com/nerrad567/esplink/internal/command"
	"github.com/nerrad567/esplink/internal/correlator"
	"github.com/nerrad567/esplink/internal/history"
	"github.com/nerrad567/esplink/internal/infrastructure/config"
	"github.com/nerrad567/esplink/internal/infrastructure/database"
	"github.com/nerrad567/esplink/internal/infrastructure/influxdb"
	"github.com/nerrad567/esplink/internal/infrastructure/logging"
	"github.com/nerrad567/esplink/internal/infrastructure/mqtt"
	"github.com/nerrad567/esplink/internal/ingest"
	"github.com/nerrad567/esplink/internal/metrics"
	"github.com/nerrad567/esplink/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup sequence: linear wiring of every component
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting esplink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Flushes the rotated log file, if any
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	sensors := history.NewSQLiteSensorRepository(db.DB)
	actions := history.NewSQLiteActionRepository(db.DB)
	pruneHistory(ctx, log, cfg.Database.RetentionDays, sensors, actions)

	registry := metrics.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Command path: correlator, publisher, service.
	corr := correlator.New(
		correlator.WithTimeout(cfg.CommandTimeout()),
		correlator.WithMetrics(m),
	)
	corr.SetLogger(log.With("component", "correlator"))
	defer corr.Close() //nolint:errcheck // Close never fails; also called explicitly on shutdown

	topics := mqttClient.Topics()
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // Validate bounds qos to 0..2
	svc := command.NewService(corr, command.NewPublisher(mqttClient, topics.Control(), qos))
	svc.SetLogger(log.With("component", "command"))
	svc.SetMetrics(m)
	log.Info("command service ready",
		"control_topic", topics.Control(),
		"timeout", corr.Timeout(),
	)

	// Ingest path: storage, resolution, fan-out.
	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	ingestor := ingest.New(sensors, actions, corr)
	ingestor.SetLogger(log.With("component", "ingest"))
	ingestor.SetMetrics(m)
	ingestor.AddObserver(hub)
	if influxClient != nil {
		ingestor.AddObserver(influxClient)
	}
	if subErr := ingestor.Subscribe(mqttClient, topics, qos); subErr != nil {
		return fmt.Errorf("subscribing to device topics: %w", subErr)
	}
	log.Info("subscribed to device topics",
		"telemetry", topics.Telemetry(),
		"status", topics.Status(),
	)

	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = registry
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Commands:    svc,
		Sensors:     sensors,
		Actions:     actions,
		Pending:     corr,
		Checks:      checks,
		MQTT:        mqttClient,
		DB:          db,
		Metrics:     m,
		Gatherer:    gatherer,
		MetricsPath: cfg.Metrics.Path,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if hcErr := healthCheck(ctx, checks); hcErr != nil {
		return fmt.Errorf("health check failed: %w", hcErr)
	}
	log.Info("all health checks passed")

	stopHub := runHub(ctx, hub)
	defer stopHub() //nolint:errcheck // no-op after the explicit stop below

	log.Info("initialisation complete, waiting for shutdown signal", "address", server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Fail in-flight commands first so blocked control requests return
	// before the HTTP server drains.
	if closeErr := corr.Close(); closeErr != nil {
		log.Error("error closing correlator", "error", closeErr)
	}
	if waitErr := stopHub(); waitErr != nil {
		log.Error("background task failed", "error", waitErr)
	}

	log.Info("esplink stopped")
	return nil
}

// runHub runs the WebSocket hub until ctx ends or the returned stop
// function is called. stop waits for the hub to disconnect its clients and
// may be called more than once.
func runHub(ctx context.Context, hub *api.Hub) (stop func() error) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	return func() error {
		cancel()
		return g.Wait()
	}
}

// getConfigPath returns the configuration file path.
// Checks ESPLINK_CONFIG environment variable first, then falls back to default.
func getConfigPath() string {
	if path := os.Getenv("ESPLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every dependency is reachable, in name order.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for _, name := range slices.Sorted(maps.Keys(checks)) {
		if err := checks[name].HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// pruner deletes history rows recorded before a cutoff.
type pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// pruneHistory applies the retention window once at startup. Failures are
// logged and startup continues.
func pruneHistory(ctx context.Context, log *logging.Logger, retentionDays int, sensors, actions pruner) {
	if retentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	readings, err := sensors.PruneBefore(ctx, cutoff)
	if err != nil {
		log.Warn("pruning sensor readings failed", "error", err)
	}
	events, err := actions.PruneBefore(ctx, cutoff)
	if err != nil {
		log.Warn("pruning action history failed", "error", err)
	}

	log.Info("history retention applied",
		"cutoff", cutoff.Format(time.RFC3339),
		"sensor_readings_deleted", readings,
		"action_history_deleted", events,
	)
}
