package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
  topics:
    control: "lab/control"
control:
  timeout_ms: 2500
api:
  host: "0.0.0.0"
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
	if cfg.MQTT.Topics.Control != "lab/control" {
		t.Errorf("MQTT.Topics.Control = %q, want %q", cfg.MQTT.Topics.Control, "lab/control")
	}
	// Unset topics keep their defaults.
	if cfg.MQTT.Topics.Status != "esp8266/status" {
		t.Errorf("MQTT.Topics.Status = %q, want %q", cfg.MQTT.Topics.Status, "esp8266/status")
	}
	if got := cfg.CommandTimeout(); got != 2500*time.Millisecond {
		t.Errorf("CommandTimeout() = %v, want %v", got, 2500*time.Millisecond)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Database.RetentionDays = -1 },
			wantErr: "retention_days",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "missing status topic",
			mutate:  func(c *Config) { c.MQTT.Topics.Status = "" },
			wantErr: "mqtt.topics",
		},
		{
			name: "status and control share a topic",
			mutate: func(c *Config) {
				c.MQTT.Topics.Status = "esp8266/io"
				c.MQTT.Topics.Control = "esp8266/io"
			},
			wantErr: "must differ",
		},
		{
			name:    "zero command timeout",
			mutate:  func(c *Config) { c.Control.TimeoutMS = 0 },
			wantErr: "control.timeout_ms",
		},
		{
			name: "command window outlasts write timeout",
			mutate: func(c *Config) {
				c.Control.TimeoutMS = 5000
				c.API.Timeouts.Write = 5
			},
			wantErr: "shorter than api.timeouts.write",
		},
		{
			name: "no write timeout",
			mutate: func(c *Config) {
				c.Control.TimeoutMS = 60000
				c.API.Timeouts.Write = 0
			},
		},
		{
			name:    "invalid port - too low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "invalid port - too high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = ""
			},
			wantErr: "influxdb.url",
		},
		{
			name: "file logging without path",
			mutate: func(c *Config) {
				c.Logging.Output = "file"
				c.Logging.File.Path = ""
			},
			wantErr: "logging.file.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "site.id") || !strings.Contains(err.Error(), "api.port") {
		t.Errorf("Validate() error = %v, want both site.id and api.port", err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Control: ControlConfig{TimeoutMS: 4000},
	}

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want %v", got, 30*time.Second)
	}
	if got := cfg.GetWriteTimeout(); got != 45*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want %v", got, 45*time.Second)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want %v", got, 60*time.Second)
	}
	if got := cfg.CommandTimeout(); got != 4*time.Second {
		t.Errorf("CommandTimeout() = %v, want %v", got, 4*time.Second)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ESPLINK_DATABASE_PATH", "/custom/path.db")
	t.Setenv("ESPLINK_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ESPLINK_MQTT_PORT", "8883")
	t.Setenv("ESPLINK_MQTT_USERNAME", "device-gw")
	t.Setenv("ESPLINK_MQTT_PASSWORD", "secret")
	t.Setenv("ESPLINK_CONTROL_TIMEOUT_MS", "1500")
	t.Setenv("ESPLINK_API_HOST", "127.0.0.1")
	t.Setenv("ESPLINK_INFLUXDB_TOKEN", "influx-token")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want %d", cfg.MQTT.Broker.Port, 8883)
	}
	if cfg.MQTT.Auth.Username != "device-gw" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "device-gw")
	}
	if cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "secret")
	}
	if cfg.Control.TimeoutMS != 1500 {
		t.Errorf("Control.TimeoutMS = %d, want %d", cfg.Control.TimeoutMS, 1500)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.InfluxDB.Token != "influx-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "influx-token")
	}
}

func TestApplyEnvOverrides_InvalidNumberIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("ESPLINK_MQTT_PORT", "not-a-port")
	t.Setenv("ESPLINK_CONTROL_TIMEOUT_MS", "soon")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want %d", cfg.MQTT.Broker.Port, 1883)
	}
	if cfg.Control.TimeoutMS != 4000 {
		t.Errorf("Control.TimeoutMS = %d, want %d", cfg.Control.TimeoutMS, 4000)
	}
}

func TestApplyEnvOverrides_InfluxAndLogging(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("ESPLINK_INFLUXDB_ENABLED", "true")
	t.Setenv("ESPLINK_INFLUXDB_URL", "http://influx:8086")
	t.Setenv("ESPLINK_LOG_LEVEL", "debug")
	t.Setenv("ESPLINK_API_PORT", "9090")
	t.Setenv("ESPLINK_DATABASE_RETENTION_DAYS", "30")

	applyEnvOverrides(cfg)

	if !cfg.InfluxDB.Enabled || cfg.InfluxDB.URL != "http://influx:8086" {
		t.Errorf("InfluxDB = %+v, want enabled at http://influx:8086", cfg.InfluxDB)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Database.RetentionDays != 30 {
		t.Errorf("Database.RetentionDays = %d, want 30", cfg.Database.RetentionDays)
	}
}

func TestApplyEnvOverrides_InvalidBoolIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("ESPLINK_INFLUXDB_ENABLED", "sometimes")

	applyEnvOverrides(cfg)

	if cfg.InfluxDB.Enabled {
		t.Error("InfluxDB.Enabled = true, want unchanged false")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.QoS != 1 {
		t.Errorf("default MQTT.QoS = %d, want 1", cfg.MQTT.QoS)
	}
	if cfg.MQTT.Topics.Telemetry != "esp8266/datasensor" {
		t.Errorf("default MQTT.Topics.Telemetry = %q, want %q", cfg.MQTT.Topics.Telemetry, "esp8266/datasensor")
	}
	if cfg.MQTT.Topics.Control != "esp8266/control" {
		t.Errorf("default MQTT.Topics.Control = %q, want %q", cfg.MQTT.Topics.Control, "esp8266/control")
	}
	if cfg.Control.TimeoutMS != 4000 {
		t.Errorf("default Control.TimeoutMS = %d, want 4000", cfg.Control.TimeoutMS)
	}
	if !cfg.Database.WALMode {
		t.Error("default Database.WALMode = false, want true")
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("default Logging.Output = %q, want %q", cfg.Logging.Output, "stdout")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig().Validate() error = %v", err)
	}
}
