// Package config handles loading and validating esplink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (ESPLINK_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := cfg.CommandTimeout()
package config
