// Package api implements the HTTP REST API and WebSocket server for esplink.
//
// This package provides:
//   - The dashboard control endpoint, which issues a device command and
//     answers with the device's own acknowledgment or a timeout
//   - Paginated sensor and action history with search and sorting
//   - Diagnostics: pending requests, component health, runtime statistics
//   - A WebSocket hub that pushes live telemetry to dashboards
//   - Middleware stack (request ID, logging, recovery, CORS, body limit,
//     request metrics)
//
// # Architecture
//
// The server is a thin adapter. Commands go to a command.Service, which
// publishes over MQTT and blocks the request until the device answers on
// its status topic. Reads go straight to the SQLite history repositories.
// The Hub is registered with the ingestor as an Observer, so every decoded
// telemetry message is broadcast to subscribed WebSocket clients.
//
// # Graceful Degradation
//
// The server operates while the broker is down: history reads and
// WebSocket connections keep working, and control requests fail with a
// publish error in the response body instead of hanging.
package api
