// Package ingest consumes device messages from MQTT.
//
// Telemetry messages are decoded into sensor readings and stored. Status
// messages are decoded into device status events, stored, and handed to the
// correlator so that a waiting command can complete. Malformed payloads are
// logged and dropped; they never stop the subscription.
//
// Every decoded event is then passed to the registered Observers, which
// mirror it to InfluxDB and push it to WebSocket clients.
package ingest
