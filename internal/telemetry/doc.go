// Package telemetry decodes raw device payloads into typed events.
//
// Devices publish JSON objects carrying an epoch-millisecond "time" field
// plus kind-specific fields. Decode dispatches on field presence:
//
//	{"time":1700000000000,"device":"DEV1","status":"ON"}                      -> DeviceStatusEvent
//	{"time":1700000000000,"temperature":25.5,"humidity":60.0,"light":300}     -> SensorReading
//
// A payload carrying both shapes decodes as a DeviceStatusEvent. Event time
// is the producer's time, truncated to whole seconds and normalised to UTC.
//
// Decoding is pure: no I/O, no shared state, safe for concurrent use.
package telemetry
