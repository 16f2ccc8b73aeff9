package telemetry

import "time"

// Kind distinguishes the two event shapes.
type Kind int

const (
	// KindSensorReading is a periodic environment sample.
	KindSensorReading Kind = iota + 1

	// KindDeviceStatus is a device acknowledging its current state.
	KindDeviceStatus
)

// String returns the channel name used when events are fanned out.
func (k Kind) String() string {
	switch k {
	case KindSensorReading:
		return "sensor.reading"
	case KindDeviceStatus:
		return "device.status"
	default:
		return "unknown"
	}
}

// Event is a decoded payload. It is implemented by SensorReading and
// DeviceStatusEvent only.
type Event interface {
	Kind() Kind

	// Timestamp is the producer-assigned time, UTC, second precision.
	Timestamp() time.Time
}

// SensorReading is one environment sample from a device.
type SensorReading struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Light       int       `json:"light"`
}

// Kind implements Event.
func (SensorReading) Kind() Kind { return KindSensorReading }

// Timestamp implements Event.
func (r SensorReading) Timestamp() time.Time { return r.Time }

// DeviceStatusEvent reports a device's state, normally in reply to a command.
type DeviceStatusEvent struct {
	Device string    `json:"device"`
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// Kind implements Event.
func (DeviceStatusEvent) Kind() Kind { return KindDeviceStatus }

// Timestamp implements Event.
func (e DeviceStatusEvent) Timestamp() time.Time { return e.Time }
