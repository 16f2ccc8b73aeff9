package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/esplink/internal/telemetry"
)

// Measurement names.
const (
	MeasurementSensorReading = "sensor_reading"
	MeasurementDeviceStatus  = "device_status"
)

// WriteSensorReading writes one reading at its producer time.
//
//	client.WriteSensorReading(telemetry.SensorReading{Time: t, Temperature: 25.5, Humidity: 60, Light: 300})
func (c *Client) WriteSensorReading(r telemetry.SensorReading) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sensorReadingPoint(r))
}

// WriteStatusEvent writes one device status report at its producer time,
// tagged by device.
func (c *Client) WriteStatusEvent(ev telemetry.DeviceStatusEvent) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statusEventPoint(ev))
}

// Observe mirrors a decoded event. It lets the client be registered as an
// ingest observer.
func (c *Client) Observe(ev telemetry.Event) {
	switch e := ev.(type) {
	case telemetry.SensorReading:
		c.WriteSensorReading(e)
	case telemetry.DeviceStatusEvent:
		c.WriteStatusEvent(e)
	}
}

func sensorReadingPoint(r telemetry.SensorReading) *write.Point {
	return write.NewPoint(
		MeasurementSensorReading,
		nil,
		map[string]interface{}{
			"temperature": r.Temperature,
			"humidity":    r.Humidity,
			"light":       r.Light,
		},
		r.Time,
	)
}

func statusEventPoint(ev telemetry.DeviceStatusEvent) *write.Point {
	return write.NewPoint(
		MeasurementDeviceStatus,
		map[string]string{
			"device": ev.Device,
		},
		map[string]interface{}{
			"status": ev.Status,
		},
		ev.Time,
	)
}
