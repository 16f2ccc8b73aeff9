package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"time"
)

// Field names in device payloads.
const (
	fieldTime        = "time"
	fieldDevice      = "device"
	fieldStatus      = "status"
	fieldTemperature = "temperature"
	fieldHumidity    = "humidity"
	fieldLight       = "light"
)

// payload is a parsed top-level JSON object with undecoded values.
type payload map[string]json.RawMessage

// Decode parses raw into a DeviceStatusEvent or a SensorReading, choosing the
// shape by field presence. Any failure is a *DecodeError wrapping ErrDecode.
func Decode(raw []byte) (Event, error) {
	p, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	switch {
	case p.has(fieldDevice, fieldStatus):
		ev, err := p.statusEvent()
		if err != nil {
			return nil, err
		}
		return ev, nil
	case p.has(fieldTemperature, fieldHumidity, fieldLight):
		r, err := p.sensorReading()
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	if _, err := p.timestamp(); err != nil {
		return nil, err
	}
	return nil, decodeErr("", "payload is neither a status event nor a sensor reading")
}

// DecodeSensorReading decodes raw as a SensorReading, ignoring any status
// fields. Used by handlers bound to the telemetry topic.
func DecodeSensorReading(raw []byte) (SensorReading, error) {
	p, err := parseObject(raw)
	if err != nil {
		return SensorReading{}, err
	}
	if !p.has(fieldTemperature, fieldHumidity, fieldLight) {
		if _, err := p.timestamp(); err != nil {
			return SensorReading{}, err
		}
		return SensorReading{}, decodeErr("", "missing temperature, humidity or light")
	}
	return p.sensorReading()
}

// DecodeStatusEvent decodes raw as a DeviceStatusEvent. Used by handlers
// bound to the status topic.
func DecodeStatusEvent(raw []byte) (DeviceStatusEvent, error) {
	p, err := parseObject(raw)
	if err != nil {
		return DeviceStatusEvent{}, err
	}
	if !p.has(fieldDevice, fieldStatus) {
		if _, err := p.timestamp(); err != nil {
			return DeviceStatusEvent{}, err
		}
		return DeviceStatusEvent{}, decodeErr("", "missing device or status")
	}
	return p.statusEvent()
}

func parseObject(raw []byte) (payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	var p payload
	if err := dec.Decode(&p); err != nil {
		return nil, decodeErr("", "not a JSON object: "+err.Error())
	}
	if p == nil {
		return nil, decodeErr("", "not a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, decodeErr("", "trailing data after JSON object")
	}
	return p, nil
}

func (p payload) has(names ...string) bool {
	for _, n := range names {
		if _, ok := p[n]; !ok {
			return false
		}
	}
	return true
}

func (p payload) statusEvent() (DeviceStatusEvent, error) {
	ts, err := p.timestamp()
	if err != nil {
		return DeviceStatusEvent{}, err
	}
	device, err := p.text(fieldDevice)
	if err != nil {
		return DeviceStatusEvent{}, err
	}
	status, err := p.text(fieldStatus)
	if err != nil {
		return DeviceStatusEvent{}, err
	}
	return DeviceStatusEvent{Device: device, Status: status, Time: ts}, nil
}

func (p payload) sensorReading() (SensorReading, error) {
	ts, err := p.timestamp()
	if err != nil {
		return SensorReading{}, err
	}
	temperature, err := p.real(fieldTemperature)
	if err != nil {
		return SensorReading{}, err
	}
	humidity, err := p.real(fieldHumidity)
	if err != nil {
		return SensorReading{}, err
	}
	light, err := p.integer(fieldLight)
	if err != nil {
		return SensorReading{}, err
	}
	return SensorReading{
		Time:        ts,
		Temperature: temperature,
		Humidity:    humidity,
		Light:       light,
	}, nil
}

// timestamp reads the epoch-millisecond timestamp, discarding sub-second precision.
func (p payload) timestamp() (time.Time, error) {
	n, err := p.number(fieldTime)
	if err != nil {
		return time.Time{}, err
	}
	ms, err := n.Int64()
	if err != nil {
		return time.Time{}, decodeErr(fieldTime, "must be an integer epoch in milliseconds")
	}
	return time.UnixMilli(ms).UTC().Truncate(time.Second), nil
}

func (p payload) text(name string) (string, error) {
	v, err := p.value(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", decodeErr(name, "must be a string")
	}
	if s == "" {
		return "", decodeErr(name, "must not be empty")
	}
	return s, nil
}

func (p payload) real(name string) (float64, error) {
	n, err := p.number(name)
	if err != nil {
		return 0, err
	}
	f, err := n.Float64()
	if err != nil {
		return 0, decodeErr(name, "out of range")
	}
	return f, nil
}

// integer accepts whole numbers written either as 300 or 300.0, within
// the int32 range.
func (p payload) integer(name string) (int, error) {
	n, err := p.number(name)
	if err != nil {
		return 0, err
	}
	if i, err := n.Int64(); err == nil {
		if i > math.MaxInt32 || i < math.MinInt32 {
			return 0, decodeErr(name, "out of range")
		}
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, decodeErr(name, "must be an integer")
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, decodeErr(name, "out of range")
	}
	return int(f), nil
}

func (p payload) number(name string) (json.Number, error) {
	v, err := p.value(name)
	if err != nil {
		return "", err
	}
	n, ok := v.(json.Number)
	if !ok {
		return "", decodeErr(name, "must be a number")
	}
	return n, nil
}

// value decodes a single field with UseNumber so integers keep full precision.
func (p payload) value(name string) (any, error) {
	raw, ok := p[name]
	if !ok {
		return nil, decodeErr(name, "missing")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, decodeErr(name, "malformed value")
	}
	return v, nil
}
