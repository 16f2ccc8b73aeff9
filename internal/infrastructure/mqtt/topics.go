package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/esplink/internal/infrastructure/config"
)

// SystemStatusTopic carries the retained online/offline status of this
// process, including the Last Will.
const SystemStatusTopic = "esplink/system/status"

// Topics holds the device topics from configuration.
//
//	topics := mqtt.NewTopics(cfg.MQTT.Topics)
//	topics.Control() // "esp8266/control"
type Topics struct {
	telemetry string
	status    string
	control   string
}

// NewTopics builds a Topics from configuration.
func NewTopics(cfg config.MQTTTopicsConfig) Topics {
	return Topics{
		telemetry: cfg.Telemetry,
		status:    cfg.Status,
		control:   cfg.Control,
	}
}

// Telemetry is where devices publish periodic sensor readings.
func (t Topics) Telemetry() string { return t.telemetry }

// Status is where devices acknowledge commands with their new state.
func (t Topics) Status() string { return t.status }

// Control is where commands are published to devices.
func (t Topics) Control() string { return t.control }

// SystemStatus returns SystemStatusTopic.
func (Topics) SystemStatus() string { return SystemStatusTopic }

// ValidatePublishTopic rejects topics that cannot be published to:
// empty topics, wildcards, and embedded NUL characters.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#\x00") {
		return fmt.Errorf("%w: %q contains a wildcard or NUL", ErrInvalidTopic, topic)
	}
	return nil
}
