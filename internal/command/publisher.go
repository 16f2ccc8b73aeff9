package command

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transport publishes raw MQTT messages. *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Publisher publishes commands on the control topic.
type Publisher struct {
	transport Transport
	topic     string
	qos       byte
}

// NewPublisher creates a Publisher for the given control topic.
func NewPublisher(transport Transport, topic string, qos byte) *Publisher {
	return &Publisher{
		transport: transport,
		topic:     topic,
		qos:       qos,
	}
}

// Topic returns the control topic commands are published on.
func (p *Publisher) Topic() string {
	return p.topic
}

// Send encodes cmd and publishes it, not retained, so a device that
// reconnects later never replays a stale command.
//
// Returns ErrInvalidCommand for an incomplete command, ctx.Err() if ctx is
// already done, or a *PublishError if the transport fails.
func (p *Publisher) Send(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	if err := p.transport.Publish(p.topic, payload, p.qos, false); err != nil {
		return &PublishError{Device: cmd.Device, Topic: p.topic, Err: err}
	}
	return nil
}
