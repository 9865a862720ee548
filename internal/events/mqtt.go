package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker      string // tcp://host:1883
	ClientID    string
	TopicPrefix string
}

// MQTTPublisher publishes events as JSON to <prefix>/<type>.
type MQTTPublisher struct {
	client    mqtt.Client
	prefix    string
	connected atomic.Bool
	published atomic.Int64
	failed    atomic.Int64
}

// NewMQTTPublisher connects to the broker. The client reconnects on its own
// after the first successful connection.
func NewMQTTPublisher(ctx context.Context, cfg MQTTConfig) (*MQTTPublisher, error) {
	p := &MQTTPublisher{prefix: cfg.TopicPrefix}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		p.connected.Store(true)
		slog.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.connected.Store(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	p.connected.Store(true)
	return p, nil
}

// Topic returns the topic an event type is published on.
func (p *MQTTPublisher) Topic(t Type) string {
	return p.prefix + "/" + string(t)
}

// Publish sends the event without waiting for the broker acknowledgement.
func (p *MQTTPublisher) Publish(_ context.Context, e Event) {
	if !p.connected.Load() {
		p.failed.Add(1)
		slog.Debug("mqtt not connected, dropping event", "event_id", e.ID, "type", e.Type)
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.failed.Add(1)
		slog.Error("failed to marshal event", "event_id", e.ID, "error", err)
		return
	}

	topic := p.Topic(e.Type)
	token := p.client.Publish(topic, 1, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			p.failed.Add(1)
			slog.Warn("mqtt publish failed", "topic", topic, "event_id", e.ID, "error", err)
			return
		}
		p.published.Add(1)
		slog.Debug("event published", "topic", topic, "event_id", e.ID, "size", len(payload))
	}()
}

// Stats returns the published and failed counters.
func (p *MQTTPublisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
	p.connected.Store(false)
}
