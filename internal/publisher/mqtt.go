package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jgoulah/espisync/internal/config"
	"github.com/jgoulah/espisync/pkg/models"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 10 * time.Second
	disconnectWait = 250 // milliseconds
)

// ErrDisabled is returned by New when MQTT publishing is turned off.
var ErrDisabled = errors.New("mqtt publishing is disabled in config")

// client is the subset of mqtt.Client the publisher needs
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Publisher publishes readings to an MQTT broker
type Publisher struct {
	client      client
	topicPrefix string
	qos         byte
}

// Message is the JSON payload published for each reading
type Message struct {
	Timestamp int64   `json:"timestamp"`
	Start     string  `json:"start"`
	End       string  `json:"end"`
	Duration  int64   `json:"duration"`
	ValueKWh  float64 `json:"value_kwh"`
	Type      string  `json:"type"`
}

// New connects to the configured broker
func New(cfg config.MQTTConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "espisync"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(false)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return newPublisher(c, cfg.TopicPrefix, cfg.QoS), nil
}

func newPublisher(c client, topicPrefix string, qos byte) *Publisher {
	if topicPrefix == "" {
		topicPrefix = "energy_usage"
	}
	return &Publisher{client: c, topicPrefix: topicPrefix, qos: qos}
}

// Topic returns the topic a reading is published to
func (p *Publisher) Topic(r models.Reading) string {
	return p.topicPrefix + "/" + r.Category
}

// NewMessage builds the payload for a reading
func NewMessage(r models.Reading) Message {
	return Message{
		Timestamp: r.Timestamp,
		Start:     r.Time().Format(time.RFC3339),
		End:       r.End().Format(time.RFC3339),
		Duration:  r.Duration,
		ValueKWh:  r.Value,
		Type:      r.Category,
	}
}

// Name identifies the sink in logs and errors
func (p *Publisher) Name() string {
	return "mqtt"
}

// WriteReadings publishes one message per reading, stopping at the first failure
func (p *Publisher) WriteReadings(ctx context.Context, readings []models.Reading) (int, error) {
	for i, r := range readings {
		if err := p.publish(ctx, r); err != nil {
			return i, err
		}
	}
	return len(readings), nil
}

func (p *Publisher) publish(ctx context.Context, r models.Reading) error {
	body, err := json.Marshal(NewMessage(r))
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	topic := p.Topic(r)
	token := p.client.Publish(topic, p.qos, false, body)

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publishing to %s: %w", topic, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("publishing to %s: timeout after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() error {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(disconnectWait)
	}
	return nil
}
