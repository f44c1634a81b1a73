package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/niktheblak/esp32-sensor-api/internal/publish"
	"github.com/niktheblak/esp32-sensor-api/pkg/sensor"
)

const (
	DefaultTopic    = "esp32/iot"
	DefaultClientID = "esp32-sensor-api"

	// milliseconds
	disconnectQuiesce = 250
)

type Config struct {
	Server   string
	Username string
	Password string
	ClientID string
	Topic    string
}

// Publisher mirrors readings to an MQTT topic as retained JSON messages.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// New connects to the broker in cfg.Server. It gives up when ctx is done
// before the broker has answered.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	return connect(ctx, mqtt.NewClient(opts), cfg.Topic)
}

func connect(ctx context.Context, client mqtt.Client, topic string) (*Publisher, error) {
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return NewWithClient(client, topic), nil
}

// NewWithClient wraps an already connected client.
func NewWithClient(client mqtt.Client, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, r sensor.Reading) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	// retained so that new subscribers get the current value immediately
	token := p.client.Publish(p.topic, 0, true, b)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(disconnectQuiesce)
	}
	return nil
}

var _ publish.Publisher = (*Publisher)(nil)
