package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"safewatch-cloud/internal/config"
	"safewatch-cloud/internal/observability/metrics"
	"safewatch-cloud/internal/telemetry/application"
	telemetry "safewatch-cloud/internal/telemetry/domain"
)

const handlerTimeout = 10 * time.Second

// Client wraps the paho client for the telemetry topics and the command
// publish channel. A message that fails validation is logged and dropped;
// the subscription loop never stops over a bad payload.
type Client struct {
	client     paho.Client
	cfg        config.MQTTConfig
	normalizer *application.Normalizer
	logger     *zap.Logger
}

// NewClient connects to the broker and returns a client.
func NewClient(cfg config.MQTTConfig, normalizer *application.Normalizer, logger *zap.Logger) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: empty broker")
	}
	if normalizer == nil {
		return nil, errors.New("mqtt: nil normalizer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect to broker: %w", token.Error())
	}

	return &Client{client: client, cfg: cfg, normalizer: normalizer, logger: logger}, nil
}

// SubscribeTelemetry subscribes the sensor, status and rotation topics.
func (c *Client) SubscribeTelemetry() error {
	if c == nil || c.client == nil {
		return errors.New("mqtt: nil client")
	}
	subscriptions := map[string]telemetry.Kind{
		c.cfg.SensorTopic:   telemetry.KindSensor,
		c.cfg.StatusTopic:   telemetry.KindStatus,
		c.cfg.RotationTopic: telemetry.KindRotation,
	}
	for topic, kind := range subscriptions {
		if topic == "" {
			continue
		}
		kind := kind
		token := c.client.Subscribe(topic, c.cfg.QoS, func(_ paho.Client, msg paho.Message) {
			c.handle(kind, msg)
		})
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("mqtt: subscribe %s: %w", topic, token.Error())
		}
	}
	return nil
}

func (c *Client) handle(kind telemetry.Kind, msg paho.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if _, err := c.normalizer.Ingest(ctx, kind, msg.Payload()); err != nil {
		var verr *application.ValidationError
		reason := "store"
		if errors.As(err, &verr) {
			reason = string(verr.Kind)
		}
		metrics.IncMQTTDropped(reason)
		c.logger.Warn("mqtt message dropped",
			zap.String("topic", msg.Topic()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

type commandMessage struct {
	DeviceID string    `json:"deviceId"`
	Command  string    `json:"command"`
	IssuedAt time.Time `json:"issuedAt"`
}

// PublishCommand publishes a pass-through device command.
func (c *Client) PublishCommand(deviceID, command string) error {
	if c == nil || c.client == nil {
		return errors.New("mqtt: nil client")
	}
	if deviceID == "" || command == "" {
		return errors.New("mqtt: device id and command required")
	}
	payload, err := json.Marshal(commandMessage{
		DeviceID: deviceID,
		Command:  command,
		IssuedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	topic := c.cfg.CommandTopic + "/" + deviceID
	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, token.Error())
	}
	return nil
}

// Disconnect closes the broker connection.
func (c *Client) Disconnect() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(250)
}
