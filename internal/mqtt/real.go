package mqtt

import (
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/namuen/sensor-bot/internal/logger"
)

// Options configures the broker connection.
type Options struct {
	Broker   string
	Username string
	Password string
	ClientID string // generated when empty
	Topics   Topics

	// OnConnection is called with the broker connection state. Optional.
	OnConnection func(connected bool)
}

// RealClient subscribes to an actual MQTT broker.
type RealClient struct {
	client paho.Client
	topics Topics
	log    zerolog.Logger
}

// NewRealClient connects to the broker and subscribes to the sensor topics on
// every (re)connect. A slow initial connect is not fatal; paho keeps retrying.
func NewRealClient(o Options, handler Handler) (*RealClient, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is required")
	}
	if o.ClientID == "" {
		hostname, _ := os.Hostname()
		o.ClientID = "sensor-bot-" + hostname + "-" + uuid.NewString()[:8]
	}

	c := &RealClient{
		topics: o.Topics,
		log:    logger.WithComponent("mqtt"),
	}
	notify := func(connected bool) {
		if o.OnConnection != nil {
			o.OnConnection(connected)
		}
	}

	will, err := WillPayload()
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetCleanSession(true).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(will), 1, true)

	onMessage := func(_ paho.Client, msg paho.Message) {
		r, ok := Decode(c.topics, msg.Topic(), msg.Payload(), time.Now())
		if !ok {
			c.log.Debug().Str("topic", msg.Topic()).Msg("ignoring message on unknown topic")
			return
		}
		handler(r)
	}

	// Subscribe on every connect so a reconnect with a clean session resubscribes.
	opts.SetOnConnectHandler(func(client paho.Client) {
		c.log.Info().Str("broker", o.Broker).Msg("connected")
		notify(true)
		filters := map[string]byte{}
		for _, t := range c.topics.List() {
			filters[t] = 0
		}
		token := client.SubscribeMultiple(filters, onMessage)
		if !token.WaitTimeout(10 * time.Second) {
			c.log.Error().Strs("topics", c.topics.List()).Msg("subscribe timeout")
			return
		}
		if err := token.Error(); err != nil {
			c.log.Error().Err(err).Strs("topics", c.topics.List()).Msg("subscribe failed")
			return
		}
		c.log.Info().Strs("topics", c.topics.List()).Msg("subscribed")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.log.Warn().Err(err).Msg("connection lost")
		notify(false)
	})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		c.log.Warn().Str("broker", o.Broker).Msg("broker not reachable yet, retrying in background")
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return c, nil
}

// PublishSystem sends a bot lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	token := c.client.Publish(TopicSystem, 1, event.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}

	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
