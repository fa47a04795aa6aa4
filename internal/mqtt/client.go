// internal/mqtt/client.go

// Package mqtt is the messaging link: a paho client with automatic
// reconnection turned off, since the connectivity supervisor owns retries.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/endpoint"
)

// Availability payloads on Topics.Status.
const (
	Online  = "online"
	Offline = "offline"
)

var ErrNotConnected = errors.New("mqtt: not connected")

// Config is the broker session config.
type Config struct {
	Broker   string // tcp://host:port, ssl://host:port
	Username string
	Password string
	Topics   Topics

	ConnectTimeout time.Duration
}

// Client implements publisher.Messaging and the supervisor's messaging link.
type Client struct {
	cfg    Config
	router *Router
	log    *slog.Logger
	client paho.Client

	mu     sync.Mutex
	onLost func(error)
}

// New builds the client. It does not connect.
func New(cfg Config, router *Router, log *slog.Logger) (*Client, error) {
	if cfg.Topics.DeviceID == "" {
		return nil, errors.New("mqtt: device id required")
	}
	if router == nil {
		return nil, errors.New("mqtt: router required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		router: router,
		log:    log.With("component", "mqtt"),
	}

	opts, err := c.options()
	if err != nil {
		return nil, err
	}
	c.client = paho.NewClient(opts)
	return c, nil
}

// OnConnectionLost sets the callback for an unexpected disconnect.
func (c *Client) OnConnectionLost(fn func(error)) {
	c.mu.Lock()
	c.onLost = fn
	c.mu.Unlock()
}

func (c *Client) options() (*paho.ClientOptions, error) {
	broker, tlsOn, err := brokerURL(c.cfg.Broker)
	if err != nil {
		return nil, err
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID(c.cfg.Topics.DeviceID))
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(c.cfg.ConnectTimeout)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetWill(c.cfg.Topics.Status(), Offline, 1, true)
	if tlsOn {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		c.router.Dispatch(msg.Topic(), msg.Payload())
	})

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.log.Warn("broker connection lost", "err", err)
		c.mu.Lock()
		fn := c.onLost
		c.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	})

	return opts, nil
}

// brokerURL normalizes the broker address and fills in the default port.
func brokerURL(s string) (string, bool, error) {
	ep, err := endpoint.Parse(s)
	if err != nil {
		return "", false, fmt.Errorf("mqtt: broker: %w", err)
	}

	var tlsOn bool
	switch ep.Protocol {
	case "tcp", "mqtt":
	case "ssl", "tls", "mqtts":
		tlsOn = true
	default:
		return "", false, fmt.Errorf("mqtt: broker: unsupported protocol %q", ep.Protocol)
	}

	hp, err := ep.HostPort()
	if err != nil {
		return "", false, fmt.Errorf("mqtt: broker: %w", err)
	}
	return ep.Protocol + "://" + hp, tlsOn, nil
}

// clientID is unique per process so a restarted gateway never collides
// with its own stale session.
func clientID(deviceID string) string {
	return deviceID + "-" + uuid.New().String()[:8]
}

// Connect opens the session, announces availability and subscribes to the
// action tree. Subscriptions are renewed on every connect (clean session).
func (c *Client) Connect(ctx context.Context) error {
	c.log.Info("attempting MQTT connection", "broker", c.cfg.Broker)

	if err := c.wait(ctx, c.client.Connect()); err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}

	if err := c.wait(ctx, c.client.Publish(c.cfg.Topics.Status(), 1, true, Online)); err != nil {
		c.log.Warn("availability publish failed", "err", err)
	}

	filter := c.cfg.Topics.Actions()
	tok := c.client.Subscribe(filter, 1, func(_ paho.Client, msg paho.Message) {
		c.router.Dispatch(msg.Topic(), msg.Payload())
	})
	if err := c.wait(ctx, tok); err != nil {
		c.client.Disconnect(250)
		return fmt.Errorf("mqtt: subscribe %s: %w", filter, err)
	}

	c.log.Info("connected to MQTT", "subscribed", filter)
	return nil
}

func (c *Client) wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ConnectTimeout):
		return errors.New("timeout")
	}
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Publish sends one message and waits for the broker hand-off.
func (c *Client) Publish(topic string, qos byte, retain bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	tok := c.client.Publish(topic, qos, retain, payload)
	if !tok.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt: publish %s: timeout", topic)
	}
	return tok.Error()
}

// Close publishes offline and disconnects.
func (c *Client) Close() {
	if !c.client.IsConnectionOpen() {
		return
	}
	tok := c.client.Publish(c.cfg.Topics.Status(), 1, true, Offline)
	tok.WaitTimeout(time.Second)
	c.client.Disconnect(250)
}
