package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/catalogdb/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger reports reconnects, dropped events and handler failures.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithConnectionLostHandler is called each time the broker connection drops.
// Paho reconnects on its own afterwards.
func WithConnectionLostHandler(fn func(error)) Option {
	return func(c *Client) {
		c.onLost = fn
	}
}

// Client is one catalogdb instance's broker session.
//
// It keeps the instance's retained status topic current (online after every
// connect, offline on Close, the Last Will on a crash) and re-subscribes
// query watches after a reconnect.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	logger Logger
	onLost func(error)

	connected atomic.Bool

	mu      sync.Mutex
	watches map[string]pahomqtt.MessageHandler
}

func newClient(cfg config.MQTTConfig, instance string, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		topics:  Topics{Instance: instance},
		watches: make(map[string]pahomqtt.MessageHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens a session for instance. It returns ErrDisabled when the
// broker is switched off in cfg.
func Connect(ctx context.Context, cfg config.MQTTConfig, instance string, opts ...Option) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if instance == "" {
		return nil, fmt.Errorf("%w: instance ID is required", ErrConnectionFailed)
	}

	c := newClient(cfg, instance, opts...)
	po := clientOptions(cfg, c.topics)
	po.SetOnConnectHandler(func(pahomqtt.Client) { c.sessionUp() })
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.sessionLost(err) })
	po.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logWarn("MQTT reconnecting", "broker", po.Servers[0].String())
	})

	c.paho = pahomqtt.NewClient(po)
	if err := await(ctx, c.paho.Connect(), connectTimeout); err != nil {
		// Stops the connect-retry loop.
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	// The OnConnect hook runs on its own goroutine and may still be pending.
	c.connected.Store(true)
	return c, nil
}

// sessionUp runs after every successful (re)connect.
func (c *Client) sessionUp() {
	c.connected.Store(true)

	c.mu.Lock()
	for topic, cb := range c.watches {
		tok := c.paho.Subscribe(topic, c.qos(), cb)
		go c.reportAsync(tok, "re-subscribing query watch failed", "topic", topic)
	}
	c.mu.Unlock()

	tok := c.paho.Publish(c.topics.Status(), c.qos(), true, statusPayload(statusOnline, c.cfg.Broker.ClientID, ""))
	go c.reportAsync(tok, "publishing online status failed", "topic", c.topics.Status())
}

func (c *Client) sessionLost(err error) {
	c.connected.Store(false)
	if c.onLost != nil {
		c.onLost(err)
	}
}

// Topics returns the topic builder for this client's instance.
func (c *Client) Topics() Topics {
	return c.topics
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	return c != nil && c.paho != nil && c.connected.Load() && c.paho.IsConnected()
}

// HealthCheck reports ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close marks the instance offline (a graceful shutdown, distinct from the
// Last Will) and disconnects. Safe on a nil Client.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		tok := c.paho.Publish(c.topics.Status(), c.qos(), true,
			statusPayload(statusOffline, c.cfg.Broker.ClientID, reasonShutdown))
		if err := await(context.Background(), tok, publishTimeout); err != nil {
			c.logWarn("publishing offline status failed", "error", err)
		}
	}
	c.paho.Disconnect(disconnectQuiesce)
	c.connected.Store(false)
	return nil
}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS) // #nosec G115 -- config validation bounds QoS to 0..2
}

// reportAsync logs tok's failure, if any. Run it on its own goroutine.
func (c *Client) reportAsync(tok pahomqtt.Token, msg string, args ...any) {
	if err := await(context.Background(), tok, publishTimeout); err != nil {
		c.logWarn(msg, append(args, "error", err)...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}

// await blocks until tok completes, ctx ends or timeout elapses.
func await(ctx context.Context, tok pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no broker response after %v", timeout)
	}
}
