package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the bridge's publish-only use.
//
// Unlike a long-lived paho client, each Connect builds a fresh paho client
// with automatic reconnection disabled; when the link drops the
// disconnect callback fires once and the owner decides when to dial again.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	cfg    config.MQTTConfig
	topics Topics

	// client is the active paho client; replaced on every Connect.
	client pahomqtt.Client
	mu     sync.RWMutex

	// connected tracks current connection state.
	connected bool

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// New creates an unconnected client for cfg. Call Connect to dial the broker.
func New(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
	}
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Disconnects any previous paho client held by this Client
//  2. Builds connection options from config (broker URL, auth, TLS)
//  3. Configures Last Will and Testament (LWT) on <prefix>/status
//  4. Waits for the CONNACK, bounded by ctx and the connect timeout
//  5. Publishes retained online status
//
// Parameters:
//   - ctx: Cancels the wait for the broker's answer
//
// Returns:
//   - error: wrapping ErrConnectionFailed if the broker cannot be reached
func (c *Client) Connect(ctx context.Context) error {
	c.dropClient()

	opts := buildClientOptions(c.cfg)
	configureLWT(opts, c.topics, c.cfg.Broker.ClientID)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	pc := pahomqtt.NewClient(opts)
	token := pc.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		pc.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously and may not have executed
	// yet, so mark the client connected here as well.
	c.mu.Lock()
	c.client = pc
	c.connected = true
	c.mu.Unlock()

	c.publishStatus("online", "")

	return nil
}

// handleConnect is called by paho when the connection is established.
func (c *Client) handleConnect() {
	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called by paho when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// publishStatus publishes a retained status message without waiting for the ack.
func (c *Client) publishStatus(status, reason string) {
	c.mu.RLock()
	pc := c.client
	c.mu.RUnlock()
	if pc == nil {
		return
	}
	pc.Publish(c.topics.Status(), byte(c.cfg.QoS), true, buildStatusPayload(status, c.cfg.Broker.ClientID, reason))
}

// dropClient disconnects and forgets the current paho client, if any.
func (c *Client) dropClient() {
	c.mu.Lock()
	pc := c.client
	c.client = nil
	c.connected = false
	c.mu.Unlock()

	if pc != nil && pc.IsConnectionOpen() {
		pc.Disconnect(defaultDisconnectQuiesce)
	}
}

// Close gracefully disconnects from the MQTT broker.
//
// It publishes a graceful offline status (different from the LWT crash
// status) when connected, then stops paho's network loop. Close is safe to
// call on a never-connected or already-closed client.
func (c *Client) Close() error {
	c.mu.RLock()
	pc := c.client
	c.mu.RUnlock()
	if pc == nil {
		return nil
	}

	if c.IsConnected() {
		token := pc.Publish(c.topics.Status(), byte(c.cfg.QoS), true,
			buildStatusPayload("offline", c.cfg.Broker.ClientID, reasonGraceful))
		if !token.WaitTimeout(defaultPublishTimeout) {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("offline status publish timed out")
			}
		}
	}

	c.dropClient()
	return nil
}

// HealthCheck reports ErrNotConnected when the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// SetOnConnect sets a callback to be invoked when a connection is established.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when the connection is lost.
// It is not called for disconnects initiated by Close.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for warnings raised inside the client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
