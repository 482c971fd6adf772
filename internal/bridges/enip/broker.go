package enip

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/mqtt"
)

// MQTTClient is the broker client capability the Broker wraps.
// Satisfied by *mqtt.Client; tests substitute a fake.
type MQTTClient interface {
	// Connect dials the broker. Automatic reconnection must be off.
	Connect(ctx context.Context) error

	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// SetOnDisconnect registers the connection-lost callback.
	SetOnDisconnect(callback func(err error))

	// Close disconnects gracefully and stops the client's network loop.
	Close() error
}

// BrokerSession is the broker side of the bridge.
type BrokerSession interface {
	// Connect opens (or reopens) the broker link.
	// Failures wrap ErrConnectFailed and leave the state Failed.
	Connect(ctx context.Context) error

	// Publish sends one message. While disconnected it returns
	// ErrBrokerNotConnected and the message is dropped.
	Publish(topic string, payload []byte, qos byte, retain bool) error

	// IsConnected reports whether the link is up.
	IsConnected() bool

	// State returns the current connection state.
	State() ConnectionState

	// Disconnected delivers one notification per unexpected link loss.
	Disconnected() <-chan error

	// Close releases the link. Idempotent and infallible.
	Close()
}

// Broker is the BrokerSession over an MQTT client.
//
// Thread Safety: All methods are safe for concurrent use.
type Broker struct {
	client MQTTClient
	logger Logger

	// disconnected buffers one pending notification; further losses
	// before the supervisor reacts collapse into it.
	disconnected chan error

	mu    sync.RWMutex
	state ConnectionState
}

// NewBroker wraps client and registers for its connection-lost callback.
func NewBroker(client MQTTClient, logger Logger) *Broker {
	b := &Broker{
		client:       client,
		logger:       logger,
		disconnected: make(chan error, 1),
		state:        StateDisconnected,
	}
	client.SetOnDisconnect(b.handleConnectionLost)
	return b
}

// Connect dials the broker.
func (b *Broker) Connect(ctx context.Context) error {
	b.setState(StateConnecting)

	if err := b.client.Connect(ctx); err != nil {
		b.setState(StateFailed)
		return fmt.Errorf("%w: broker: %w", ErrConnectFailed, err)
	}

	// A notification raised by the previous link is stale now.
	select {
	case <-b.disconnected:
	default:
	}

	b.setState(StateConnected)
	logInfo(b.logger, "broker connected")
	return nil
}

// Publish sends payload to topic. It never blocks waiting for a reconnect.
func (b *Broker) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if !b.IsConnected() {
		return ErrBrokerNotConnected
	}

	if err := b.client.Publish(topic, payload, qos, retain); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			return ErrBrokerNotConnected
		}
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// IsConnected reports whether the broker link is up.
func (b *Broker) IsConnected() bool {
	return b.State() == StateConnected && b.client.IsConnected()
}

// State returns the current connection state.
func (b *Broker) State() ConnectionState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Disconnected delivers connection-lost notifications.
func (b *Broker) Disconnected() <-chan error {
	return b.disconnected
}

// Close publishes the graceful offline status and disconnects.
func (b *Broker) Close() {
	if err := b.client.Close(); err != nil {
		logWarn(b.logger, "broker close failed", "error", err)
	}
	b.setState(StateDisconnected)
}

// handleConnectionLost runs on the MQTT client's callback goroutine.
func (b *Broker) handleConnectionLost(err error) {
	b.setState(StateFailed)
	logWarn(b.logger, "broker connection lost", "error", err)

	if err == nil {
		err = ErrBrokerNotConnected
	}
	select {
	case b.disconnected <- err:
	default:
	}
}

func (b *Broker) setState(state ConnectionState) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

// isNotConnected reports whether err is a drop caused by a down broker link.
func isNotConnected(err error) bool {
	return errors.Is(err, ErrBrokerNotConnected)
}
