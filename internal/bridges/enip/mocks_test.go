package enip

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errBoom is a generic non-transport failure.
var errBoom = errors.New("boom")

// callLog records the order of Close calls across sessions.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// MockPLC implements PLC for testing.
type MockPLC struct {
	mu         sync.Mutex
	connectErr error
	values     map[string]any
	errs       map[string]error
	reads      []readCall
	closes     int
}

type readCall struct {
	Tag  string
	Type TagType
}

func NewMockPLC() *MockPLC {
	return &MockPLC{
		values: make(map[string]any),
		errs:   make(map[string]error),
	}
}

func (m *MockPLC) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectErr
}

func (m *MockPLC) ReadTag(tag string, typ TagType) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, readCall{Tag: tag, Type: typ})
	if err, ok := m.errs[tag]; ok {
		return nil, err
	}
	if v, ok := m.values[tag]; ok {
		return v, nil
	}
	return nil, errors.New("tag not found")
}

func (m *MockPLC) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *MockPLC) GetReads() []readCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]readCall(nil), m.reads...)
}

func (m *MockPLC) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// MockDevice implements DeviceSession for testing.
type MockDevice struct {
	mu          sync.Mutex
	log         *callLog
	connectErrs []error // consumed one per Connect; nil once exhausted
	connects    int
	closes      int
	reads       int
	state       ConnectionState
	readFn      func(tags []string) (PollResult, error)
}

func NewMockDevice(log *callLog) *MockDevice {
	return &MockDevice{
		log:   log,
		state: StateDisconnected,
		readFn: func(tags []string) (PollResult, error) {
			r := make(PollResult, len(tags))
			for i, tag := range tags {
				r[tag] = float32(i) + 0.5
			}
			return r, nil
		},
	}
}

func (m *MockDevice) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	var err error
	if len(m.connectErrs) > 0 {
		err = m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
	}
	if err != nil {
		m.state = StateFailed
		return errors.Join(ErrConnectFailed, err)
	}
	m.state = StateConnected
	return nil
}

func (m *MockDevice) ReadAll(ctx context.Context, tags []string) (PollResult, error) {
	m.mu.Lock()
	m.reads++
	fn := m.readFn
	m.mu.Unlock()

	result, err := fn(tags)
	if errors.Is(err, ErrLinkLost) {
		m.mu.Lock()
		m.state = StateFailed
		m.mu.Unlock()
	}
	return result, err
}

func (m *MockDevice) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockDevice) IsConnected() bool {
	return m.State() == StateConnected
}

func (m *MockDevice) Close() {
	m.mu.Lock()
	m.closes++
	m.state = StateDisconnected
	m.mu.Unlock()
	m.log.add("device.Close")
}

func (m *MockDevice) SetReadFn(fn func(tags []string) (PollResult, error)) {
	m.mu.Lock()
	m.readFn = fn
	m.mu.Unlock()
}

func (m *MockDevice) SetConnectErrs(errs ...error) {
	m.mu.Lock()
	m.connectErrs = errs
	m.mu.Unlock()
}

func (m *MockDevice) Counts() (connects, reads, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.reads, m.closes
}

// MockBroker implements BrokerSession for testing.
type MockBroker struct {
	mu           sync.Mutex
	log          *callLog
	connectErrs  []error
	connects     int
	closes       int
	state        ConnectionState
	published    []mockPublish
	publishErr   error
	disconnected chan error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockBroker(log *callLog) *MockBroker {
	return &MockBroker{
		log:          log,
		state:        StateDisconnected,
		disconnected: make(chan error, 1),
	}
}

func (m *MockBroker) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	var err error
	if len(m.connectErrs) > 0 {
		err = m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
	}
	if err != nil {
		m.state = StateFailed
		return errors.Join(ErrConnectFailed, err)
	}
	m.state = StateConnected
	return nil
}

func (m *MockBroker) Publish(topic string, payload []byte, qos byte, retain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return ErrBrokerNotConnected
	}
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retain})
	return nil
}

func (m *MockBroker) IsConnected() bool {
	return m.State() == StateConnected
}

func (m *MockBroker) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockBroker) Disconnected() <-chan error {
	return m.disconnected
}

func (m *MockBroker) Close() {
	m.mu.Lock()
	m.closes++
	m.state = StateDisconnected
	m.mu.Unlock()
	m.log.add("broker.Close")
}

// Drop simulates an unexpected link loss.
func (m *MockBroker) Drop() {
	m.mu.Lock()
	m.state = StateFailed
	m.mu.Unlock()
	select {
	case m.disconnected <- errors.New("connection reset"):
	default:
	}
}

func (m *MockBroker) SetConnectErrs(errs ...error) {
	m.mu.Lock()
	m.connectErrs = errs
	m.mu.Unlock()
}

// PublishedTo returns messages published to topic.
func (m *MockBroker) PublishedTo(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockBroker) Counts() (connects, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.closes
}

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	publishErr   error
	published    []mockPublish
	closes       int
	onDisconnect func(err error)
}

func (m *MockMQTTClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetOnDisconnect(callback func(err error)) {
	m.mu.Lock()
	m.onDisconnect = callback
	m.mu.Unlock()
}

func (m *MockMQTTClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	m.connected = false
	return nil
}

// SimulateConnectionLost invokes the registered callback as paho would.
func (m *MockMQTTClient) SimulateConnectionLost(err error) {
	m.mu.Lock()
	m.connected = false
	cb := m.onDisconnect
	m.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// MockEvents implements EventRecorder for testing.
type MockEvents struct {
	mu     sync.Mutex
	events []Event
}

func (m *MockEvents) RecordEvent(ctx context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MockEvents) Types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

func (m *MockEvents) Has(t EventType) bool {
	for _, got := range m.Types() {
		if got == t {
			return true
		}
	}
	return false
}

// MockHistorian implements Historian for testing.
type MockHistorian struct {
	mu     sync.Mutex
	writes []map[string]any
}

func (m *MockHistorian) WriteTags(device string, ts time.Time, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, data)
}

func (m *MockHistorian) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// waitFor polls cond until it holds or timeout elapses.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
