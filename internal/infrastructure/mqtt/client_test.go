package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "enipbridge-test",
		},
		TopicPrefix: "test/enip",
		QoS:         1,
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		prefix string
		data   string
		status string
		health string
	}{
		{"ethernetip", "ethernetip/data", "ethernetip/status", "ethernetip/health"},
		{"plant/line1/", "plant/line1/data", "plant/line1/status", "plant/line1/health"},
		{"", "ethernetip/data", "ethernetip/status", "ethernetip/health"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			topics := NewTopics(tt.prefix)
			if got := topics.Data(); got != tt.data {
				t.Errorf("Data() = %q, want %q", got, tt.data)
			}
			if got := topics.Status(); got != tt.status {
				t.Errorf("Status() = %q, want %q", got, tt.status)
			}
			if got := topics.Health(); got != tt.health {
				t.Errorf("Health() = %q, want %q", got, tt.health)
			}
		})
	}
}

func TestZeroTopicsUsesDefaultPrefix(t *testing.T) {
	var topics Topics
	if got := topics.Data(); got != "ethernetip/data" {
		t.Errorf("zero Topics Data() = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "user", Password: "pass"}

	opts := buildClientOptions(cfg)

	if opts.AutoReconnect {
		t.Error("AutoReconnect should be disabled")
	}
	if opts.ConnectRetry {
		t.Error("ConnectRetry should be disabled")
	}
	if opts.ClientID != "enipbridge-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
}

func TestBrokerURL_TLS(t *testing.T) {
	got := brokerURL(config.MQTTBrokerConfig{Host: "broker", Port: 8883, TLS: true})
	if got != "ssl://broker:8883" {
		t.Errorf("brokerURL() = %q, want ssl://broker:8883", got)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, NewTopics("test/enip"), "enipbridge-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "test/enip/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained/qos = %v/%d", opts.WillRetained, opts.WillQos)
	}

	var payload statusPayload
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload not JSON: %v", err)
	}
	if payload.Status != "offline" || payload.Reason != reasonUnexpected {
		t.Errorf("will payload = %+v", payload)
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var payload statusPayload
	if err := json.Unmarshal(buildStatusPayload("online", "c1", ""), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Status != "online" || payload.ClientID != "c1" || payload.Reason != "" {
		t.Errorf("payload = %+v", payload)
	}
	if _, err := time.Parse(time.RFC3339, payload.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", payload.Timestamp, err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := New(testConfig())

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{"empty topic", "", 1, []byte("x"), ErrInvalidTopic},
		{"invalid qos", "t", 3, []byte("x"), ErrInvalidQoS},
		{"oversized payload", "t", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"not connected", "t", 1, []byte("x"), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewClient_InitialState(t *testing.T) {
	client := New(testConfig())

	if client.IsConnected() {
		t.Error("IsConnected() = true before Connect")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
	if got := client.Topics().Data(); got != "test/enip/data" {
		t.Errorf("Topics().Data() = %q", got)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() = %v, want context.Canceled", err)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1 // nothing listens here

	client := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Connect(ctx)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after failed Connect")
	}
}

func TestHandleDisconnect_InvokesCallback(t *testing.T) {
	client := New(testConfig())

	got := make(chan error, 1)
	client.SetOnDisconnect(func(err error) { got <- err })

	cause := errors.New("EOF")
	client.handleDisconnect(cause)

	select {
	case err := <-got:
		if !errors.Is(err, cause) {
			t.Errorf("callback error = %v, want %v", err, cause)
		}
	default:
		t.Fatal("disconnect callback not invoked")
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}
