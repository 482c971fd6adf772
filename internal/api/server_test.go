package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-enip/internal/audit"
	"github.com/nerrad567/gray-logic-enip/internal/auth"
	"github.com/nerrad567/gray-logic-enip/internal/bridges/enip"
	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// fakeBridge is a scripted supervisor.
type fakeBridge struct {
	mu        sync.Mutex
	running   bool
	startErr  error
	resultErr error
	started   []enip.Settings
	done      chan struct{}
}

func newFakeBridge() *fakeBridge {
	done := make(chan struct{})
	close(done)
	return &fakeBridge{done: done}
}

func (b *fakeBridge) Start(settings enip.Settings) (<-chan error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return nil, b.startErr
	}
	if b.running {
		return nil, enip.ErrAlreadyRunning
	}
	b.running = b.resultErr == nil
	b.started = append(b.started, settings)
	b.done = make(chan struct{})

	result := make(chan error, 1)
	result <- b.resultErr
	return result, nil
}

func (b *fakeBridge) setErrors(startErr, resultErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startErr, b.resultErr = startErr, resultErr
}

func (b *fakeBridge) startCalls() []enip.Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]enip.Settings(nil), b.started...)
}

func (b *fakeBridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return enip.ErrNotRunning
	}
	b.running = false
	close(b.done)
	return nil
}

func (b *fakeBridge) Status() enip.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := enip.RunStopped
	if b.running {
		state = enip.RunRunning
	}
	return enip.Status{State: state, DeviceAddress: "192.168.1.10"}
}

func (b *fakeBridge) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

type fakeEvents struct {
	mu     sync.Mutex
	filter audit.Filter
	err    error
}

func (f *fakeEvents) lastFilter() audit.Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter
}

func (f *fakeEvents) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeEvents) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return &audit.ListResult{
		Events: []audit.EventLog{{ID: "evt-1", Type: "started"}},
		Total:  1,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{
			Broker:      config.MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "test"},
			Auth:        config.MQTTAuthConfig{Username: "bridge", Password: "hunter2"},
			TopicPrefix: "ethernetip",
			QoS:         1,
		},
		Device:       config.DeviceConfig{Address: "192.168.1.10", Tags: []string{"A", "B"}, TimeoutSeconds: 5},
		PollInterval: 5,
		Reconnect:    config.ReconnectConfig{InitialDelay: 5, MaxDelay: 60},
		Health:       config.HealthConfig{Interval: 30},
		API:          config.APIConfig{Host: "127.0.0.1", Port: 5000},
	}
}

type testEnv struct {
	srv    *Server
	http   *httptest.Server
	bridge *fakeBridge
	events *fakeEvents
	store  *config.Store
}

// newTestEnv serves the router over httptest. opts adjust Deps before New.
func newTestEnv(t *testing.T, secret string, opts ...func(*Deps)) *testEnv {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	env := &testEnv{
		bridge: newFakeBridge(),
		events: &fakeEvents{},
		store:  config.NewStore("", testConfig()),
	}

	deps := Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:       config.WebSocketConfig{Path: "/api/v1/ws", PushInterval: 1, PingInterval: 30},
		Security: config.SecurityConfig{APITokenSecret: secret},
		Logger:   log,
		Bridge:   env.bridge,
		Settings: env.store,
		Events:   env.events,
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	env.srv = srv

	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)
	go srv.statusPushLoop(ctx)

	env.http = httptest.NewServer(srv.buildRouter())
	t.Cleanup(func() {
		cancel()
		env.http.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func decodeAction(t *testing.T, data []byte) ActionResponse {
	t.Helper()
	var a ActionResponse
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("invalid action response %q: %v", data, err)
	}
	return a
}

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.Default()
	store := config.NewStore("", testConfig())

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Bridge: newFakeBridge(), Settings: store}},
		{"no bridge", Deps{Logger: log, Settings: store}},
		{"no settings", Deps{Logger: log, Bridge: newFakeBridge()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	resp, body := env.do(t, http.MethodGet, "/api/v1/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"version":"test"`) {
		t.Errorf("body = %s", body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestBridgeStart(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.do(t, http.MethodPost, "/api/v1/bridge/start", "", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if a := decodeAction(t, body); !a.Success {
		t.Errorf("response = %+v", a)
	}
	calls := env.bridge.startCalls()
	if len(calls) != 1 {
		t.Fatalf("Start called %d times", len(calls))
	}
	got := calls[0]
	if got.Device.Address != "192.168.1.10" || got.Topics().Data() != "ethernetip/data" {
		t.Errorf("settings = %+v", got)
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/bridge/start", "", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", resp.StatusCode)
	}
	if a := decodeAction(t, body); a.Success || a.Message != "bridge is already running" {
		t.Errorf("response = %+v", a)
	}
}

func TestBridgeStart_Wait(t *testing.T) {
	tests := []struct {
		name       string
		resultErr  error
		wantStatus int
		wantOK     bool
	}{
		{"started", nil, http.StatusOK, true},
		{"failed", enip.ErrConnectFailed, http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			env.bridge.setErrors(nil, tt.resultErr)

			resp, body := env.do(t, http.MethodPost, "/api/v1/bridge/start?wait=true", "", "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if a := decodeAction(t, body); a.Success != tt.wantOK {
				t.Errorf("response = %+v", a)
			}
		})
	}
}

func TestBridgeStart_InvalidSettings(t *testing.T) {
	env := newTestEnv(t, "")
	env.bridge.setErrors(enip.ErrInvalidSettings, nil)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/bridge/start", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestBridgeStop(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.do(t, http.MethodPost, "/api/v1/bridge/stop", "", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("stop while stopped status = %d, want 409", resp.StatusCode)
	}
	if a := decodeAction(t, body); a.Success || a.Message != "bridge is not running" {
		t.Errorf("response = %+v", a)
	}

	env.do(t, http.MethodPost, "/api/v1/bridge/start", "", "")
	resp, body = env.do(t, http.MethodPost, "/api/v1/bridge/stop?wait=true", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, body %s", resp.StatusCode, body)
	}
	if a := decodeAction(t, body); !a.Success {
		t.Errorf("response = %+v", a)
	}
}

func TestBridgeStatus(t *testing.T) {
	env := newTestEnv(t, "")
	resp, body := env.do(t, http.MethodGet, "/api/v1/bridge/status", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var status enip.Status
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatal(err)
	}
	if status.State != enip.RunStopped || status.DeviceAddress != "192.168.1.10" {
		t.Errorf("status = %+v", status)
	}
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.do(t, http.MethodGet, "/api/v1/events?type=started&limit=10&offset=5", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	want := audit.Filter{Type: "started", Limit: 10, Offset: 5}
	if got := env.events.lastFilter(); got != want {
		t.Errorf("filter = %+v, want %+v", got, want)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/events?limit=ten", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.StatusCode)
	}

	env.events.setErr(errors.New("disk I/O error"))
	resp, _ = env.do(t, http.MethodGet, "/api/v1/events", "", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("repository error status = %d, want 500", resp.StatusCode)
	}
}

func TestListEvents_NotConfigured(t *testing.T) {
	env := newTestEnv(t, "", func(d *Deps) { d.Events = nil })

	resp, _ := env.do(t, http.MethodGet, "/api/v1/events", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestConfig_GetRedactsSecrets(t *testing.T) {
	env := newTestEnv(t, "")
	resp, body := env.do(t, http.MethodGet, "/api/v1/config", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if strings.Contains(string(body), "hunter2") {
		t.Error("password leaked in config response")
	}

	var cfg config.Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.MQTT.Auth.Password != config.RedactedSecret {
		t.Errorf("password = %q, want redacted", cfg.MQTT.Auth.Password)
	}
}

func TestConfig_Update(t *testing.T) {
	env := newTestEnv(t, "")

	body := `{"poll_interval": 2, "mqtt": {"auth": {"password": "********"}}}`
	resp, data := env.do(t, http.MethodPut, "/api/v1/config", body, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}

	cur := env.store.Current()
	if cur.PollInterval != 2 {
		t.Errorf("PollInterval = %d, want 2", cur.PollInterval)
	}
	if cur.MQTT.Auth.Password != "hunter2" {
		t.Errorf("password = %q, want stored value kept", cur.MQTT.Auth.Password)
	}
}

func TestConfig_UpdateRejectsInvalid(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"poll_interval":`},
		{"invalid value", `{"poll_interval": 0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodPut, "/api/v1/config", tt.body, "")
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
	if env.store.Current().PollInterval != 5 {
		t.Error("rejected update changed the live config")
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, testSecret)

	valid, err := auth.GenerateToken("operator", testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := auth.GenerateToken("operator", testSecret, -time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	wrongKey, err := auth.GenerateToken("operator", "another-secret-key-of-enough-length!", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/config", "", http.StatusUnauthorized},
		{"wrong key", http.MethodGet, "/api/v1/config", wrongKey, http.StatusUnauthorized},
		{"garbage", http.MethodPost, "/api/v1/bridge/start", "not-a-jwt", http.StatusUnauthorized},
		{"valid", http.MethodGet, "/api/v1/config", valid, http.StatusOK},
		{"expired", http.MethodGet, "/api/v1/config", expired, http.StatusUnauthorized},
		{"valid reaches handler", http.MethodPost, "/api/v1/bridge/stop", valid, http.StatusConflict},
		{"status is public", http.MethodGet, "/api/v1/bridge/status", "", http.StatusOK},
		{"events are public", http.MethodGet, "/api/v1/events", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, tt.method, tt.path, "", tt.token)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestWebSocket_StatusOnConnectAndPush(t *testing.T) {
	env := newTestEnv(t, "")

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readEvent := func() WSMessage {
		t.Helper()
		//nolint:errcheck // test deadline
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	first := readEvent()
	if first.Type != WSTypeEvent || first.EventType != EventBridgeStatus {
		t.Fatalf("first message = %+v", first)
	}

	// Periodic push arrives within the push interval.
	second := readEvent()
	if second.EventType != EventBridgeStatus {
		t.Errorf("second message = %+v", second)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		msg := readEvent()
		if msg.Type == WSTypePong {
			if msg.ID != "p1" {
				t.Errorf("pong id = %q", msg.ID)
			}
			return
		}
	}
	t.Error("no pong received")
}
