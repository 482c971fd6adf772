package enip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a point-in-time view of the bridge, safe to serialise.
type Status struct {
	State           RunState        `json:"state"`
	DeviceConnected bool            `json:"device_connected"`
	BrokerConnected bool            `json:"broker_connected"`
	DeviceState     ConnectionState `json:"device_state"`
	BrokerState     ConnectionState `json:"broker_state"`
	DeviceAddress   string          `json:"device_address,omitempty"`
	DataTopic       string          `json:"data_topic,omitempty"`
	RunID           string          `json:"run_id,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	Statistics      StatsSnapshot   `json:"statistics"`
}

// SupervisorOptions holds configuration for creating a Supervisor.
type SupervisorOptions struct {
	// NewDevice builds the device session for each run. Required.
	NewDevice DeviceFactory

	// NewBroker builds the broker session for each run. Required.
	NewBroker BrokerFactory

	// Historian is an optional sink for every successful read.
	Historian Historian

	// Metrics is an optional counter sink.
	Metrics Metrics

	// Events is an optional lifecycle event store.
	Events EventRecorder

	// Logger is an optional structured logger.
	Logger Logger

	// Version is reported in health messages.
	Version string
}

// Supervisor owns the bridge lifecycle: it starts both sessions, drives the
// poll loop, reconnects failed sessions and tears everything down on Stop.
//
// At most one run is active per Supervisor. The mutex is held only for
// state transitions and status reads, never across connects, reads or waits.
//
// Thread Safety: All methods are safe for concurrent use.
type Supervisor struct {
	newDevice DeviceFactory
	newBroker BrokerFactory
	historian Historian
	metrics   Metrics
	events    EventRecorder
	logger    Logger
	version   string

	mu        sync.Mutex
	state     RunState
	settings  Settings
	device    DeviceSession
	broker    BrokerSession
	cancel    context.CancelFunc
	done      chan struct{}
	runID     string
	startedAt time.Time
	lastError string
	stats     *Stats
}

// NewSupervisor creates a stopped supervisor.
func NewSupervisor(opts SupervisorOptions) (*Supervisor, error) {
	if opts.NewDevice == nil {
		return nil, fmt.Errorf("device factory is required")
	}
	if opts.NewBroker == nil {
		return nil, fmt.Errorf("broker factory is required")
	}

	return &Supervisor{
		newDevice: opts.NewDevice,
		newBroker: opts.NewBroker,
		historian: opts.Historian,
		metrics:   opts.Metrics,
		events:    opts.Events,
		logger:    opts.Logger,
		version:   opts.Version,
		state:     RunStopped,
	}, nil
}

// Start begins a bridge run with settings and returns immediately.
//
// The returned channel receives exactly one value, nil once both sessions
// are connected and polling has begun or the startup error otherwise, and
// is then closed. Start is rejected with ErrAlreadyRunning, without side
// effects, unless the supervisor is stopped.
func (s *Supervisor) Start(settings Settings) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != RunStopped {
		return nil, fmt.Errorf("%w (state %s)", ErrAlreadyRunning, s.state)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:       uuid.NewString(),
		settings: settings,
		stats:    &Stats{},
		result:   make(chan error, 1),
		done:     make(chan struct{}),
	}

	s.state = RunStarting
	s.settings = settings
	s.cancel = cancel
	s.done = r.done
	s.runID = r.id
	s.stats = r.stats
	s.startedAt = time.Time{}
	s.lastError = ""

	go s.run(ctx, r)

	return r.result, nil
}

// Stop requests cooperative shutdown and returns immediately. The worker
// observes it at the next wait or reconnect attempt; Done is closed once
// both sessions are closed.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case RunStopped:
		return ErrNotRunning
	case RunStopping:
		return fmt.Errorf("%w (already stopping)", ErrNotRunning)
	}

	s.state = RunStopping
	s.cancel()
	logInfo(s.logger, "bridge stop requested", "run_id", s.runID)
	return nil
}

// Done returns a channel closed when the current (or last) run has fully
// torn down. Before any run it is already closed.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Status returns the current state and connectivity without blocking on
// the poll loop.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		State:         s.state,
		DeviceState:   StateDisconnected,
		BrokerState:   StateDisconnected,
		DeviceAddress: s.settings.Device.Address,
		RunID:         s.runID,
		LastError:     s.lastError,
		Statistics:    s.stats.Snapshot(),
	}
	if s.settings.Device.Address != "" {
		st.DataTopic = s.settings.Topics().Data()
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		st.StartedAt = &t
	}
	device, broker := s.device, s.broker
	s.mu.Unlock()

	if device != nil {
		st.DeviceState = device.State()
		st.DeviceConnected = device.IsConnected()
	}
	if broker != nil {
		st.BrokerState = broker.State()
		st.BrokerConnected = broker.IsConnected()
	}
	return st
}

// run is the per-start worker state.
type run struct {
	id       string
	settings Settings
	stats    *Stats
	result   chan error
	done     chan struct{}
}

// run executes one bridge run end to end on its own goroutine.
func (s *Supervisor) run(ctx context.Context, r *run) {
	defer close(r.done)

	device, broker, err := s.startup(ctx, r.settings)
	if err != nil {
		logError(s.logger, "bridge start failed", err, "run_id", r.id)
		s.teardown(device, broker)
		s.finish(err)
		s.record(r, EventStartFailed, err.Error(), nil)
		r.result <- err
		close(r.result)
		return
	}

	s.mu.Lock()
	if s.state == RunStarting {
		s.state = RunRunning
	}
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	s.setConnected(SessionDevice, true)
	s.setConnected(SessionBroker, true)
	logInfo(s.logger, "bridge started",
		"run_id", r.id,
		"device", r.settings.Device.Address,
		"tags", len(r.settings.Device.Tags),
		"poll_interval", r.settings.PollInterval.String())
	s.record(r, EventStarted, "bridge started", map[string]any{"tags": len(r.settings.Device.Tags)})

	r.result <- nil
	close(r.result)

	topics := r.settings.Topics()
	health := NewHealthReporter(HealthReporterConfig{
		Topic:         topics.Health(),
		Version:       s.version,
		RunID:         r.id,
		DeviceAddress: r.settings.Device.Address,
		Interval:      r.settings.HealthInterval,
		Broker:        broker,
		Device:        device,
		Stats:         r.stats,
		Logger:        s.logger,
	})
	health.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchBroker(ctx, r, broker)
	}()

	s.pollLoop(ctx, r, device, broker)

	wg.Wait()
	health.Stop()
	s.teardown(device, broker)
	s.finish(nil)
	s.record(r, EventStopped, "bridge stopped", nil)
	logInfo(s.logger, "bridge stopped", "run_id", r.id)
}

// startup connects the broker, then the device. Sessions created so far are
// returned even on failure so the caller can close them.
func (s *Supervisor) startup(ctx context.Context, settings Settings) (DeviceSession, BrokerSession, error) {
	broker, err := s.newBroker(settings)
	if err != nil {
		return nil, nil, fmt.Errorf("creating broker session: %w", err)
	}
	s.setSessions(nil, broker)

	if err := broker.Connect(ctx); err != nil {
		return nil, broker, err
	}

	device, err := s.newDevice(settings)
	if err != nil {
		return nil, broker, fmt.Errorf("creating device session: %w", err)
	}
	s.setSessions(device, broker)

	if err := device.Connect(ctx); err != nil {
		return device, broker, err
	}

	if err := ctx.Err(); err != nil {
		return device, broker, fmt.Errorf("start cancelled: %w", err)
	}
	return device, broker, nil
}

// pollLoop runs cycles until ctx ends. A lost device link blocks the loop
// in the device reconnect procedure.
func (s *Supervisor) pollLoop(ctx context.Context, r *run, device DeviceSession, broker BrokerSession) {
	topics := r.settings.Topics()
	cycle := &Cycle{
		Device:        device,
		Broker:        broker,
		DeviceAddress: r.settings.Device.Address,
		Tags:          r.settings.Device.Tags,
		Topic:         topics.Data(),
		QoS:           byte(r.settings.MQTT.QoS),
		Retain:        r.settings.MQTT.Retain,
		Historian:     s.historian,
		Metrics:       s.metrics,
		Stats:         r.stats,
		Logger:        s.logger,
	}
	reconnect := NewReconnectState(r.settings.Reconnect)

	for {
		if ctx.Err() != nil {
			return
		}

		err := cycle.Run(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrLinkLost):
			logWarn(s.logger, "device link lost", "device", r.settings.Device.Address, "error", err)
			s.setConnected(SessionDevice, false)
			s.record(r, EventDeviceLinkLost, err.Error(), nil)

			if !s.reconnect(ctx, SessionDevice, device.Connect, reconnect) {
				return
			}
			s.record(r, EventDeviceReconnected, "device reconnected", nil)
			continue
		case ctx.Err() != nil:
			return
		default:
			logError(s.logger, "poll cycle failed", err)
		}

		if !sleepCtx(ctx, r.settings.PollInterval) {
			return
		}
	}
}

// watchBroker reconnects the broker after each disconnect notification.
// The poll loop keeps running meanwhile.
func (s *Supervisor) watchBroker(ctx context.Context, r *run, broker BrokerSession) {
	reconnect := NewReconnectState(r.settings.Reconnect)

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-broker.Disconnected():
			s.setConnected(SessionBroker, false)
			if s.metrics != nil {
				s.metrics.LinkLost(SessionBroker)
			}
			msg := "broker disconnected"
			if err != nil {
				msg = err.Error()
			}
			s.record(r, EventBrokerDisconnected, msg, nil)

			if !s.reconnect(ctx, SessionBroker, broker.Connect, reconnect) {
				return
			}
			s.record(r, EventBrokerReconnected, "broker reconnected", nil)
		}
	}
}

// reconnect retries connect with backoff until it succeeds (true) or ctx
// ends (false). Each attempt waits the current delay first; stop is checked
// at the top of every attempt and during the wait.
func (s *Supervisor) reconnect(ctx context.Context, session string, connect func(context.Context) error, state *ReconnectState) bool {
	for {
		if ctx.Err() != nil {
			return false
		}

		delay := state.Delay()
		logInfo(s.logger, "reconnecting",
			"session", session,
			"attempt", state.Failures()+1,
			"delay", delay.String())

		if !sleepCtx(ctx, delay) {
			return false
		}

		err := connect(ctx)
		if err == nil {
			state.Reset()
			if s.metrics != nil {
				s.metrics.ReconnectAttempt(session, true)
			}
			s.setConnected(session, true)
			logInfo(s.logger, "reconnected", "session", session)
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		if s.metrics != nil {
			s.metrics.ReconnectAttempt(session, false)
		}
		next := state.Fail()
		logWarn(s.logger, "reconnect failed",
			"session", session,
			"failures", state.Failures(),
			"next_delay", next.String(),
			"error", err)
	}
}

// teardown closes the device, then the broker. Called once per run.
func (s *Supervisor) teardown(device DeviceSession, broker BrokerSession) {
	if device != nil {
		device.Close()
	}
	if broker != nil {
		broker.Close()
	}
	s.setConnected(SessionDevice, false)
	s.setConnected(SessionBroker, false)
}

// finish returns the supervisor to stopped, recording err if non-nil.
func (s *Supervisor) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = RunStopped
	s.device = nil
	s.broker = nil
	if s.cancel != nil {
		s.cancel()
	}
	if err != nil {
		s.lastError = err.Error()
	}
}

func (s *Supervisor) setSessions(device DeviceSession, broker BrokerSession) {
	s.mu.Lock()
	s.device = device
	s.broker = broker
	s.mu.Unlock()
}

func (s *Supervisor) setConnected(session string, connected bool) {
	if s.metrics != nil {
		s.metrics.SetConnected(session, connected)
	}
}

// record stores a lifecycle event. Failures are logged only.
func (s *Supervisor) record(r *run, typ EventType, msg string, details map[string]any) {
	if s.events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	err := s.events.RecordEvent(ctx, Event{
		Type:      typ,
		RunID:     r.id,
		Device:    r.settings.Device.Address,
		Message:   msg,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logError(s.logger, "failed to record event", err, "type", string(typ))
	}
}

// sleepCtx waits d or until ctx ends. It reports whether the full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
