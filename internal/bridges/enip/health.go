package enip

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthReporter publishes a retained health message at a fixed interval
// for one bridge run.
type HealthReporter struct {
	topic         string
	version       string
	runID         string
	deviceAddress string
	startTime     time.Time
	interval      time.Duration

	broker BrokerSession
	device DeviceSession
	stats  *Stats
	logger Logger

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Topic is the health topic (<prefix>/health).
	Topic string

	// Version is the bridge software version.
	Version string

	// RunID identifies the bridge run.
	RunID string

	// DeviceAddress is reported with the device link status.
	DeviceAddress string

	// Interval is how often to publish.
	// Default: 30 seconds.
	Interval time.Duration

	Broker BrokerSession
	Device DeviceSession
	Stats  *Stats
	Logger Logger
}

// NewHealthReporter creates a new health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		topic:         cfg.Topic,
		version:       cfg.Version,
		runID:         cfg.RunID,
		deviceAddress: cfg.DeviceAddress,
		startTime:     time.Now(),
		interval:      interval,
		broker:        cfg.Broker,
		device:        cfg.Device,
		stats:         cfg.Stats,
		logger:        cfg.Logger,
		done:          make(chan struct{}),
	}
}

// Start begins periodic health reporting until ctx ends or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status while the
// broker is still connected. Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		if err := h.publish(HealthStopping, "bridge stopping"); err != nil {
			logDebug(h.logger, "final health publish skipped", "error", err)
		}
	})
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.publishLogged()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.publishLogged()
		}
	}
}

// publishLogged publishes and logs failures. A disconnected broker is
// expected during reconnects and only logged at debug.
func (h *HealthReporter) publishLogged() {
	err := h.PublishNow()
	switch {
	case err == nil:
	case isNotConnected(err):
		logDebug(h.logger, "health publish skipped, broker disconnected")
	default:
		logError(h.logger, "failed to publish health", err)
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.broker == nil || !h.broker.IsConnected() {
		return HealthDegraded, "broker disconnected"
	}
	if h.device == nil || !h.device.IsConnected() {
		return HealthDegraded, "device disconnected"
	}
	return HealthHealthy, ""
}

// message builds the health message for status.
func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		RunID:         h.runID,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Device:        LinkStatus{Address: h.deviceAddress, State: StateDisconnected},
		Broker:        LinkStatus{State: StateDisconnected},
		Statistics:    h.stats.Snapshot(),
		Reason:        reason,
	}
	if h.device != nil {
		msg.Device.State = h.device.State()
	}
	if h.broker != nil {
		msg.Broker.State = h.broker.State()
	}
	return msg
}

// publish sends a health message (QoS 1, retained).
func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.broker == nil {
		return nil
	}

	payload, err := json.Marshal(h.message(status, reason))
	if err != nil {
		return err
	}
	return h.broker.Publish(h.topic, payload, 1, true)
}
