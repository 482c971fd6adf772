package enip

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Historian receives every successful read. Satisfied by the InfluxDB client.
// Writes must not block the cycle.
type Historian interface {
	WriteTags(device string, ts time.Time, data map[string]any)
}

// Metrics receives cycle and connection counters. Satisfied by the
// Prometheus collectors in infrastructure/metrics.
type Metrics interface {
	ObserveCycle(d time.Duration)
	TagReadFailures(n int)
	Published()
	PublishSkipped()
	PublishFailed()
	LinkLost(session string)
	ReconnectAttempt(session string, success bool)
	SetConnected(session string, connected bool)
}

// Session names used in metrics labels and events.
const (
	SessionDevice = "device"
	SessionBroker = "broker"
)

// Stats holds cycle counters for one bridge run.
type Stats struct {
	cycles          atomic.Uint64
	published       atomic.Uint64
	skipped         atomic.Uint64
	publishFailures atomic.Uint64
	partialReads    atomic.Uint64
	linkLosses      atomic.Uint64
	lastPublish     atomic.Int64 // unix nanoseconds
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Cycles          uint64     `json:"cycles"`
	Published       uint64     `json:"published"`
	Skipped         uint64     `json:"skipped"`
	PublishFailures uint64     `json:"publish_failures"`
	PartialReads    uint64     `json:"partial_reads"`
	LinkLosses      uint64     `json:"link_losses"`
	LastPublish     *time.Time `json:"last_publish,omitempty"`
}

// Snapshot copies the counters. A nil Stats yields zeros.
func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	snap := StatsSnapshot{
		Cycles:          s.cycles.Load(),
		Published:       s.published.Load(),
		Skipped:         s.skipped.Load(),
		PublishFailures: s.publishFailures.Load(),
		PartialReads:    s.partialReads.Load(),
		LinkLosses:      s.linkLosses.Load(),
	}
	if ns := s.lastPublish.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		snap.LastPublish = &t
	}
	return snap
}

// Cycle performs one read-then-publish iteration.
type Cycle struct {
	Device DeviceSession
	Broker BrokerSession

	// DeviceAddress is copied into every envelope.
	DeviceAddress string

	// Tags is the ordered list of tags to read.
	Tags []string

	// Topic, QoS and Retain control the data publish.
	Topic  string
	QoS    byte
	Retain bool

	// Optional collaborators.
	Historian Historian
	Metrics   Metrics
	Stats     *Stats
	Logger    Logger

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Run executes one cycle.
//
// It returns an error wrapping ErrLinkLost when the device link is gone (no
// message is published), or ctx.Err() when abandoned. Partial reads, a
// disconnected broker and publish failures are logged and counted; the
// cycle still completes and Run returns nil.
func (c *Cycle) Run(ctx context.Context) error {
	start := c.now()

	result, err := c.Device.ReadAll(ctx, c.Tags)
	switch {
	case err == nil:
	case errors.Is(err, ErrPartialRead):
		failed := countNil(result)
		logWarn(c.Logger, "partial read", "failed", failed, "tags", len(c.Tags))
		c.Stats.addPartial()
		if c.Metrics != nil {
			c.Metrics.TagReadFailures(failed)
		}
	case errors.Is(err, ErrLinkLost):
		c.Stats.addLinkLoss()
		if c.Metrics != nil {
			c.Metrics.LinkLost(SessionDevice)
		}
		return err
	default:
		return err
	}

	ts := c.now()
	env := NewEnvelope(c.DeviceAddress, c.Tags, result, ts)

	if c.Historian != nil {
		c.Historian.WriteTags(c.DeviceAddress, env.Timestamp, env.Data)
	}

	c.publish(env)

	c.Stats.addCycle()
	if c.Metrics != nil {
		c.Metrics.ObserveCycle(c.now().Sub(start))
	}
	return nil
}

// publish sends env if the broker is up; otherwise the envelope is dropped.
func (c *Cycle) publish(env Envelope) {
	if !c.Broker.IsConnected() {
		logDebug(c.Logger, "broker disconnected, envelope dropped", "topic", c.Topic)
		c.Stats.addSkipped()
		if c.Metrics != nil {
			c.Metrics.PublishSkipped()
		}
		return
	}

	payload, err := env.Marshal()
	if err != nil {
		logError(c.Logger, "failed to encode envelope", err)
		c.Stats.addPublishFailure()
		if c.Metrics != nil {
			c.Metrics.PublishFailed()
		}
		return
	}

	if err := c.Broker.Publish(c.Topic, payload, c.QoS, c.Retain); err != nil {
		logError(c.Logger, "publish failed, envelope dropped", err, "topic", c.Topic)
		c.Stats.addPublishFailure()
		if c.Metrics != nil {
			c.Metrics.PublishFailed()
		}
		return
	}

	c.Stats.addPublished(env.Timestamp)
	if c.Metrics != nil {
		c.Metrics.Published()
	}
}

func (c *Cycle) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func countNil(r PollResult) int {
	n := 0
	for _, v := range r {
		if v == nil {
			n++
		}
	}
	return n
}

func (s *Stats) addCycle() {
	if s != nil {
		s.cycles.Add(1)
	}
}

func (s *Stats) addPublished(ts time.Time) {
	if s != nil {
		s.published.Add(1)
		s.lastPublish.Store(ts.UnixNano())
	}
}

func (s *Stats) addSkipped() {
	if s != nil {
		s.skipped.Add(1)
	}
}

func (s *Stats) addPublishFailure() {
	if s != nil {
		s.publishFailures.Add(1)
	}
}

func (s *Stats) addPartial() {
	if s != nil {
		s.partialReads.Add(1)
	}
}

func (s *Stats) addLinkLoss() {
	if s != nil {
		s.linkLosses.Add(1)
	}
}
