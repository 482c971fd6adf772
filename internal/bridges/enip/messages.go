package enip

import (
	"encoding/json"
	"math"
	"time"
)

// Envelope is the message published to <prefix>/data once per cycle.
// Topic: <prefix>/data
// QoS and retain: from configuration
type Envelope struct {
	// Timestamp is when the cycle's read completed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Device is the controller address as configured.
	Device string `json:"device"`

	// Data holds one key per configured tag; null marks a failed read.
	Data PollResult `json:"data"`
}

// NewEnvelope builds an envelope with exactly one key per tag.
//
// Tags missing from result, and float values JSON cannot carry (NaN, ±Inf),
// are set to nil.
func NewEnvelope(device string, tags []string, result PollResult, ts time.Time) Envelope {
	data := make(PollResult, len(tags))
	for _, tag := range tags {
		data[tag] = jsonSafe(result[tag])
	}
	return Envelope{
		Timestamp: ts.UTC(),
		Device:    device,
		Data:      data,
	}
}

// Marshal encodes the envelope.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// jsonSafe replaces non-finite floats with nil.
func jsonSafe(v any) any {
	switch f := v.(type) {
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil
		}
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	}
	return v
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates both links are up.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates a link is down and being reconnected.
	HealthDegraded HealthStatus = "degraded"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports operational status.
// Topic: <prefix>/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Timestamp     time.Time     `json:"timestamp"`
	Status        HealthStatus  `json:"status"`
	Version       string        `json:"version"`
	RunID         string        `json:"run_id"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Device        LinkStatus    `json:"device"`
	Broker        LinkStatus    `json:"broker"`
	Statistics    StatsSnapshot `json:"statistics"`
	Reason        string        `json:"reason,omitempty"`
}

// LinkStatus describes one session's connectivity.
type LinkStatus struct {
	Address string          `json:"address,omitempty"`
	State   ConnectionState `json:"state"`
}
