package enip

import (
	"context"
	"time"
)

// EventType names a bridge lifecycle event.
type EventType string

// Lifecycle events recorded by the supervisor.
const (
	EventStarted            EventType = "bridge_started"
	EventStartFailed        EventType = "bridge_start_failed"
	EventStopped            EventType = "bridge_stopped"
	EventDeviceLinkLost     EventType = "device_link_lost"
	EventDeviceReconnected  EventType = "device_reconnected"
	EventBrokerDisconnected EventType = "broker_disconnected"
	EventBrokerReconnected  EventType = "broker_reconnected"
)

// Event is one lifecycle occurrence in a bridge run.
type Event struct {
	Type      EventType
	RunID     string
	Device    string
	Message   string
	Details   map[string]any
	Timestamp time.Time
}

// EventRecorder persists lifecycle events. Optional; recording failures
// are logged and never affect the bridge.
type EventRecorder interface {
	RecordEvent(ctx context.Context, e Event) error
}

// eventTimeout bounds a single event write.
const eventTimeout = 2 * time.Second
