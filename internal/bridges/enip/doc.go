// Package enip implements the EtherNet/IP to MQTT bridge.
//
// The bridge polls a fixed list of tags from one EtherNet/IP controller
// (Allen-Bradley Logix and compatible) and publishes each cycle's values
// as a single JSON envelope to an MQTT broker.
//
// # Architecture
//
//	┌──────────────┐   CIP    ┌──────────────────────┐   MQTT   ┌──────────┐
//	│  Controller  │◄────────►│ Device ─ Cycle ─ Broker │────────►│  Broker  │
//	└──────────────┘          └──────────────────────┘          └──────────┘
//	                                     ▲
//	                                Supervisor
//	                         (start/stop/status, reconnect)
//
// # Key Responsibilities
//
//   - Supervisor: lifecycle state machine (stopped, starting, running, stopping)
//   - Device: controller connection, per-cycle tag reads, link-loss detection
//   - Broker: broker connection, publish, disconnect notification
//   - Cycle: read then publish one envelope to <prefix>/data
//   - ReconnectState: doubling backoff shared by both reconnect procedures
//   - HealthReporter: periodic retained health message on <prefix>/health
//
// # Failure Handling
//
// A startup connect failure aborts the start and is reported to the caller.
// Once running, a lost device link blocks polling while the device is
// reconnected with backoff; a lost broker link is reconnected in the
// background while polling continues and unpublishable envelopes are
// dropped. Neither reconnect procedure gives up until the bridge is stopped.
//
// # Envelope
//
//	{"timestamp":"2026-03-01T12:00:00.123Z","device":"192.168.1.10",
//	 "data":{"Temperature":21.5,"Pressure":null}}
//
// A null value marks a tag whose read failed in that cycle. Every
// configured tag is always present as a key.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package enip
