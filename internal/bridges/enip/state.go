package enip

// ConnectionState is the connectivity of one session (device or broker).
// Failed is not terminal: it triggers reconnection and returns to Connecting.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateFailed       ConnectionState = "failed"
)

// RunState is the supervisor's lifecycle state.
type RunState string

const (
	RunStopped  RunState = "stopped"
	RunStarting RunState = "starting"
	RunRunning  RunState = "running"
	RunStopping RunState = "stopping"
)

// Active reports whether a worker owns the sessions in this state.
func (s RunState) Active() bool {
	return s != RunStopped
}
