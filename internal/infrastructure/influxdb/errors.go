package influxdb

import "errors"

// Sentinel errors for historian operations.
var (
	// ErrNotConnected indicates the client is closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled indicates the historian is disabled in configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
