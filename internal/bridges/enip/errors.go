package enip

import "errors"

// Domain errors for the EtherNet/IP bridge package.
var (
	// ErrConnectFailed is returned when a device or broker session cannot connect.
	ErrConnectFailed = errors.New("enip: connect failed")

	// ErrLinkLost is returned by a device read when the controller link is gone,
	// either from a transport error or because every requested tag failed.
	ErrLinkLost = errors.New("enip: device link lost")

	// ErrPartialRead is returned alongside a usable PollResult when some,
	// but not all, tags failed to read.
	ErrPartialRead = errors.New("enip: partial read failure")

	// ErrBrokerNotConnected is returned when publishing while the broker is down.
	// The message is dropped, not queued.
	ErrBrokerNotConnected = errors.New("enip: broker not connected")

	// ErrPublishFailed is returned when the broker rejects or times out a publish.
	ErrPublishFailed = errors.New("enip: publish failed")

	// ErrAlreadyRunning is returned by Start when a bridge run is active.
	ErrAlreadyRunning = errors.New("enip: bridge already running")

	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("enip: bridge not running")

	// ErrInvalidSettings is returned when run settings fail validation.
	ErrInvalidSettings = errors.New("enip: invalid settings")

	// ErrUnknownTagType is returned for a tag type name the device cannot read.
	ErrUnknownTagType = errors.New("enip: unknown tag type")
)
