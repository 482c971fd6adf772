package enip

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// defaultDeviceTimeout bounds a controller connect attempt.
const defaultDeviceTimeout = 5 * time.Second

// PollResult maps each requested tag to its value, or nil when that tag's
// read failed in this cycle.
type PollResult map[string]any

// DeviceSession is the device side of the bridge.
type DeviceSession interface {
	// Connect opens (or reopens) the controller link.
	// Failures wrap ErrConnectFailed and leave the state Failed.
	Connect(ctx context.Context) error

	// ReadAll reads every tag once. See Device.ReadAll for the error contract.
	ReadAll(ctx context.Context, tags []string) (PollResult, error)

	// State returns the current connection state.
	State() ConnectionState

	// IsConnected reports whether State is Connected.
	IsConnected() bool

	// Close releases the link. Idempotent and infallible.
	Close()
}

// DeviceOptions holds configuration for creating a Device.
type DeviceOptions struct {
	// Address is the controller's IP address or hostname.
	Address string

	// Types maps tag names to read types. Missing tags read as REAL.
	Types TagTypes

	// Timeout bounds each connect attempt.
	// Default: 5 seconds
	Timeout time.Duration

	// NewPLC builds the controller client. Default: NewGologixPLC.
	NewPLC PLCFactory

	// Logger is an optional structured logger.
	Logger Logger
}

// Device is the DeviceSession for one EtherNet/IP controller.
//
// Thread Safety: All methods are safe for concurrent use. Reads are not
// serialised against each other; the supervisor issues one at a time.
type Device struct {
	address string
	types   TagTypes
	timeout time.Duration
	newPLC  PLCFactory
	logger  Logger

	mu    sync.RWMutex
	plc   PLC
	state ConnectionState
}

// NewDevice creates an unconnected device session.
func NewDevice(opts DeviceOptions) *Device {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDeviceTimeout
	}
	newPLC := opts.NewPLC
	if newPLC == nil {
		newPLC = NewGologixPLC
	}
	return &Device{
		address: opts.Address,
		types:   opts.Types,
		timeout: timeout,
		newPLC:  newPLC,
		logger:  opts.Logger,
		state:   StateDisconnected,
	}
}

// Address returns the controller address.
func (d *Device) Address() string {
	return d.address
}

// Connect closes any previous client and dials the controller with the
// configured timeout.
func (d *Device) Connect(ctx context.Context) error {
	d.closeClient()
	d.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	plc := d.newPLC(d.address)
	if err := plc.Connect(ctx); err != nil {
		d.setState(StateFailed)
		return fmt.Errorf("%w: device %s: %w", ErrConnectFailed, d.address, err)
	}

	d.mu.Lock()
	d.plc = plc
	d.state = StateConnected
	d.mu.Unlock()

	logInfo(d.logger, "device connected", "address", d.address)
	return nil
}

// ReadAll reads every tag once and returns one outcome per tag.
//
// Tags are requested one at a time rather than through gologix ReadMulti.
// That costs a round trip per tag, but a bad tag then fails alone with a
// nil value instead of failing the whole multi-service request, and the
// first transport error stops the batch immediately.
//
// Error contract:
//   - nil: every tag read
//   - ErrPartialRead: some tags failed; the result is complete (failed tags are nil)
//   - ErrLinkLost: a transport error occurred, or every tag of a non-empty
//     request failed; the result is nil and the state becomes Failed
//   - ctx.Err(): the read was abandoned
func (d *Device) ReadAll(ctx context.Context, tags []string) (PollResult, error) {
	d.mu.RLock()
	plc := d.plc
	d.mu.RUnlock()

	if plc == nil {
		d.setState(StateFailed)
		return nil, fmt.Errorf("%w: device %s has no open session", ErrLinkLost, d.address)
	}

	result := make(PollResult, len(tags))
	failed := 0

	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := plc.ReadTag(tag, d.types.For(tag))
		if err != nil {
			if isTransportError(err) {
				d.setState(StateFailed)
				return nil, fmt.Errorf("%w: reading %s: %w", ErrLinkLost, tag, err)
			}
			logDebug(d.logger, "tag read failed", "tag", tag, "error", err)
			result[tag] = nil
			failed++
			continue
		}
		result[tag] = value
	}

	if len(tags) > 0 && failed == len(tags) {
		d.setState(StateFailed)
		return nil, fmt.Errorf("%w: all %d tags failed", ErrLinkLost, failed)
	}
	if failed > 0 {
		return result, fmt.Errorf("%w: %d of %d tags failed", ErrPartialRead, failed, len(tags))
	}
	return result, nil
}

// State returns the current connection state.
func (d *Device) State() ConnectionState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// IsConnected reports whether the controller link is up.
func (d *Device) IsConnected() bool {
	return d.State() == StateConnected
}

// Close releases the controller link. Errors are logged, never returned.
func (d *Device) Close() {
	d.closeClient()
	d.setState(StateDisconnected)
}

// closeClient closes and forgets the current client, if any.
func (d *Device) closeClient() {
	d.mu.Lock()
	plc := d.plc
	d.plc = nil
	d.mu.Unlock()

	if plc == nil {
		return
	}
	if err := plc.Close(); err != nil {
		logWarn(d.logger, "device close failed", "address", d.address, "error", err)
	}
}

func (d *Device) setState(state ConnectionState) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
}
