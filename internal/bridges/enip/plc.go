package enip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/danomagnum/gologix"
)

// PLC is the controller client capability the Device wraps.
// The production implementation speaks EtherNet/IP via gologix;
// tests substitute a fake.
type PLC interface {
	// Connect opens the CIP session. It must honour ctx cancellation.
	Connect(ctx context.Context) error

	// ReadTag reads one tag decoded as typ.
	ReadTag(tag string, typ TagType) (any, error)

	// Close releases the session.
	Close() error
}

// PLCFactory builds an unconnected client for a controller address.
type PLCFactory func(address string) PLC

// gologixPLC adapts a gologix client to PLC.
type gologixPLC struct {
	client *gologix.Client
}

// NewGologixPLC returns a PLC backed by gologix for address.
func NewGologixPLC(address string) PLC {
	return &gologixPLC{client: gologix.NewClient(address)}
}

// Connect dials the controller. gologix connects synchronously without a
// context, so the attempt runs in a goroutine and is abandoned (then
// disconnected once it returns) when ctx ends first.
func (p *gologixPLC) Connect(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- p.client.Connect()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		go func() {
			if err := <-done; err == nil {
				p.client.Disconnect() //nolint:errcheck // abandoned attempt
			}
		}()
		return ctx.Err()
	}
}

func (p *gologixPLC) ReadTag(tag string, typ TagType) (any, error) {
	switch typ {
	case TypeREAL:
		return readAs[float32](p.client, tag)
	case TypeLREAL:
		return readAs[float64](p.client, tag)
	case TypeSINT:
		return readAs[int8](p.client, tag)
	case TypeINT:
		return readAs[int16](p.client, tag)
	case TypeDINT:
		return readAs[int32](p.client, tag)
	case TypeLINT:
		return readAs[int64](p.client, tag)
	case TypeUSINT:
		return readAs[uint8](p.client, tag)
	case TypeUINT:
		return readAs[uint16](p.client, tag)
	case TypeUDINT:
		return readAs[uint32](p.client, tag)
	case TypeBOOL:
		return readAs[bool](p.client, tag)
	case TypeSTRING:
		return readAs[string](p.client, tag)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTagType, typ)
	}
}

func (p *gologixPLC) Close() error {
	return p.client.Disconnect()
}

// readAs reads tag into a value of type T.
func readAs[T any](c *gologix.Client, tag string) (any, error) {
	var v T
	if err := c.Read(tag, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// linkPhrases are gologix messages that mean the session is gone rather than
// one tag being unreadable. Each contains a space, and Logix tag names cannot,
// so a tag name quoted in an error never matches.
var linkPhrases = []string{
	"could not start",     // checkConnection failed before the request
	"forced disconnect",   // send failed and the client dropped the session
	"not connected and",   // checkConnection without AutoConnect
	"broken pipe",         // flattened syscall text
	"connection reset by", // flattened syscall text
}

// isTransportError reports whether err means the controller link is gone.
//
// Typed network errors are checked first; gologix wraps socket errors with
// %w so these catch most cases. The text match is limited to linkPhrases.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range linkPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
