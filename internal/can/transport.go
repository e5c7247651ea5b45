package can

import (
	"fmt"
	"strings"
	"time"

	"can-session-logger/internal/models"
)

// BusKind names the adapter family used to reach the bus
type BusKind string

const (
	BusVirtual   BusKind = "virtual"
	BusSocketCAN BusKind = "socketcan"
	BusPCAN      BusKind = "pcan"
	BusVector    BusKind = "vector"
	BusKvaser    BusKind = "kvaser"
	BusSLCAN     BusKind = "slcan"
)

// ParseBusKind normalizes a configured bus kind. Unknown names are returned
// unchanged so that Connect can report them with context.
func ParseBusKind(s string) BusKind {
	return BusKind(strings.ToLower(strings.TrimSpace(s)))
}

// Transport is the opaque adapter capability a Connection drives.
type Transport interface {
	// Receive waits up to timeout for the next frame. It returns
	// ErrReceiveTimeout when nothing arrived and ErrTransportClosed once
	// Close has been called.
	Receive(timeout time.Duration) (models.Frame, error)

	// Send transmits one frame.
	Send(frame models.Frame) error

	// Close releases the adapter. It must unblock a pending Receive.
	Close() error
}

// filterer is implemented by transports that can restrict delivery to a set of ids.
type filterer interface {
	SetFilter(ids []uint32) error
}

// openTransport opens the adapter for kind
func openTransport(channel string, kind BusKind, bitrate int) (Transport, error) {
	if bitrate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBitrate, bitrate)
	}

	switch kind {
	case BusVirtual:
		return defaultHub.open(channel), nil
	case BusSocketCAN:
		return openSocketCAN(channel)
	case BusPCAN, BusVector, BusKvaser, BusSLCAN:
		return nil, fmt.Errorf("%w: %s", ErrDriverUnavailable, kind)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBusKind, string(kind))
	}
}
