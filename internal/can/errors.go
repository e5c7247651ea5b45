package can

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected       = errors.New("not connected to CAN bus")
	ErrAlreadyConnected   = errors.New("already connected to CAN bus")
	ErrUnsupportedBusKind = errors.New("unsupported bus kind")
	ErrDriverUnavailable  = errors.New("no driver available for bus kind")
	ErrInvalidBitrate     = errors.New("invalid bitrate")
	ErrReceiveTimeout     = errors.New("receive timeout")
	ErrTransportClosed    = errors.New("transport closed")
	ErrQueueFull          = errors.New("transmit queue full")
)

// ConnectError reports a failed attempt to open an adapter.
type ConnectError struct {
	Channel string
	BusKind BusKind
	Bitrate int
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s bus on channel %q at %d bps: %v", e.BusKind, e.Channel, e.Bitrate, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// SendError reports a single frame that was not transmitted.
type SendError struct {
	Channel string
	BusKind BusKind
	ID      uint32
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send frame 0x%X on %s channel %q: %v", e.ID, e.BusKind, e.Channel, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
