package models

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	ecan "go.einride.tech/can"
)

// Classic CAN limits
const (
	MaxDataLength = 8
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
)

// Frame represents one classic CAN frame as seen by the local adapter.
// Frames are values; Data must not be mutated after construction.
type Frame struct {
	Timestamp     float64 // seconds since the Unix epoch, set at receive/send time
	ArbitrationID uint32
	IsExtendedID  bool
	IsRemoteFrame bool
	IsErrorFrame  bool
	DLC           uint8
	Data          []byte
}

// NewFrame builds a data frame stamped with the current time.
func NewFrame(id uint32, data []byte, extended bool) Frame {
	payload := make([]byte, len(data))
	copy(payload, data)

	return Frame{
		Timestamp:     Timestamp(time.Now()),
		ArbitrationID: id,
		IsExtendedID:  extended,
		DLC:           uint8(len(payload)),
		Data:          payload,
	}
}

// Timestamp converts a wall clock time to float seconds.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Validate checks the identifier range and the data length code.
// Remote frames carry a requested DLC without payload.
func (f Frame) Validate() error {
	if len(f.Data) > MaxDataLength {
		return fmt.Errorf("data length %d exceeds %d bytes", len(f.Data), MaxDataLength)
	}
	if f.IsRemoteFrame {
		if len(f.Data) != 0 && len(f.Data) != int(f.DLC) {
			return fmt.Errorf("remote frame dlc %d does not match data length %d", f.DLC, len(f.Data))
		}
	} else if len(f.Data) != int(f.DLC) {
		return fmt.Errorf("dlc %d does not match data length %d", f.DLC, len(f.Data))
	}

	ef := f.einride()
	if err := ef.Validate(); err != nil {
		return fmt.Errorf("invalid frame %s: %w", f.IDHex(), err)
	}
	return nil
}

// IDHex renders the arbitration id the way the log file stores it.
func (f Frame) IDHex() string {
	return FormatID(f.ArbitrationID)
}

// DataHex renders the payload as a lowercase hex string.
func (f Frame) DataHex() string {
	return hex.EncodeToString(f.Data)
}

// String returns the candump compact form, e.g. "123#0102".
func (f Frame) String() string {
	ef := f.einride()
	return ef.String()
}

func (f Frame) einride() ecan.Frame {
	frame := ecan.Frame{
		ID:         f.ArbitrationID,
		Length:     f.DLC,
		IsRemote:   f.IsRemoteFrame,
		IsExtended: f.IsExtendedID,
	}
	copy(frame.Data[:], f.Data)
	return frame
}

// FormatID renders an arbitration id as 0x followed by uppercase hex.
func FormatID(id uint32) string {
	return fmt.Sprintf("0x%X", id)
}

// ParseID accepts a 0x-prefixed hex id or a decimal id.
func ParseID(s string) (uint32, error) {
	var (
		v   uint64
		err error
	)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 32)
	} else {
		v, err = strconv.ParseUint(s, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid can id %q: %w", s, err)
	}
	if v > MaxExtendedID {
		return 0, fmt.Errorf("can id %q exceeds 29 bits", s)
	}
	return uint32(v), nil
}

// CANMessageResponse represents a logged CAN frame in API responses
type CANMessageResponse struct {
	Timestamp     float64 `json:"timestamp"`
	CANID         uint32  `json:"can_id"`
	CANIDHex      string  `json:"can_id_hex"`
	IsExtendedID  bool    `json:"is_extended_id"`
	IsRemoteFrame bool    `json:"is_remote_frame"`
	IsErrorFrame  bool    `json:"is_error_frame"`
	DLC           uint8   `json:"dlc"`
	DataHex       string  `json:"data_hex"`
}
