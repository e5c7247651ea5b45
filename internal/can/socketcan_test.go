package can

import (
	"bytes"
	"encoding/binary"
	"testing"

	"can-session-logger/internal/models"
)

func TestEncodeDecodeCANFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame models.Frame
		rawID uint32
	}{
		{
			name:  "standard",
			frame: models.Frame{ArbitrationID: 0x123, DLC: 3, Data: []byte{1, 2, 3}},
			rawID: 0x123,
		},
		{
			name:  "extended",
			frame: models.Frame{ArbitrationID: 0x1ABCDEF0, IsExtendedID: true, DLC: 8, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
			rawID: 0x1ABCDEF0 | canEffFlag,
		},
		{
			name:  "remote",
			frame: models.Frame{ArbitrationID: 0x7FF, IsRemoteFrame: true, DLC: 4},
			rawID: 0x7FF | canRtrFlag,
		},
		{
			name:  "error",
			frame: models.Frame{ArbitrationID: 0x4, IsErrorFrame: true, DLC: 8, Data: make([]byte, 8)},
			rawID: 0x4 | canErrFlag,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := encodeCANFrame(tt.frame)
			if len(buf) != canFrameSize {
				t.Fatalf("encoded %d bytes, want %d", len(buf), canFrameSize)
			}
			if got := binary.LittleEndian.Uint32(buf); got != tt.rawID {
				t.Errorf("raw id = %#x, want %#x", got, tt.rawID)
			}
			if buf[4] != tt.frame.DLC {
				t.Errorf("dlc byte = %d, want %d", buf[4], tt.frame.DLC)
			}

			got := decodeCANFrame(buf)
			if got.ArbitrationID != tt.frame.ArbitrationID ||
				got.IsExtendedID != tt.frame.IsExtendedID ||
				got.IsRemoteFrame != tt.frame.IsRemoteFrame ||
				got.IsErrorFrame != tt.frame.IsErrorFrame ||
				got.DLC != tt.frame.DLC ||
				!bytes.Equal(got.Data, tt.frame.Data) {
				t.Errorf("decoded %+v, want %+v", got, tt.frame)
			}
		})
	}
}

func TestDecodeClampsDLC(t *testing.T) {
	buf := make([]byte, canFrameSize)
	binary.LittleEndian.PutUint32(buf, 0x100)
	buf[4] = 15

	if f := decodeCANFrame(buf); f.DLC != 8 || len(f.Data) != 8 {
		t.Errorf("decoded dlc %d with %d bytes, want 8", f.DLC, len(f.Data))
	}
}
