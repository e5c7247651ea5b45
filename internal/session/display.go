package session

import (
	"fmt"
	"strings"

	"can-session-logger/internal/models"
)

// FormatFrame renders a frame as one display line, e.g.
// "[1699999999.1234] ID: 0x123 DLC: 8 Data: 0102030405060708".
func FormatFrame(f models.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%.4f] ID: 0x%03X DLC: %d Data: %s", f.Timestamp, f.ArbitrationID, f.DLC, strings.ToUpper(f.DataHex()))
	if f.IsExtendedID {
		b.WriteString(" (Extended)")
	}
	if f.IsRemoteFrame {
		b.WriteString(" (Remote)")
	}
	if f.IsErrorFrame {
		b.WriteString(" (Error)")
	}
	return b.String()
}
