package database

import "can-session-logger/internal/models"

// Writer defines the interface for telemetry sinks. Frames themselves are
// only ever persisted to the flat log; sinks receive session samples.
type Writer interface {
	// Start begins processing and writing samples
	Start()

	// Write queues a sample for writing
	Write(stat models.SessionStats)

	// Close flushes pending samples and releases the connection
	Close() error
}
