// Package framelog records CAN frames to an append-only CSV file.
//
// A Logger is Closed until Open succeeds. Every Append writes one complete
// row and syncs it to stable storage before returning, so a crash loses at
// most the row being written and never damages earlier rows.
package framelog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"can-session-logger/internal/models"
)

// ErrNotOpen is returned by Append when the logger is closed.
var ErrNotOpen = errors.New("log file is not open")

// IOError reports a failure to open or write the log file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s log file %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Logger owns the log file handle while open. Methods are safe for
// concurrent use; rows are never interleaved.
type Logger struct {
	logger *log.Logger

	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
	count  uint64
}

// New creates a closed Logger
func New(logger *log.Logger) *Logger {
	if logger == nil {
		logger = log.Default()
	}
	return &Logger{logger: logger}
}

// Open opens path for appending, creating it if needed, and writes the
// header row when the file is new or empty. On failure the logger stays closed.
func (l *Logger) Open(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if l.path == path {
			return nil
		}
		return &IOError{Op: "open", Path: path, Err: fmt.Errorf("logger already open on %s", l.path)}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return &IOError{Op: "stat", Path: path, Err: err}
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writeRow(file, writer, models.LogHeader()); err != nil {
			file.Close()
			return &IOError{Op: "write header to", Path: path, Err: err}
		}
	}

	l.path = path
	l.file = file
	l.writer = writer
	l.count = 0

	l.logger.Printf("[framelog] logging to: %s", path)
	return nil
}

// Append writes frame as the next row and syncs it. On a closed logger it
// returns ErrNotOpen without side effects. A failed write closes the file
// it failed on.
func (l *Logger) Append(frame models.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrNotOpen
	}

	if err := writeRow(l.file, l.writer, models.FrameRow(frame)); err != nil {
		l.closeLocked()
		return &IOError{Op: "append to", Path: l.path, Err: err}
	}
	l.count++
	return nil
}

// Close flushes and releases the file. Closing a closed logger is a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	return l.closeLocked()
}

func (l *Logger) closeLocked() error {
	l.writer.Flush()
	err := l.writer.Error()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}

	l.logger.Printf("[framelog] log file %s closed after %d frames", l.path, l.count)
	l.file = nil
	l.writer = nil

	if err != nil {
		return &IOError{Op: "close", Path: l.path, Err: err}
	}
	return nil
}

// IsOpen reports whether the logger accepts frames
func (l *Logger) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

// Path returns the path of the current or last opened file
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Count returns the number of frames written since the last Open
func (l *Logger) Count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func writeRow(file *os.File, writer *csv.Writer, row []string) error {
	if err := writer.Write(row); err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Sync()
}
