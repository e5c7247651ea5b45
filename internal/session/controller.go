package session

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"can-session-logger/internal/analyzer"
	"can-session-logger/internal/can"
	"can-session-logger/internal/framelog"
	"can-session-logger/internal/models"

	"github.com/google/uuid"
)

const DefaultPeriodicInterval = 100 * time.Millisecond

// Synthetic test frames cycle through these ids
var testFrameIDs = [3]uint32{0x100, 0x200, 0x300}

// DisplayFunc receives every frame delivered by the bus. It is called from
// the listener goroutine, not from the goroutine driving the Controller, so
// anything it touches must be safe for concurrent use. It should return
// quickly; a slow display delays delivery but never logging.
type DisplayFunc func(models.Frame)

// Config holds the session parameters
type Config struct {
	Channel string
	BusKind can.BusKind
	Bitrate int
	LogPath string
	Display DisplayFunc
	Logger  *log.Logger
}

// Analysis is the result of RunAnalysis
type Analysis struct {
	Log       *analyzer.LoadedLog `json:"-"`
	Summary   *analyzer.Summary   `json:"summary"`
	Frequency []analyzer.IDCount  `json:"frequency"`
}

// Status is a point-in-time view of the session
type Status struct {
	SessionID     string      `json:"session_id"`
	Channel       string      `json:"channel"`
	BusKind       can.BusKind `json:"bus_kind"`
	Bitrate       int         `json:"bitrate"`
	Connected     bool        `json:"connected"`
	Logging       bool        `json:"logging"`
	PeriodicSend  bool        `json:"periodic_send"`
	SendCounter   uint64      `json:"send_counter"`
	LogPath       string      `json:"log_path"`
	FramesLogged  uint64      `json:"frames_logged"`
	LogFailures   uint64      `json:"log_failures"`
	Received      uint64      `json:"frames_received"`
	Sent          uint64      `json:"frames_sent"`
	SendFailures  uint64      `json:"send_failures"`
	ReceiveErrors uint64      `json:"receive_errors"`
}

// Controller coordinates the bus connection, the frame logger and the
// periodic sender of one session. Its methods are meant to be driven by a
// single front end; they are nonetheless safe for concurrent use.
type Controller struct {
	cfg      Config
	logger   *log.Logger
	conn     *can.Connection
	frameLog *framelog.Logger
	state    State

	mu           sync.Mutex // serializes toggles
	sessionID    string
	periodicStop chan struct{}

	logged      atomic.Uint64
	logFailures atomic.Uint64
}

// NewController creates a controller around conn
func NewController(conn *can.Connection, cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Controller{
		cfg:      cfg,
		logger:   logger,
		conn:     conn,
		frameLog: framelog.New(logger),
	}
}

// State exposes the shared session flags
func (c *Controller) State() *State {
	return &c.state
}

// Connect opens the bus with the configured parameters. Failures are
// returned as *can.ConnectError and are not retried.
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.Connect(c.cfg.Channel, c.cfg.BusKind, c.cfg.Bitrate); err != nil {
		return err
	}

	c.sessionID = uuid.NewString()
	c.state.resetCounter()
	c.state.connected.Store(true)

	c.logger.Printf("[session] %s connected", c.sessionID)
	return nil
}

// Disconnect stops periodic sending and logging, then closes the bus.
// It does not wait for background goroutines. Safe to call repeatedly.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopPeriodicLocked()
	if err := c.stopLoggingLocked(); err != nil {
		c.logger.Printf("[session] %v", err)
	}

	c.state.connected.Store(false)
	c.conn.Disconnect()
}

// StartListening subscribes the dispatcher to the bus
func (c *Controller) StartListening() error {
	if !c.state.Connected() {
		return can.ErrNotConnected
	}
	return c.conn.Subscribe(c.dispatch)
}

// dispatch logs (when enabled) and displays each received frame. Logging
// runs first so durability never waits on the display.
func (c *Controller) dispatch(frame models.Frame) {
	if c.state.Logging() {
		c.logFrame(frame)
	}
	if c.cfg.Display != nil {
		c.cfg.Display(frame)
	}
}

func (c *Controller) logFrame(frame models.Frame) {
	err := c.frameLog.Append(frame)
	switch {
	case err == nil:
		c.logged.Add(1)
	case errors.Is(err, framelog.ErrNotOpen):
		// logging was switched off between the flag check and the append
		c.logFailures.Add(1)
	default:
		// A write failure ends the logging sub-session; listening goes on.
		c.logFailures.Add(1)
		c.logger.Printf("[session] %v; logging stopped", err)
		c.loggingFailed()
	}
}

// loggingFailed clears the logging flag after the frame logger closed itself
// on a write error. A log reopened by ToggleLogging in the meantime is left
// running.
func (c *Controller) loggingFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.frameLog.IsOpen() {
		c.state.logging.Store(false)
	}
}

// ToggleLogging switches logging on or off and returns the new state.
// Switching on removes any previous log at the configured path first.
func (c *Controller) ToggleLogging() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Logging() {
		return false, c.stopLoggingLocked()
	}

	path := c.cfg.LogPath
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, &framelog.IOError{Op: "remove previous", Path: path, Err: err}
	} else if err == nil {
		c.logger.Printf("[session] removed existing log file: %s", path)
	}

	if err := c.frameLog.Open(path); err != nil {
		return false, err
	}
	c.state.logging.Store(true)
	return true, nil
}

func (c *Controller) stopLoggingLocked() error {
	if !c.state.logging.Swap(false) {
		return nil
	}
	return c.frameLog.Close()
}

// TogglePeriodicSend starts or stops the periodic sender and returns the
// new state. Starting requires a connection. Stopping does not wait for a
// send already in progress.
func (c *Controller) TogglePeriodicSend(interval time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.PeriodicSendActive() {
		c.stopPeriodicLocked()
		return false, nil
	}

	if !c.state.Connected() {
		return false, fmt.Errorf("cannot start periodic send: %w", can.ErrNotConnected)
	}
	if interval <= 0 {
		return false, fmt.Errorf("invalid periodic send interval %v", interval)
	}

	stop := make(chan struct{})
	c.periodicStop = stop
	c.state.periodicSend.Store(true)
	go c.periodicSender(interval, stop)

	c.logger.Printf("[session] periodic send every %v", interval)
	return true, nil
}

func (c *Controller) stopPeriodicLocked() {
	if !c.state.periodicSend.Swap(false) {
		return
	}
	if c.periodicStop != nil {
		close(c.periodicStop)
		c.periodicStop = nil
	}
	c.logger.Printf("[session] periodic send stopped")
}

// periodicSender sends one test frame per tick until stop is closed or the
// session disconnects. Send failures are counted and skipped.
func (c *Controller) periodicSender(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		default:
		}
		if !c.state.PeriodicSendActive() || !c.state.Connected() {
			return
		}

		c.SendTestFrame()

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// SendTestFrame sends the next synthetic frame. It returns false when the
// frame was not sent; the session is otherwise unaffected.
func (c *Controller) SendTestFrame() bool {
	id, data := TestFrame(c.state.nextCounter())
	return c.conn.Send(id, data, false)
}

// Send transmits an arbitrary frame on the session bus
func (c *Controller) Send(id uint32, data []byte, extended bool) bool {
	return c.conn.Send(id, data, extended)
}

// TestFrame derives the synthetic frame for counter: the id cycles through
// 0x100, 0x200 and 0x300 and the first three payload bytes count up.
func TestFrame(counter uint64) (uint32, []byte) {
	id := testFrameIDs[counter%3]
	data := []byte{
		byte(counter % 256),
		byte((counter + 1) % 256),
		byte((counter + 2) % 256),
		0x03, 0x04, 0x05, 0x06, 0x07,
	}
	return id, data
}

// RunAnalysis stops logging so the file holds every delivered frame, then
// loads and summarizes it. Summary is nil when the log has no rows.
func (c *Controller) RunAnalysis(topN int) (*Analysis, error) {
	c.mu.Lock()
	err := c.stopLoggingLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	loaded, err := analyzer.Load(c.cfg.LogPath)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Log:       loaded,
		Summary:   analyzer.Summarize(loaded),
		Frequency: analyzer.FrequencyTable(loaded, topN),
	}, nil
}

// Snapshot returns the current session status
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	stats := c.conn.Stats()
	return Status{
		SessionID:     sessionID,
		Channel:       c.cfg.Channel,
		BusKind:       c.cfg.BusKind,
		Bitrate:       c.cfg.Bitrate,
		Connected:     c.state.Connected(),
		Logging:       c.state.Logging(),
		PeriodicSend:  c.state.PeriodicSendActive(),
		SendCounter:   c.state.SendCounter(),
		LogPath:       c.cfg.LogPath,
		FramesLogged:  c.logged.Load(),
		LogFailures:   c.logFailures.Load(),
		Received:      stats.Received,
		Sent:          stats.Sent,
		SendFailures:  stats.SendFailures,
		ReceiveErrors: stats.ReceiveErrors,
	}
}

// SessionStats returns the telemetry sample of the session
func (c *Controller) SessionStats() models.SessionStats {
	s := c.Snapshot()
	return models.SessionStats{
		SessionID:      s.SessionID,
		Channel:        s.Channel,
		BusKind:        string(s.BusKind),
		Connected:      s.Connected,
		Logging:        s.Logging,
		PeriodicSend:   s.PeriodicSend,
		FramesReceived: s.Received,
		FramesSent:     s.Sent,
		SendFailures:   s.SendFailures,
		ReceiveErrors:  s.ReceiveErrors,
		FramesLogged:   s.FramesLogged,
		LogFailures:    s.LogFailures,
	}
}

// Shutdown releases everything in the order a closing front end would
func (c *Controller) Shutdown() {
	c.Disconnect()
	c.logger.Printf("[session] shut down")
}
