package can

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"can-session-logger/internal/models"
)

const (
	DefaultReceiveTimeout = time.Second
	receiveErrorBackoff   = 100 * time.Millisecond
)

// Options configures a Connection
type Options struct {
	// ReceiveTimeout bounds each wait for the next frame. A timeout is not
	// an error; the listener simply waits again.
	ReceiveTimeout time.Duration

	// Filters restricts delivery to these arbitration ids when non-empty.
	Filters []uint32

	Logger *log.Logger
}

// Stats counts frames seen by a Connection across its lifetime
type Stats struct {
	Received      uint64
	Sent          uint64
	SendFailures  uint64
	ReceiveErrors uint64
}

// Connection owns the adapter handle for one connect/disconnect cycle and
// delivers received frames to a single subscriber.
type Connection struct {
	opts   Options
	logger *log.Logger

	mu        sync.Mutex // guards transport, sub, listening and the session parameters
	transport Transport
	channel   string
	kind      BusKind
	bitrate   int
	sub       *subscription
	listening bool // a listener goroutine is reading transport

	connected atomic.Bool

	received      atomic.Uint64
	sent          atomic.Uint64
	sendFailures  atomic.Uint64
	receiveErrors atomic.Uint64
}

type subscription struct {
	onFrame func(models.Frame)
}

// NewConnection creates a disconnected Connection
func NewConnection(opts Options) *Connection {
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = DefaultReceiveTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Connection{
		opts:   opts,
		logger: logger,
	}
}

// Connect opens the adapter. On failure the connection stays disconnected
// and holds no resources; the returned error is a *ConnectError.
func (c *Connection) Connect(channel string, kind BusKind, bitrate int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected.Load() {
		return &ConnectError{Channel: channel, BusKind: kind, Bitrate: bitrate, Err: ErrAlreadyConnected}
	}

	transport, err := openTransport(channel, kind, bitrate)
	if err != nil {
		c.logger.Printf("[can] connect %s on %q failed: %v", kind, channel, err)
		return &ConnectError{Channel: channel, BusKind: kind, Bitrate: bitrate, Err: err}
	}

	if len(c.opts.Filters) > 0 {
		if f, ok := transport.(filterer); ok {
			if err := f.SetFilter(c.opts.Filters); err != nil {
				transport.Close()
				return &ConnectError{Channel: channel, BusKind: kind, Bitrate: bitrate, Err: err}
			}
			c.logger.Printf("[can] applied CAN ID filters: %v", c.opts.Filters)
		}
	}

	c.transport = transport
	c.channel = channel
	c.kind = kind
	c.bitrate = bitrate
	c.connected.Store(true)

	c.logger.Printf("[can] connected to %s bus on %q at %d bps", kind, channel, bitrate)
	return nil
}

// Disconnect releases the adapter and stops delivery. It does not wait for
// the listener goroutine; the listener exits on its next wakeup. Safe to
// call when not connected.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected.Swap(false) {
		return
	}

	c.sub = nil
	c.listening = false
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			c.logger.Printf("[can] closing %s transport on %q: %v", c.kind, c.channel, err)
		}
		c.transport = nil
	}

	c.logger.Printf("[can] disconnected from %s bus on %q", c.kind, c.channel)
}

// IsConnected reports whether the adapter is open
func (c *Connection) IsConnected() bool {
	return c.connected.Load()
}

// Channel returns the channel and bus kind of the current or last session
func (c *Connection) Channel() (string, BusKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel, c.kind
}

// Send transmits one data frame. It returns false when not connected or
// when the frame was rejected; the failure is logged, never returned.
func (c *Connection) Send(id uint32, data []byte, extended bool) bool {
	if err := c.send(models.NewFrame(id, data, extended)); err != nil {
		c.sendFailures.Add(1)
		c.logger.Printf("[can] %v", err)
		return false
	}
	c.sent.Add(1)
	return true
}

func (c *Connection) send(frame models.Frame) error {
	c.mu.Lock()
	transport, channel, kind := c.transport, c.channel, c.kind
	c.mu.Unlock()

	if !c.connected.Load() || transport == nil {
		return &SendError{Channel: channel, BusKind: kind, ID: frame.ArbitrationID, Err: ErrNotConnected}
	}
	if err := frame.Validate(); err != nil {
		return &SendError{Channel: channel, BusKind: kind, ID: frame.ArbitrationID, Err: err}
	}
	if err := transport.Send(frame); err != nil {
		return &SendError{Channel: channel, BusKind: kind, ID: frame.ArbitrationID, Err: err}
	}
	return nil
}

// Subscribe starts asynchronous delivery of received frames to onFrame.
// onFrame runs on the listener goroutine, in arrival order, once per frame.
// Subscribing while a subscription is active is a no-op. After Unsubscribe
// a listener still waiting on the adapter is reused rather than replaced.
func (c *Connection) Subscribe(onFrame func(models.Frame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected.Load() {
		c.logger.Printf("[can] not connected to CAN bus, cannot start listening")
		return ErrNotConnected
	}
	if c.sub != nil {
		c.logger.Printf("[can] warning: listener on %q is already running", c.channel)
		return nil
	}

	c.sub = &subscription{onFrame: onFrame}
	if !c.listening {
		c.listening = true
		go c.listen(c.transport)
	}

	c.logger.Printf("[can] started listening on %q", c.channel)
	return nil
}

// Unsubscribe stops delivery without closing the adapter. Frames that
// arrive while nobody is subscribed are dropped.
func (c *Connection) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sub = nil
}

// listen receives frames from transport and hands each one to whoever is
// subscribed when it arrives. It exits once transport is no longer current
// or nobody is subscribed, so a transport never has two readers.
func (c *Connection) listen(transport Transport) {
	for {
		frame, err := transport.Receive(c.opts.ReceiveTimeout)

		sub := c.subscriber(transport)
		if sub == nil {
			return
		}

		switch {
		case err == nil:
		case errors.Is(err, ErrReceiveTimeout):
			continue
		case errors.Is(err, ErrTransportClosed):
			return
		default:
			c.receiveErrors.Add(1)
			c.logger.Printf("[can] receive error: %v", err)
			time.Sleep(receiveErrorBackoff)
			continue
		}

		c.received.Add(1)
		sub.onFrame(frame)
	}
}

// subscriber returns the active subscription for transport's listener, or
// nil when that listener should exit.
func (c *Connection) subscriber(transport Transport) *subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != transport || !c.connected.Load() {
		return nil
	}
	if c.sub == nil {
		c.listening = false
		return nil
	}
	return c.sub
}

// Stats returns the frame counters
func (c *Connection) Stats() Stats {
	return Stats{
		Received:      c.received.Load(),
		Sent:          c.sent.Load(),
		SendFailures:  c.sendFailures.Load(),
		ReceiveErrors: c.receiveErrors.Load(),
	}
}
