package can

import (
	"errors"
	"sync"
	"testing"
	"time"

	"can-session-logger/internal/logging"
	"can-session-logger/internal/models"
)

func newTestConnection(opts Options) *Connection {
	if opts.ReceiveTimeout == 0 {
		opts.ReceiveTimeout = 20 * time.Millisecond
	}
	opts.Logger = logging.Discard()
	return NewConnection(opts)
}

// collector records delivered frames for assertions
type collector struct {
	mu     sync.Mutex
	frames []models.Frame
}

func (c *collector) add(f models.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

func (c *collector) snapshot() []models.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Frame(nil), c.frames...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectErrors(t *testing.T) {
	tests := []struct {
		name    string
		kind    BusKind
		bitrate int
		want    error
	}{
		{name: "unknown kind", kind: "carrier-pigeon", bitrate: 500000, want: ErrUnsupportedBusKind},
		{name: "pcan without driver", kind: BusPCAN, bitrate: 500000, want: ErrDriverUnavailable},
		{name: "vector without driver", kind: BusVector, bitrate: 500000, want: ErrDriverUnavailable},
		{name: "zero bitrate", kind: BusVirtual, bitrate: 0, want: ErrInvalidBitrate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConnection(Options{})

			err := c.Connect(t.Name(), tt.kind, tt.bitrate)
			var connErr *ConnectError
			if !errors.As(err, &connErr) {
				t.Fatalf("Connect = %v, want *ConnectError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Connect = %v, want %v", err, tt.want)
			}
			if connErr.BusKind != tt.kind || connErr.Bitrate != tt.bitrate {
				t.Errorf("ConnectError carries %s/%d", connErr.BusKind, connErr.Bitrate)
			}
			if c.IsConnected() {
				t.Error("connected after failed Connect")
			}
		})
	}
}

func TestConnectTwice(t *testing.T) {
	c := newTestConnection(Options{})
	if err := c.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	if err := c.Connect(t.Name(), BusVirtual, 500000); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}
}

func TestSendFailures(t *testing.T) {
	c := newTestConnection(Options{})

	if c.Send(0x100, []byte{1}, false) {
		t.Error("Send succeeded while disconnected")
	}

	if err := c.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	if c.Send(0x100, make([]byte, 9), false) {
		t.Error("Send accepted 9 data bytes")
	}
	if c.Send(0x800, nil, false) {
		t.Error("Send accepted an 11-bit id above 0x7FF")
	}
	if !c.Send(0x800, nil, true) {
		t.Error("Send rejected a valid extended id")
	}

	stats := c.Stats()
	if stats.SendFailures != 3 || stats.Sent != 1 {
		t.Errorf("Stats = %+v, want 3 failures and 1 sent", stats)
	}
}

func TestSubscribeDeliversInOrder(t *testing.T) {
	c := newTestConnection(Options{})
	if err := c.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	var got collector
	if err := c.Subscribe(got.add); err != nil {
		t.Fatal(err)
	}

	ids := []uint32{0x100, 0x200, 0x100, 0x300, 0x100}
	for i, id := range ids {
		if !c.Send(id, []byte{byte(i)}, false) {
			t.Fatalf("Send %#x failed", id)
		}
	}

	waitFor(t, "all frames", func() bool { return len(got.snapshot()) == len(ids) })
	for i, f := range got.snapshot() {
		if f.ArbitrationID != ids[i] || f.Data[0] != byte(i) {
			t.Errorf("frame %d = %#x %v, want %#x [%d]", i, f.ArbitrationID, f.Data, ids[i], i)
		}
	}
	if c.Stats().Received != uint64(len(ids)) {
		t.Errorf("Received = %d", c.Stats().Received)
	}
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := newTestConnection(Options{})
	if err := c.Subscribe(func(models.Frame) {}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe = %v, want ErrNotConnected", err)
	}
}

func TestSecondSubscribeIsNoop(t *testing.T) {
	c := newTestConnection(Options{})
	if err := c.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	var first, second collector
	if err := c.Subscribe(first.add); err != nil {
		t.Fatal(err)
	}
	if err := c.Subscribe(second.add); err != nil {
		t.Fatalf("second Subscribe: %v", err)
	}

	c.Send(0x123, []byte{1}, false)
	waitFor(t, "delivery", func() bool { return len(first.snapshot()) == 1 })

	time.Sleep(50 * time.Millisecond)
	if n := len(second.snapshot()); n != 0 {
		t.Errorf("second subscriber received %d frames", n)
	}
	if n := len(first.snapshot()); n != 1 {
		t.Errorf("first subscriber received %d frames, want exactly 1", n)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c := newTestConnection(Options{})
	c.Disconnect()

	if err := c.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatal(err)
	}
	if err := c.Subscribe(func(models.Frame) {}); err != nil {
		t.Fatal(err)
	}
	c.Disconnect()
	c.Disconnect()

	if c.IsConnected() {
		t.Error("still connected")
	}
	if c.Send(0x100, nil, false) {
		t.Error("Send succeeded after Disconnect")
	}

	// a fresh cycle works on the same Connection
	if err := c.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	c.Disconnect()
}

func TestNoDeliveryAfterDisconnect(t *testing.T) {
	c := newTestConnection(Options{})
	if err := c.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatal(err)
	}
	var got collector
	if err := c.Subscribe(got.add); err != nil {
		t.Fatal(err)
	}
	c.Disconnect()

	// another node on the same channel keeps talking
	peer := newTestConnection(Options{})
	if err := peer.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatal(err)
	}
	defer peer.Disconnect()
	peer.Send(0x100, []byte{1}, false)

	time.Sleep(60 * time.Millisecond)
	if n := len(got.snapshot()); n != 0 {
		t.Errorf("%d frames delivered after Disconnect", n)
	}
}

func TestUnsubscribeKeepsConnection(t *testing.T) {
	c := newTestConnection(Options{})
	if err := c.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	if err := c.Subscribe(func(models.Frame) {}); err != nil {
		t.Fatal(err)
	}
	c.Unsubscribe()

	if !c.IsConnected() {
		t.Error("Unsubscribe disconnected the bus")
	}
	if !c.Send(0x100, nil, false) {
		t.Error("Send failed after Unsubscribe")
	}
}

func TestFilters(t *testing.T) {
	c := newTestConnection(Options{Filters: []uint32{0x200}})
	if err := c.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	var got collector
	if err := c.Subscribe(got.add); err != nil {
		t.Fatal(err)
	}

	c.Send(0x100, nil, false)
	c.Send(0x200, nil, false)
	c.Send(0x300, nil, false)

	waitFor(t, "filtered frame", func() bool { return len(got.snapshot()) >= 1 })
	time.Sleep(50 * time.Millisecond)
	frames := got.snapshot()
	if len(frames) != 1 || frames[0].ArbitrationID != 0x200 {
		t.Errorf("delivered %v, want only 0x200", frames)
	}
}

func TestResubscribeDeliversEveryFrame(t *testing.T) {
	c := newTestConnection(Options{})
	if err := c.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	var first, second collector
	if err := c.Subscribe(first.add); err != nil {
		t.Fatal(err)
	}
	c.Unsubscribe()
	if err := c.Subscribe(second.add); err != nil {
		t.Fatalf("Subscribe after Unsubscribe: %v", err)
	}

	const n = 5
	for i := 0; i < n; i++ {
		if !c.Send(0x100, []byte{byte(i)}, false) {
			t.Fatalf("Send %d failed", i)
		}
	}

	waitFor(t, "all frames", func() bool { return len(second.snapshot()) >= n })
	time.Sleep(50 * time.Millisecond)

	frames := second.snapshot()
	if len(frames) != n {
		t.Fatalf("delivered %d frames, want %d", len(frames), n)
	}
	for i, f := range frames {
		if f.Data[0] != byte(i) {
			t.Errorf("frame %d carries %d", i, f.Data[0])
		}
	}
	if got := len(first.snapshot()); got != 0 {
		t.Errorf("unsubscribed handler received %d frames", got)
	}
}

func TestSendWithoutListener(t *testing.T) {
	c := newTestConnection(Options{})
	if err := c.Connect(t.Name(), BusVirtual, 500000); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	total := 2*virtualQueueSize + 10
	for i := 0; i < total; i++ {
		if !c.Send(0x100, nil, false) {
			t.Fatalf("Send %d failed with nobody listening", i)
		}
	}

	if err := c.Subscribe(func(models.Frame) {}); err != nil {
		t.Fatal(err)
	}
	c.Unsubscribe()
	for i := 0; i < total; i++ {
		if !c.Send(0x200, nil, false) {
			t.Fatalf("Send %d failed after Unsubscribe", i)
		}
	}

	stats := c.Stats()
	if stats.SendFailures != 0 || stats.Sent != uint64(2*total) {
		t.Errorf("Stats = %+v, want %d sent and no failures", stats, 2*total)
	}
}
