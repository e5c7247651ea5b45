package can

import (
	"sync"
	"sync/atomic"
	"time"

	"can-session-logger/internal/models"
)

const virtualQueueSize = 1000

// virtualHub keeps one in-process bus per channel name. Every endpoint on a
// channel, the sender included, receives each frame sent on it.
type virtualHub struct {
	mu    sync.Mutex
	buses map[string]*virtualBus
}

var defaultHub = &virtualHub{buses: make(map[string]*virtualBus)}

type virtualBus struct {
	mu        sync.RWMutex
	endpoints map[*virtualEndpoint]struct{}
}

func (h *virtualHub) open(channel string) *virtualEndpoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	bus, ok := h.buses[channel]
	if !ok {
		bus = &virtualBus{endpoints: make(map[*virtualEndpoint]struct{})}
		h.buses[channel] = bus
	}

	ep := &virtualEndpoint{
		hub:     h,
		bus:     bus,
		channel: channel,
		queue:   make(chan models.Frame, virtualQueueSize),
		done:    make(chan struct{}),
	}

	bus.mu.Lock()
	bus.endpoints[ep] = struct{}{}
	bus.mu.Unlock()

	return ep
}

func (h *virtualHub) release(ep *virtualEndpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ep.bus.mu.Lock()
	delete(ep.bus.endpoints, ep)
	empty := len(ep.bus.endpoints) == 0
	ep.bus.mu.Unlock()

	if empty && h.buses[ep.channel] == ep.bus {
		delete(h.buses, ep.channel)
	}
}

// virtualEndpoint is one adapter handle on a virtual bus.
type virtualEndpoint struct {
	hub     *virtualHub
	bus     *virtualBus
	channel string
	queue   chan models.Frame
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64 // frames evicted from a full queue

	filterMu sync.RWMutex
	filter   map[uint32]struct{}
}

func (ep *virtualEndpoint) Receive(timeout time.Duration) (models.Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ep.done:
		return models.Frame{}, ErrTransportClosed
	case frame := <-ep.queue:
		return frame, nil
	case <-timer.C:
		return models.Frame{}, ErrReceiveTimeout
	}
}

// Send fans frame out to every endpoint on the bus. An endpoint whose
// queue is full loses its oldest frame; the sender never fails on a slow
// or idle receiver.
func (ep *virtualEndpoint) Send(frame models.Frame) error {
	select {
	case <-ep.done:
		return ErrTransportClosed
	default:
	}

	ep.bus.mu.RLock()
	defer ep.bus.mu.RUnlock()

	for peer := range ep.bus.endpoints {
		if peer.accepts(frame.ArbitrationID) {
			peer.push(frame)
		}
	}
	return nil
}

func (ep *virtualEndpoint) push(frame models.Frame) {
	for {
		select {
		case ep.queue <- frame:
			return
		default:
		}
		select {
		case <-ep.queue:
			ep.dropped.Add(1)
		default:
		}
	}
}

func (ep *virtualEndpoint) SetFilter(ids []uint32) error {
	ep.filterMu.Lock()
	defer ep.filterMu.Unlock()

	if len(ids) == 0 {
		ep.filter = nil
		return nil
	}
	ep.filter = make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		ep.filter[id] = struct{}{}
	}
	return nil
}

func (ep *virtualEndpoint) accepts(id uint32) bool {
	ep.filterMu.RLock()
	defer ep.filterMu.RUnlock()

	if ep.filter == nil {
		return true
	}
	_, ok := ep.filter[id]
	return ok
}

func (ep *virtualEndpoint) Close() error {
	ep.once.Do(func() {
		close(ep.done)
		ep.hub.release(ep)
	})
	return nil
}
