package session

import "sync/atomic"

// State holds the flags shared by the controller, the listener goroutine and
// the periodic sender. The controller is the only writer of each flag; the
// background goroutines only read them. Atomic loads and stores give the
// acquire/release ordering the readers rely on.
type State struct {
	connected    atomic.Bool
	logging      atomic.Bool
	periodicSend atomic.Bool
	sendCounter  atomic.Uint64
}

// Connected reports whether the bus connection is open
func (s *State) Connected() bool { return s.connected.Load() }

// Logging reports whether received frames are written to the log
func (s *State) Logging() bool { return s.logging.Load() }

// PeriodicSendActive reports whether the periodic sender should keep sending
func (s *State) PeriodicSendActive() bool { return s.periodicSend.Load() }

// SendCounter returns the number of synthetic frames generated this session
func (s *State) SendCounter() uint64 { return s.sendCounter.Load() }

func (s *State) nextCounter() uint64 {
	return s.sendCounter.Add(1)
}

// resetCounter restarts the synthetic frame sequence for a new connect cycle
func (s *State) resetCounter() {
	s.sendCounter.Store(0)
}
