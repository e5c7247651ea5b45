package models

import "time"

// InterfaceStats holds counters read from a SocketCAN network interface.
// Zero values mean the counter was not available (virtual bus, missing iproute2).
type InterfaceStats struct {
	State       string `json:"state"`        // UP, DOWN, etc.
	MTU         int    `json:"mtu"`          // Maximum Transmission Unit
	QueueLength int    `json:"queue_length"` // TX queue length

	Bitrate        int    `json:"bitrate"`          // Bitrate in bps
	SamplePoint    string `json:"sample_point"`     // Sample point (e.g., "87.5%")
	RestartMS      int    `json:"restart_ms"`       // Auto-restart delay in ms
	ControllerMode string `json:"controller_mode"`  // e.g. "LOOPBACK"
	BusState       string `json:"bus_state"`        // ERROR-ACTIVE, ERROR-PASSIVE, BUS-OFF
	RXErrorCounter int    `json:"rx_error_counter"` // berr-counter rx
	TXErrorCounter int    `json:"tx_error_counter"` // berr-counter tx

	RXPackets uint64 `json:"rx_packets"`
	RXBytes   uint64 `json:"rx_bytes"`
	RXErrors  uint64 `json:"rx_errors"`
	RXDropped uint64 `json:"rx_dropped"`
	TXPackets uint64 `json:"tx_packets"`
	TXBytes   uint64 `json:"tx_bytes"`
	TXErrors  uint64 `json:"tx_errors"`
	TXDropped uint64 `json:"tx_dropped"`

	BusOffRestarts  uint64 `json:"bus_off_restarts"`
	ArbitrationLost uint64 `json:"arbitration_lost"`
	ErrorWarning    uint64 `json:"error_warning"`
	ErrorPassive    uint64 `json:"error_passive"`
	BusOff          uint64 `json:"bus_off"`
}

// SessionStats is one telemetry sample of a bus session.
type SessionStats struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Channel   string    `json:"channel"`
	BusKind   string    `json:"bus_kind"`

	Connected    bool `json:"connected"`
	Logging      bool `json:"logging"`
	PeriodicSend bool `json:"periodic_send"`

	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	SendFailures   uint64 `json:"send_failures"`
	ReceiveErrors  uint64 `json:"receive_errors"`
	FramesLogged   uint64 `json:"frames_logged"`
	LogFailures    uint64 `json:"log_failures"`

	Interface InterfaceStats `json:"interface"`
}
