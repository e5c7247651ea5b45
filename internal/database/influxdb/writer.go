package influxdb

import (
	"context"
	"fmt"
	"log"
	"time"

	"can-session-logger/internal/models"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"
)

// Writer handles writing session telemetry samples to InfluxDB
type Writer struct {
	client      *influxdb3.Client
	logger      *log.Logger
	measurement string
	batchSize   int
	batch       []models.SessionStats
	batchChan   chan models.SessionStats
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	flushTimer  *time.Ticker
}

// New creates a new InfluxDB writer
func New(config Config, batchSize int, logger *log.Logger) (*Writer, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	if logger == nil {
		logger = log.Default()
	}

	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     config.URL,
		Token:    config.Token,
		Database: config.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB client: %w", err)
	}

	measurement := config.Measurement
	if measurement == "" {
		measurement = "can_session_stats"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Writer{
		client:      client,
		logger:      logger,
		measurement: measurement,
		batchSize:   batchSize,
		batch:       make([]models.SessionStats, 0, batchSize),
		batchChan:   make(chan models.SessionStats, batchSize*2),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		flushTimer:  time.NewTicker(1 * time.Second),
	}, nil
}

// statsTags identifies the series a sample belongs to
func statsTags(stat models.SessionStats) map[string]string {
	return map[string]string{
		"session_id": stat.SessionID,
		"channel":    stat.Channel,
		"bus_kind":   stat.BusKind,
	}
}

func statsFields(stat models.SessionStats) map[string]any {
	fields := map[string]any{
		"connected":       stat.Connected,
		"logging":         stat.Logging,
		"periodic_send":   stat.PeriodicSend,
		"frames_received": stat.FramesReceived,
		"frames_sent":     stat.FramesSent,
		"send_failures":   stat.SendFailures,
		"receive_errors":  stat.ReceiveErrors,
		"frames_logged":   stat.FramesLogged,
		"log_failures":    stat.LogFailures,
	}

	// Interface counters only exist for SocketCAN
	iface := stat.Interface
	if iface.State != "" {
		fields["state"] = iface.State
		fields["bitrate"] = int64(iface.Bitrate)
		fields["bus_state"] = iface.BusState
		fields["rx_error_counter"] = int64(iface.RXErrorCounter)
		fields["tx_error_counter"] = int64(iface.TXErrorCounter)
		fields["rx_packets"] = iface.RXPackets
		fields["rx_errors"] = iface.RXErrors
		fields["rx_dropped"] = iface.RXDropped
		fields["tx_packets"] = iface.TXPackets
		fields["tx_errors"] = iface.TXErrors
		fields["tx_dropped"] = iface.TXDropped
		fields["bus_off"] = iface.BusOff
	}
	return fields
}

// Start begins processing and writing samples
func (w *Writer) Start() {
	go w.writeLoop()
}

// writeLoop processes samples and writes them in batches
func (w *Writer) writeLoop() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			for {
				select {
				case stat := <-w.batchChan:
					w.batch = append(w.batch, stat)
				default:
					w.flushAndReport()
					return
				}
			}

		case stat := <-w.batchChan:
			w.batch = append(w.batch, stat)
			if len(w.batch) >= w.batchSize {
				w.flushAndReport()
			}

		case <-w.flushTimer.C:
			w.flushAndReport()
		}
	}
}

func (w *Writer) flushAndReport() {
	if err := w.flush(); err != nil {
		w.logger.Printf("[influxdb] %v", err)
	}
}

// flush writes the current batch to InfluxDB
func (w *Writer) flush() error {
	if len(w.batch) == 0 {
		return nil
	}
	defer func() { w.batch = w.batch[:0] }()

	points := make([]*influxdb3.Point, 0, len(w.batch))
	for _, stat := range w.batch {
		points = append(points, influxdb3.NewPoint(w.measurement, statsTags(stat), statsFields(stat), stat.Timestamp))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.client.WritePoints(ctx, points); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}

	w.logger.Printf("[influxdb] flushed %d telemetry samples", len(w.batch))
	return nil
}

// Write queues a sample for writing
func (w *Writer) Write(stat models.SessionStats) {
	select {
	case <-w.ctx.Done():
	case w.batchChan <- stat:
	default:
		w.logger.Println("[influxdb] warning: batch channel full, dropping sample")
	}
}

// Close flushes pending samples and closes the InfluxDB client. It must
// follow Start.
func (w *Writer) Close() error {
	w.cancel()
	<-w.done
	w.flushTimer.Stop()

	if w.client != nil {
		return w.client.Close()
	}
	return nil
}
