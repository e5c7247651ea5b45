package clickhouse

import (
	"context"
	"fmt"
	"log"
	"time"

	"can-session-logger/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Writer batches session telemetry samples into a ClickHouse table
type Writer struct {
	conn       driver.Conn
	config     Config
	logger     *log.Logger
	batchSize  int
	batch      []models.SessionStats
	batchChan  chan models.SessionStats
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	flushTimer *time.Ticker
}

// New connects to ClickHouse and creates the telemetry table if needed
func New(config Config, batchSize int, logger *log.Logger) (*Writer, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	if logger == nil {
		logger = log.Default()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", config.Host, config.Port)},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test connection
	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := CreateStatsTable(conn, config.Table); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Writer{
		conn:       conn,
		config:     config,
		logger:     logger,
		batchSize:  batchSize,
		batch:      make([]models.SessionStats, 0, batchSize),
		batchChan:  make(chan models.SessionStats, batchSize*2),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		flushTimer: time.NewTicker(5 * time.Second),
	}, nil
}

// CreateStatsTable creates the session telemetry table in ClickHouse
func CreateStatsTable(conn driver.Conn, tableName string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp DateTime64(6),
			session_id String,
			channel String,
			bus_kind String,
			connected Bool,
			logging Bool,
			periodic_send Bool,

			-- session counters
			frames_received UInt64,
			frames_sent UInt64,
			send_failures UInt64,
			receive_errors UInt64,
			frames_logged UInt64,
			log_failures UInt64,

			-- interface statistics (SocketCAN only)
			state String,
			bitrate UInt32,
			bus_state String,
			rx_error_counter UInt32,
			tx_error_counter UInt32,
			rx_packets UInt64,
			rx_errors UInt64,
			rx_dropped UInt64,
			tx_packets UInt64,
			tx_errors UInt64,
			tx_dropped UInt64,
			bus_off UInt64
		) ENGINE = MergeTree()
		ORDER BY (timestamp, session_id)
		PARTITION BY toYYYYMMDD(timestamp)
		TTL toDateTime(timestamp) + INTERVAL 1 MONTH
		SETTINGS index_granularity = 8192
	`, tableName)

	return conn.Exec(context.Background(), query)
}

// statsRow orders a sample's values to match the table columns
func statsRow(stat models.SessionStats) []any {
	return []any{
		stat.Timestamp,
		stat.SessionID,
		stat.Channel,
		stat.BusKind,
		stat.Connected,
		stat.Logging,
		stat.PeriodicSend,
		stat.FramesReceived,
		stat.FramesSent,
		stat.SendFailures,
		stat.ReceiveErrors,
		stat.FramesLogged,
		stat.LogFailures,
		stat.Interface.State,
		uint32(stat.Interface.Bitrate),
		stat.Interface.BusState,
		uint32(stat.Interface.RXErrorCounter),
		uint32(stat.Interface.TXErrorCounter),
		stat.Interface.RXPackets,
		stat.Interface.RXErrors,
		stat.Interface.RXDropped,
		stat.Interface.TXPackets,
		stat.Interface.TXErrors,
		stat.Interface.TXDropped,
		stat.Interface.BusOff,
	}
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
			// Drain and flush remaining samples before exiting
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
		w.logger.Printf("[clickhouse] %v", err)
	}
}

// flush writes the current batch to ClickHouse
func (w *Writer) flush() error {
	if len(w.batch) == 0 {
		return nil
	}
	// The batch is dropped on failure; telemetry is best effort.
	defer func() { w.batch = w.batch[:0] }()

	// The writer's own context is already cancelled during the final flush
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", w.config.Table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, stat := range w.batch {
		if err := batch.Append(statsRow(stat)...); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	w.logger.Printf("[clickhouse] flushed %d telemetry samples", len(w.batch))
	return nil
}

// Write queues a sample for writing
func (w *Writer) Write(stat models.SessionStats) {
	select {
	case <-w.ctx.Done():
	case w.batchChan <- stat:
	default:
		w.logger.Println("[clickhouse] warning: batch channel full, dropping sample")
	}
}

// Close flushes pending samples and closes the ClickHouse connection. It
// must follow Start.
func (w *Writer) Close() error {
	w.cancel()
	<-w.done
	w.flushTimer.Stop()

	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}
