package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"can-session-logger/internal/api"
	"can-session-logger/internal/can"
	"can-session-logger/internal/config"
	"can-session-logger/internal/database"
	"can-session-logger/internal/database/clickhouse"
	"can-session-logger/internal/database/influxdb"
	"can-session-logger/internal/logging"
	"can-session-logger/internal/report"
	"can-session-logger/internal/session"

	"golang.org/x/sync/errgroup"
)

func main() {
	// Command line flags
	envFile := flag.String("env", ".env", "Path to .env or .yaml configuration file")
	startLogging := flag.Bool("log", false, "Start logging received frames immediately")
	startPeriodic := flag.Bool("periodic", false, "Start the periodic test sender immediately")
	quiet := flag.Bool("quiet", false, "Do not print received frames")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cleanup, err := logging.Setup(cfg.DebugLog)
	if err != nil {
		log.Fatalf("Failed to open debug log %s: %v", cfg.DebugLog, err)
	}
	defer cleanup()
	logger := log.Default()

	kind := can.ParseBusKind(cfg.CANBusKind)
	logger.Printf("Starting CAN session logger...")
	logger.Printf("CAN channel: %s (%s, %d bit/s)", cfg.CANChannel, kind, cfg.CANBitrate)
	logger.Printf("Log file: %s", cfg.LogFilePath)

	display := newConsoleDisplay(os.Stdout)
	var onFrame session.DisplayFunc = display.Show
	if *quiet {
		onFrame = nil
	}

	conn := can.NewConnection(can.Options{
		ReceiveTimeout: time.Duration(cfg.ReceiveTimeoutMS) * time.Millisecond,
		Filters:        cfg.CANFilters,
		Logger:         logger,
	})
	ctrl := session.NewController(conn, session.Config{
		Channel: cfg.CANChannel,
		BusKind: kind,
		Bitrate: cfg.CANBitrate,
		LogPath: cfg.LogFilePath,
		Display: onFrame,
		Logger:  logger,
	})

	if err := ctrl.Connect(); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	if err := ctrl.StartListening(); err != nil {
		ctrl.Shutdown()
		log.Fatalf("Failed to start listening: %v", err)
	}
	fmt.Fprintln(os.Stdout, titleStyle.Render(fmt.Sprintf("Listening on %s (%s)", cfg.CANChannel, kind)))

	periodicInterval := time.Duration(cfg.PeriodicIntervalMS) * time.Millisecond
	if *startLogging {
		if _, err := ctrl.ToggleLogging(); err != nil {
			logger.Printf("Warning: failed to start logging: %v", err)
		} else {
			display.Status("Logging to %s", cfg.LogFilePath)
		}
	}
	if *startPeriodic {
		if _, err := ctrl.TogglePeriodicSend(periodicInterval); err != nil {
			logger.Printf("Warning: failed to start periodic send: %v", err)
		} else {
			display.Status("Sending test frames every %v", periodicInterval)
		}
	}

	// Telemetry sink
	sink, err := newTelemetrySink(cfg, logger)
	if err != nil {
		logger.Printf("Warning: telemetry disabled: %v", err)
	}

	statsInterface := ""
	if kind == can.BusSocketCAN {
		statsInterface = cfg.CANChannel
	}
	statsCollector := can.NewStatsCollector(statsInterface, time.Duration(cfg.StatsInterval)*time.Second, ctrl.SessionStats, logger)

	server := api.NewServer(api.ServerConfig{
		Port:             cfg.APIPort,
		DefaultTopN:      cfg.FrequencyTopN,
		PeriodicInterval: periodicInterval,
		Logger:           logger,
	}, ctrl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	// Statistics collection loop
	statsCollector.Start()
	g.Go(func() error {
		for stat := range statsCollector.GetStatsChannel() {
			if sink != nil {
				sink.Write(stat)
			}
			logger.Printf("Session %s: received=%d sent=%d logged=%d send_failures=%d",
				stat.SessionID, stat.FramesReceived, stat.FramesSent, stat.FramesLogged, stat.SendFailures)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		statsCollector.Stop()
		return nil
	})

	logger.Printf("Session started. HTTP API available at: http://localhost:%d/", cfg.APIPort)
	logger.Println("Press Ctrl+C to stop")

	if err := g.Wait(); err != nil {
		logger.Printf("Error: %v", err)
	}
	logger.Println("Shutting down...")

	// Final analysis of whatever this session logged
	if analysis, err := ctrl.RunAnalysis(cfg.FrequencyTopN); err != nil {
		logger.Printf("Analysis failed: %v", err)
	} else {
		report.WriteSummary(os.Stdout, cfg.LogFilePath, analysis.Summary)
	}

	status := ctrl.Snapshot()
	ctrl.Shutdown()

	if sink != nil {
		if err := sink.Close(); err != nil {
			logger.Printf("Error closing telemetry sink: %v", err)
		}
	}

	logger.Printf("Final statistics: %d received, %d sent, %d logged, %d send failures",
		status.Received, status.Sent, status.FramesLogged, status.SendFailures)
}

// newTelemetrySink returns the configured sink, started, or nil when
// telemetry is off
func newTelemetrySink(cfg *config.Config, logger *log.Logger) (database.Writer, error) {
	var sink database.Writer

	switch cfg.TelemetrySink {
	case "clickhouse":
		logger.Printf("Telemetry: ClickHouse %s:%d/%s.%s", cfg.ClickHouseHost, cfg.ClickHousePort, cfg.ClickHouseDatabase, cfg.ClickHouseStatsTable)
		w, err := clickhouse.New(clickhouse.Config{
			Host:     cfg.ClickHouseHost,
			Port:     cfg.ClickHousePort,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Table:    cfg.ClickHouseStatsTable,
		}, cfg.BatchSize, logger)
		if err != nil {
			return nil, err
		}
		sink = w
	case "influxdb":
		logger.Printf("Telemetry: InfluxDB %s/%s", cfg.InfluxDBURL, cfg.InfluxDBDatabase)
		w, err := influxdb.New(influxdb.Config{
			URL:         cfg.InfluxDBURL,
			Token:       cfg.InfluxDBToken,
			Database:    cfg.InfluxDBDatabase,
			Measurement: cfg.InfluxDBMeasurement,
		}, cfg.BatchSize, logger)
		if err != nil {
			return nil, err
		}
		sink = w
	default:
		return nil, nil
	}

	sink.Start()
	return sink, nil
}
