package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"can-session-logger/internal/analyzer"
	"can-session-logger/internal/config"
	"can-session-logger/internal/models"
	"can-session-logger/internal/report"
	"can-session-logger/internal/session"
)

func main() {
	// Command line flags
	envFile := flag.String("env", ".env", "Path to .env or .yaml configuration file")
	file := flag.String("file", "", "Log file to analyse (default LOG_FILE_PATH)")
	idFlag := flag.String("id", "", "Only list frames with this CAN id (0x-prefixed hex or decimal)")
	topN := flag.Int("top", 0, "Number of ids in the frequency chart (default FREQUENCY_TOP_N)")
	width := flag.Int("width", report.DefaultBarWidth, "Width of the longest frequency bar")
	flag.Parse()

	log.SetFlags(0)

	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	path := *file
	if path == "" {
		path = cfg.LogFilePath
	}
	n := *topN
	if n == 0 {
		n = cfg.FrequencyTopN
	}

	loaded, err := analyzer.Load(path)
	if err != nil {
		var parseErr *analyzer.ParseError
		if errors.As(err, &parseErr) {
			log.Fatalf("Log is malformed at line %d: %s", parseErr.Line, parseErr.Reason)
		}
		log.Fatalf("Failed to load %s: %v", path, err)
	}

	report.WriteSummary(os.Stdout, path, analyzer.Summarize(loaded))
	fmt.Println()

	if *idFlag != "" {
		id, err := models.ParseID(*idFlag)
		if err != nil {
			log.Fatalf("Invalid -id: %v", err)
		}
		if err := writeMessages(analyzer.FilterByID(loaded, id), models.FormatID(id)); err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println()
	}

	report.WriteFrequency(os.Stdout, analyzer.FrequencyTable(loaded, n), *width)
}

// writeMessages lists the rows of one id in display format
func writeMessages(rows []models.LogRecord, id string) error {
	fmt.Printf("%d messages with ID %s\n", len(rows), id)
	for _, row := range rows {
		frame, err := row.Frame()
		if err != nil {
			return fmt.Errorf("failed to decode row %s at %s: %w", row.ArbitrationID, models.FormatTimestamp(row.Timestamp), err)
		}
		fmt.Println(session.FormatFrame(frame))
	}
	return nil
}
