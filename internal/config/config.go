package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Config holds all application configuration
type Config struct {
	// CAN Interface
	CANChannel       string
	CANBusKind       string
	CANBitrate       int
	CANFilters       []uint32
	ReceiveTimeoutMS int

	// Session
	LogFilePath        string
	PeriodicIntervalMS int
	FrequencyTopN      int

	// Telemetry
	StatsInterval int
	TelemetrySink string // none, clickhouse or influxdb

	// ClickHouse
	ClickHouseHost       string
	ClickHousePort       int
	ClickHouseDatabase   string
	ClickHouseUsername   string
	ClickHousePassword   string
	ClickHouseStatsTable string

	// InfluxDB
	InfluxDBURL         string
	InfluxDBToken       string
	InfluxDBDatabase    string
	InfluxDBMeasurement string

	// General
	BatchSize int
	APIPort   int
	DebugLog  string
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		CANChannel:           "my_virtual_can",
		CANBusKind:           "virtual",
		CANBitrate:           500000,
		ReceiveTimeoutMS:     1000,
		LogFilePath:          "can_log.csv",
		PeriodicIntervalMS:   100,
		FrequencyTopN:        10,
		StatsInterval:        10,
		TelemetrySink:        "none",
		ClickHouseHost:       "localhost",
		ClickHousePort:       9000,
		ClickHouseDatabase:   "default",
		ClickHouseUsername:   "default",
		ClickHousePassword:   "",
		ClickHouseStatsTable: "can_session_stats",
		InfluxDBURL:          "http://localhost:8181",
		InfluxDBToken:        "",
		InfluxDBDatabase:     "can_sessions",
		InfluxDBMeasurement:  "can_session_stats",
		BatchSize:            100,
		APIPort:              8080,
	}
}

// LoadConfig loads configuration from a .env file, or from YAML when the
// file name ends in .yaml or .yml. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path == "" {
		path = ".env"
	}

	file, err := os.Open(path)
	if err != nil {
		// If the file doesn't exist, return default config
		if os.IsNotExist(err) {
			fmt.Printf("No configuration file found at %s, using default configuration\n", path)
			return config, nil
		}
		return nil, fmt.Errorf("error opening config file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = loadYAML(file, config)
	default:
		err = loadEnv(file, config)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadEnv(file *os.File, config *Config) error {
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		value = strings.Trim(value, `"'`)

		if err := config.set(key, value); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	return scanner.Err()
}

// loadYAML accepts the same keys as the .env form, in any case:
//
//	can_channel: vcan0
//	can_filters: [0x100, 0x200]
func loadYAML(file *os.File, config *Config) error {
	values := map[string]any{}
	if err := yaml.NewDecoder(file).Decode(&values); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	for key, raw := range values {
		key = strings.ToUpper(key)
		// YAML decodes 0x100 as an integer; ids go back to hex for parseFilters
		hexInts := key == "CAN_FILTERS"

		var value string
		switch v := raw.(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, yamlScalar(item, hexInts))
			}
			value = strings.Join(parts, ",")
		default:
			value = yamlScalar(v, hexInts)
		}

		if err := config.set(key, value); err != nil {
			return err
		}
	}
	return nil
}

func yamlScalar(v any, hexInts bool) string {
	switch n := v.(type) {
	case int:
		if hexInts {
			return fmt.Sprintf("0x%X", n)
		}
		return strconv.Itoa(n)
	case nil:
		return ""
	default:
		return fmt.Sprint(n)
	}
}

func (c *Config) set(key, value string) error {
	var err error

	switch key {
	case "CAN_CHANNEL", "CAN_INTERFACE":
		c.CANChannel = value
	case "CAN_BUS_KIND", "CAN_BUSTYPE":
		c.CANBusKind = value
	case "CAN_BITRATE":
		c.CANBitrate, err = strconv.Atoi(value)
	case "CAN_FILTERS":
		c.CANFilters, err = parseFilters(value)
	case "CAN_RECEIVE_TIMEOUT_MS":
		c.ReceiveTimeoutMS, err = strconv.Atoi(value)
	case "LOG_FILE_PATH":
		c.LogFilePath = value
	case "PERIODIC_INTERVAL_MS":
		c.PeriodicIntervalMS, err = strconv.Atoi(value)
	case "FREQUENCY_TOP_N":
		c.FrequencyTopN, err = strconv.Atoi(value)
	case "STATS_INTERVAL":
		c.StatsInterval, err = strconv.Atoi(value)
	case "TELEMETRY_SINK":
		c.TelemetrySink = strings.ToLower(value)
	case "CLICKHOUSE_HOST":
		c.ClickHouseHost = value
	case "CLICKHOUSE_PORT":
		c.ClickHousePort, err = strconv.Atoi(value)
	case "CLICKHOUSE_DATABASE":
		c.ClickHouseDatabase = value
	case "CLICKHOUSE_USERNAME":
		c.ClickHouseUsername = value
	case "CLICKHOUSE_PASSWORD":
		c.ClickHousePassword = value
	case "CLICKHOUSE_STATS_TABLE":
		c.ClickHouseStatsTable = value
	case "INFLUXDB_URL":
		c.InfluxDBURL = value
	case "INFLUXDB_TOKEN":
		c.InfluxDBToken = value
	case "INFLUXDB_DATABASE":
		c.InfluxDBDatabase = value
	case "INFLUXDB_MEASUREMENT":
		c.InfluxDBMeasurement = value
	case "BATCH_SIZE":
		c.BatchSize, err = strconv.Atoi(value)
	case "API_PORT":
		c.APIPort, err = strconv.Atoi(value)
	case "DEBUG_LOG":
		c.DebugLog = value
	}

	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	return nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if c.LogFilePath == "" {
		return fmt.Errorf("LOG_FILE_PATH must not be empty")
	}
	if c.PeriodicIntervalMS <= 0 {
		return fmt.Errorf("PERIODIC_INTERVAL_MS must be positive, got %d", c.PeriodicIntervalMS)
	}
	if c.ReceiveTimeoutMS <= 0 {
		return fmt.Errorf("CAN_RECEIVE_TIMEOUT_MS must be positive, got %d", c.ReceiveTimeoutMS)
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("STATS_INTERVAL must be positive, got %d", c.StatsInterval)
	}
	switch c.TelemetrySink {
	case "", "none", "clickhouse", "influxdb":
	default:
		return fmt.Errorf("unknown TELEMETRY_SINK %q (want none, clickhouse or influxdb)", c.TelemetrySink)
	}
	return nil
}

// parseFilters parses comma-separated CAN IDs given in hex, with or without 0x
func parseFilters(filterStr string) ([]uint32, error) {
	if filterStr == "" {
		return nil, nil
	}

	parts := strings.Split(filterStr, ",")
	filters := make([]uint32, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		hexPart := strings.TrimPrefix(strings.TrimPrefix(part, "0x"), "0X")
		id, err := strconv.ParseUint(hexPart, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid CAN id %q", part)
		}

		filters = append(filters, uint32(id))
	}

	return filters, nil
}
