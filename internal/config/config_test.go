package config

import (
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("LoadConfig = %+v, want defaults", cfg)
	}
}

func TestLoadEnv(t *testing.T) {
	path := writeFile(t, ".env", `
# CAN bus
CAN_CHANNEL=vcan0
CAN_BUS_KIND=socketcan
CAN_BITRATE=250000
CAN_FILTERS=0x100, 200,0x7FF
LOG_FILE_PATH="/tmp/session.csv"
PERIODIC_INTERVAL_MS=50
TELEMETRY_SINK=InfluxDB
INFLUXDB_TOKEN='secret'
API_PORT=9090
not a key value line
UNKNOWN_KEY=ignored
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.CANChannel != "vcan0" || cfg.CANBusKind != "socketcan" || cfg.CANBitrate != 250000 {
		t.Errorf("CAN settings = %s/%s/%d", cfg.CANChannel, cfg.CANBusKind, cfg.CANBitrate)
	}
	if want := []uint32{0x100, 0x200, 0x7FF}; !slices.Equal(cfg.CANFilters, want) {
		t.Errorf("CANFilters = %#v, want %#v", cfg.CANFilters, want)
	}
	if cfg.LogFilePath != "/tmp/session.csv" || cfg.InfluxDBToken != "secret" {
		t.Errorf("quotes not stripped: %q %q", cfg.LogFilePath, cfg.InfluxDBToken)
	}
	if cfg.PeriodicIntervalMS != 50 || cfg.APIPort != 9090 {
		t.Errorf("interval/port = %d/%d", cfg.PeriodicIntervalMS, cfg.APIPort)
	}
	if cfg.TelemetrySink != "influxdb" {
		t.Errorf("TelemetrySink = %q", cfg.TelemetrySink)
	}
	// untouched keys keep their defaults
	if cfg.ReceiveTimeoutMS != 1000 || cfg.FrequencyTopN != 10 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadEnvAliases(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, ".env", "CAN_INTERFACE=can1\nCAN_BUSTYPE=virtual\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CANChannel != "can1" || cfg.CANBusKind != "virtual" {
		t.Errorf("aliases not applied: %s/%s", cfg.CANChannel, cfg.CANBusKind)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
can_channel: vcan1
can_bitrate: 125000
can_filters: [0x100, 0x1ABCDEF0]
frequency_top_n: 3
telemetry_sink: clickhouse
clickhouse_port: 9440
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CANChannel != "vcan1" || cfg.CANBitrate != 125000 || cfg.FrequencyTopN != 3 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if want := []uint32{0x100, 0x1ABCDEF0}; !slices.Equal(cfg.CANFilters, want) {
		t.Errorf("CANFilters = %#v, want %#v", cfg.CANFilters, want)
	}
	if cfg.TelemetrySink != "clickhouse" || cfg.ClickHousePort != 9440 {
		t.Errorf("telemetry = %s:%d", cfg.TelemetrySink, cfg.ClickHousePort)
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "config.yml", ""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CANChannel != Default().CANChannel {
		t.Errorf("CANChannel = %q", cfg.CANChannel)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := map[string]string{
		"non-numeric bitrate": "CAN_BITRATE=fast\n",
		"bad filter":          "CAN_FILTERS=0x100,xyz\n",
		"empty log path":      "LOG_FILE_PATH=\n",
		"zero interval":       "PERIODIC_INTERVAL_MS=0\n",
		"negative timeout":    "CAN_RECEIVE_TIMEOUT_MS=-5\n",
		"unknown sink":        "TELEMETRY_SINK=kafka\n",
		"zero stats interval": "STATS_INTERVAL=0\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeFile(t, ".env", content)); err == nil {
				t.Errorf("LoadConfig accepted %q", content)
			}
		})
	}
}
