package can

import (
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"can-session-logger/internal/models"

	"github.com/vishvananda/netlink"
)

// SnapshotFunc returns the current session counters
type SnapshotFunc func() models.SessionStats

// StatsCollector periodically samples session counters and, for SocketCAN
// sessions, the interface statistics of the bound interface.
type StatsCollector struct {
	interfaceName string
	interval      time.Duration
	snapshot      SnapshotFunc
	logger        *log.Logger
	statsChan     chan models.SessionStats
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewStatsCollector creates a new statistics collector. interfaceName may be
// empty, in which case only session counters are sampled.
func NewStatsCollector(interfaceName string, interval time.Duration, snapshot SnapshotFunc, logger *log.Logger) *StatsCollector {
	if logger == nil {
		logger = log.Default()
	}
	return &StatsCollector{
		interfaceName: interfaceName,
		interval:      interval,
		snapshot:      snapshot,
		logger:        logger,
		statsChan:     make(chan models.SessionStats, 10),
		stopChan:      make(chan struct{}),
	}
}

// Start begins collecting statistics
func (sc *StatsCollector) Start() {
	go sc.collectLoop()
}

// Stop stops the collector; the stats channel is closed once the loop exits
func (sc *StatsCollector) Stop() {
	sc.stopOnce.Do(func() { close(sc.stopChan) })
}

// GetStatsChannel returns the channel for receiving statistics
func (sc *StatsCollector) GetStatsChannel() <-chan models.SessionStats {
	return sc.statsChan
}

func (sc *StatsCollector) collectLoop() {
	defer close(sc.statsChan)

	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	// Collect immediately on start
	sc.collect()

	for {
		select {
		case <-ticker.C:
			sc.collect()
		case <-sc.stopChan:
			return
		}
	}
}

func (sc *StatsCollector) collect() {
	stats := sc.snapshot()
	stats.Timestamp = time.Now().UTC()

	if sc.interfaceName != "" {
		iface, err := readInterfaceStats(sc.interfaceName)
		if err != nil {
			sc.logger.Printf("[stats] failed to collect interface stats for %s: %v", sc.interfaceName, err)
		} else {
			stats.Interface = iface
		}
	}

	select {
	case sc.statsChan <- stats:
	default:
		sc.logger.Println("[stats] warning: stats channel full, dropping statistics")
	}
}

// readInterfaceStats reads generic counters over netlink and the CAN
// controller details from iproute2.
func readInterfaceStats(name string) (models.InterfaceStats, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return models.InterfaceStats{}, fmt.Errorf("failed to find interface: %w", err)
	}

	attrs := link.Attrs()
	stats := models.InterfaceStats{
		State:       strings.ToUpper(attrs.OperState.String()),
		MTU:         attrs.MTU,
		QueueLength: attrs.TxQLen,
	}
	if s := attrs.Statistics; s != nil {
		stats.RXPackets = s.RxPackets
		stats.RXBytes = s.RxBytes
		stats.RXErrors = s.RxErrors
		stats.RXDropped = s.RxDropped
		stats.TXPackets = s.TxPackets
		stats.TXBytes = s.TxBytes
		stats.TXErrors = s.TxErrors
		stats.TXDropped = s.TxDropped
	}

	output, err := exec.Command("ip", "-details", "-statistics", "link", "show", name).CombinedOutput()
	if err != nil {
		// netlink counters are still useful without the CAN details
		return stats, nil
	}
	mergeIPOutput(&stats, string(output))
	return stats, nil
}

var (
	reBitrate     = regexp.MustCompile(`bitrate (\d+)`)
	reSamplePoint = regexp.MustCompile(`sample-point ([\d.]+)`)
	reBusState    = regexp.MustCompile(`can (?:<[^>]*> )?state ([A-Z-]+)`)
	reBerr        = regexp.MustCompile(`berr-counter tx (\d+) rx (\d+)`)
	reRestartMS   = regexp.MustCompile(`restart-ms (\d+)`)
)

// mergeIPOutput fills the CAN specific fields from 'ip -details -statistics link show'
func mergeIPOutput(stats *models.InterfaceStats, output string) {
	lines := strings.Split(output, "\n")

	for i, line := range lines {
		line = strings.TrimSpace(line)

		if m := reBitrate.FindStringSubmatch(line); len(m) > 1 {
			stats.Bitrate, _ = strconv.Atoi(m[1])
			if sp := reSamplePoint.FindStringSubmatch(line); len(sp) > 1 {
				samplePoint, _ := strconv.ParseFloat(sp[1], 64)
				stats.SamplePoint = fmt.Sprintf("%.1f%%", samplePoint*100)
			}
		}

		// Example: "can <LOOPBACK> state ERROR-ACTIVE (berr-counter tx 0 rx 0) restart-ms 0"
		if strings.HasPrefix(line, "can ") {
			if m := reBusState.FindStringSubmatch(line); len(m) > 1 {
				stats.BusState = m[1]
			}
			if m := reBerr.FindStringSubmatch(line); len(m) > 2 {
				stats.TXErrorCounter, _ = strconv.Atoi(m[1])
				stats.RXErrorCounter, _ = strconv.Atoi(m[2])
			}
			if m := reRestartMS.FindStringSubmatch(line); len(m) > 1 {
				stats.RestartMS, _ = strconv.Atoi(m[1])
			}
			if strings.Contains(line, "LOOPBACK") {
				stats.ControllerMode = "LOOPBACK"
			} else if strings.Contains(line, "LISTEN-ONLY") {
				stats.ControllerMode = "LISTEN-ONLY"
			}
		}

		// Example: "re-started bus-errors arbit-lost error-warn error-pass bus-off"
		// Next line: "0          0          0          0          0          0"
		if strings.HasPrefix(line, "re-started") && i+1 < len(lines) {
			values := strings.Fields(lines[i+1])
			if len(values) >= 6 {
				stats.BusOffRestarts, _ = strconv.ParseUint(values[0], 10, 64)
				stats.ArbitrationLost, _ = strconv.ParseUint(values[2], 10, 64)
				stats.ErrorWarning, _ = strconv.ParseUint(values[3], 10, 64)
				stats.ErrorPassive, _ = strconv.ParseUint(values[4], 10, 64)
				stats.BusOff, _ = strconv.ParseUint(values[5], 10, 64)
			}
		}
	}
}
