package analyzer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"can-session-logger/internal/models"

	"github.com/shopspring/decimal"
)

// SummaryTopN is the number of ids listed in Summary.MostCommonIDs
const SummaryTopN = 5

// ParseError reports a malformed line in a frame log. Line is 1-based and
// counts the header.
type ParseError struct {
	Path   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed log %s line %d: %s", e.Path, e.Line, e.Reason)
}

// LoadedLog is an in-memory copy of a frame log. Rows keep file order.
type LoadedLog struct {
	Path string
	Rows []models.LogRecord
}

// Len returns the number of rows
func (l *LoadedLog) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Rows)
}

// Empty reports whether the log has no rows
func (l *LoadedLog) Empty() bool {
	return l.Len() == 0
}

// IDCount is one entry of a frequency table
type IDCount struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// Summary describes a non-empty log
type Summary struct {
	TotalMessages   int       `json:"total_messages"`
	UniqueCANIDs    int       `json:"unique_can_ids"`
	MostCommonIDs   []IDCount `json:"most_common_ids"`
	StartTime       float64   `json:"start_time"`
	EndTime         float64   `json:"end_time"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Load reads the log at path. A missing file, a zero-length file and a
// header-only file all give an empty log. The first malformed row aborts
// the load with a *ParseError. The file is closed before Load returns.
func Load(path string) (*LoadedLog, error) {
	loaded := &LoadedLog{Path: path, Rows: []models.LogRecord{}}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return loaded, nil
		}
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err == io.EOF {
		return loaded, nil
	}
	if err != nil {
		return nil, parseErrorFrom(path, 1, err)
	}
	if !slices.Equal(header, models.LogHeader()) {
		return nil, &ParseError{Path: path, Line: 1, Reason: fmt.Sprintf("unexpected header %v", header)}
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseErrorFrom(path, len(loaded.Rows)+2, err)
		}

		line, _ := r.FieldPos(0)
		rec, err := models.ParseRecord(row)
		if err != nil {
			return nil, &ParseError{Path: path, Line: line, Reason: err.Error()}
		}
		loaded.Rows = append(loaded.Rows, rec)
	}

	return loaded, nil
}

func parseErrorFrom(path string, line int, err error) *ParseError {
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return &ParseError{Path: path, Line: csvErr.Line, Reason: csvErr.Err.Error()}
	}
	return &ParseError{Path: path, Line: line, Reason: err.Error()}
}

// Summarize computes the summary of log, or nil when log is empty
func Summarize(log *LoadedLog) *Summary {
	if log.Empty() {
		return nil
	}

	start, end := log.Rows[0].Timestamp, log.Rows[0].Timestamp
	for _, row := range log.Rows[1:] {
		start = min(start, row.Timestamp)
		end = max(end, row.Timestamp)
	}

	counts := countIDs(log)
	duration := decimal.NewFromFloat(end).Sub(decimal.NewFromFloat(start))

	return &Summary{
		TotalMessages:   len(log.Rows),
		UniqueCANIDs:    len(counts),
		MostCommonIDs:   truncate(counts, SummaryTopN),
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: duration.InexactFloat64(),
	}
}

// FilterByID returns the rows whose id renders exactly as id, in file order
func FilterByID(log *LoadedLog, id uint32) []models.LogRecord {
	want := models.FormatID(id)
	matched := []models.LogRecord{}
	if log == nil {
		return matched
	}
	for _, row := range log.Rows {
		if row.ArbitrationID == want {
			matched = append(matched, row)
		}
	}
	return matched
}

// FrequencyTable returns up to topN ids ordered by descending count; equal
// counts keep the order in which the ids first appear in the log.
func FrequencyTable(log *LoadedLog, topN int) []IDCount {
	if log.Empty() || topN <= 0 {
		return []IDCount{}
	}
	return truncate(countIDs(log), topN)
}

// countIDs returns every id with its count, sorted by count, ties in first-seen order
func countIDs(log *LoadedLog) []IDCount {
	index := make(map[string]int)
	counts := []IDCount{}

	for _, row := range log.Rows {
		i, ok := index[row.ArbitrationID]
		if !ok {
			i = len(counts)
			index[row.ArbitrationID] = i
			counts = append(counts, IDCount{ID: row.ArbitrationID})
		}
		counts[i].Count++
	}

	sort.SliceStable(counts, func(a, b int) bool {
		return counts[a].Count > counts[b].Count
	})
	return counts
}

func truncate(counts []IDCount, n int) []IDCount {
	if len(counts) > n {
		counts = counts[:n]
	}
	return slices.Clone(counts)
}
