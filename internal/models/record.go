package models

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Field identifies one column of the frame log. The set is closed and
// the order of LogFields is the order columns appear on disk.
type Field int

const (
	FieldTimestamp Field = iota
	FieldArbitrationID
	FieldIsExtendedID
	FieldIsRemoteFrame
	FieldIsErrorFrame
	FieldDLC
	FieldData

	fieldCount
)

// LogFields lists every column in file order.
var LogFields = [fieldCount]Field{
	FieldTimestamp,
	FieldArbitrationID,
	FieldIsExtendedID,
	FieldIsRemoteFrame,
	FieldIsErrorFrame,
	FieldDLC,
	FieldData,
}

var fieldNames = [fieldCount]string{
	FieldTimestamp:     "timestamp",
	FieldArbitrationID: "arbitration_id",
	FieldIsExtendedID:  "is_extended_id",
	FieldIsRemoteFrame: "is_remote_frame",
	FieldIsErrorFrame:  "is_error_frame",
	FieldDLC:           "dlc",
	FieldData:          "data",
}

var fieldAccessors = [fieldCount]func(Frame) string{
	FieldTimestamp:     func(f Frame) string { return FormatTimestamp(f.Timestamp) },
	FieldArbitrationID: func(f Frame) string { return f.IDHex() },
	FieldIsExtendedID:  func(f Frame) string { return FormatBool(f.IsExtendedID) },
	FieldIsRemoteFrame: func(f Frame) string { return FormatBool(f.IsRemoteFrame) },
	FieldIsErrorFrame:  func(f Frame) string { return FormatBool(f.IsErrorFrame) },
	FieldDLC:           func(f Frame) string { return strconv.Itoa(int(f.DLC)) },
	FieldData:          func(f Frame) string { return f.DataHex() },
}

// NumLogFields is the column count of every log row.
const NumLogFields = int(fieldCount)

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Render returns the textual form of this field for frame.
func (f Field) Render(frame Frame) string {
	return fieldAccessors[f](frame)
}

// LogHeader returns the header row.
func LogHeader() []string {
	header := make([]string, 0, fieldCount)
	for _, f := range LogFields {
		header = append(header, f.String())
	}
	return header
}

// LogRecord is one persisted frame with each column already parsed.
type LogRecord struct {
	Timestamp     float64
	ArbitrationID string // as rendered on disk, e.g. "0x123"
	IsExtendedID  bool
	IsRemoteFrame bool
	IsErrorFrame  bool
	DLC           uint8
	Data          string // lowercase hex
}

// RecordFromFrame projects a frame onto its log row.
func RecordFromFrame(f Frame) LogRecord {
	return LogRecord{
		Timestamp:     f.Timestamp,
		ArbitrationID: f.IDHex(),
		IsExtendedID:  f.IsExtendedID,
		IsRemoteFrame: f.IsRemoteFrame,
		IsErrorFrame:  f.IsErrorFrame,
		DLC:           f.DLC,
		Data:          f.DataHex(),
	}
}

// FrameRow renders a frame as a row of strings in LogFields order.
func FrameRow(f Frame) []string {
	row := make([]string, 0, fieldCount)
	for _, field := range LogFields {
		row = append(row, field.Render(f))
	}
	return row
}

// ParseRecord parses one data row. The row must have exactly NumLogFields columns.
func ParseRecord(row []string) (LogRecord, error) {
	if len(row) != NumLogFields {
		return LogRecord{}, fmt.Errorf("expected %d columns, got %d", NumLogFields, len(row))
	}

	var (
		rec LogRecord
		err error
	)

	rec.Timestamp, err = strconv.ParseFloat(row[FieldTimestamp], 64)
	if err != nil {
		return LogRecord{}, fmt.Errorf("invalid timestamp %q", row[FieldTimestamp])
	}

	id, err := ParseID(row[FieldArbitrationID])
	if err != nil || !strings.HasPrefix(strings.ToLower(row[FieldArbitrationID]), "0x") {
		return LogRecord{}, fmt.Errorf("invalid arbitration_id %q", row[FieldArbitrationID])
	}
	rec.ArbitrationID = FormatID(id)

	if rec.IsExtendedID, err = parseBool(row[FieldIsExtendedID]); err != nil {
		return LogRecord{}, fmt.Errorf("invalid is_extended_id: %w", err)
	}
	if !rec.IsExtendedID && id > MaxStandardID {
		return LogRecord{}, fmt.Errorf("arbitration_id %s exceeds 11 bits for a standard frame", rec.ArbitrationID)
	}
	if rec.IsRemoteFrame, err = parseBool(row[FieldIsRemoteFrame]); err != nil {
		return LogRecord{}, fmt.Errorf("invalid is_remote_frame: %w", err)
	}
	if rec.IsErrorFrame, err = parseBool(row[FieldIsErrorFrame]); err != nil {
		return LogRecord{}, fmt.Errorf("invalid is_error_frame: %w", err)
	}

	dlc, err := strconv.Atoi(row[FieldDLC])
	if err != nil {
		return LogRecord{}, fmt.Errorf("non-numeric dlc %q", row[FieldDLC])
	}
	if dlc < 0 || dlc > MaxDataLength {
		return LogRecord{}, fmt.Errorf("dlc %d out of range 0-%d", dlc, MaxDataLength)
	}
	rec.DLC = uint8(dlc)

	data := strings.ToLower(row[FieldData])
	if _, err := hex.DecodeString(data); err != nil {
		return LogRecord{}, fmt.Errorf("invalid data hex %q", row[FieldData])
	}
	if len(data) != 2*dlc && !(rec.IsRemoteFrame && data == "") {
		return LogRecord{}, fmt.Errorf("data %q does not match dlc %d", row[FieldData], dlc)
	}
	rec.Data = data

	return rec, nil
}

// Fields renders the record back into its row form.
func (r LogRecord) Fields() []string {
	return []string{
		FormatTimestamp(r.Timestamp),
		r.ArbitrationID,
		FormatBool(r.IsExtendedID),
		FormatBool(r.IsRemoteFrame),
		FormatBool(r.IsErrorFrame),
		strconv.Itoa(int(r.DLC)),
		r.Data,
	}
}

// Frame re-derives the frame this record was written from.
func (r LogRecord) Frame() (Frame, error) {
	id, err := ParseID(r.ArbitrationID)
	if err != nil {
		return Frame{}, err
	}
	data, err := hex.DecodeString(r.Data)
	if err != nil {
		return Frame{}, fmt.Errorf("invalid data hex %q: %w", r.Data, err)
	}

	return Frame{
		Timestamp:     r.Timestamp,
		ArbitrationID: id,
		IsExtendedID:  r.IsExtendedID,
		IsRemoteFrame: r.IsRemoteFrame,
		IsErrorFrame:  r.IsErrorFrame,
		DLC:           r.DLC,
		Data:          data,
	}, nil
}

// Response converts the record into its API form.
func (r LogRecord) Response() CANMessageResponse {
	id, _ := ParseID(r.ArbitrationID)
	return CANMessageResponse{
		Timestamp:     r.Timestamp,
		CANID:         id,
		CANIDHex:      r.ArbitrationID,
		IsExtendedID:  r.IsExtendedID,
		IsRemoteFrame: r.IsRemoteFrame,
		IsErrorFrame:  r.IsErrorFrame,
		DLC:           r.DLC,
		DataHex:       r.Data,
	}
}

// FormatTimestamp uses the shortest decimal form that parses back to the same float64.
func FormatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}

// FormatBool renders booleans as True/False.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseBool(s string) (bool, error) {
	switch s {
	case "True", "true", "TRUE", "1":
		return true, nil
	case "False", "false", "FALSE", "0":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", s)
}
