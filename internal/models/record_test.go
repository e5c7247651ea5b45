package models

import (
	"slices"
	"strings"
	"testing"
)

func TestLogHeader(t *testing.T) {
	want := []string{"timestamp", "arbitration_id", "is_extended_id", "is_remote_frame", "is_error_frame", "dlc", "data"}
	if got := LogHeader(); !slices.Equal(got, want) {
		t.Errorf("LogHeader() = %v, want %v", got, want)
	}
	if NumLogFields != len(want) {
		t.Errorf("NumLogFields = %d, want %d", NumLogFields, len(want))
	}
}

func TestFrameRow(t *testing.T) {
	f := Frame{
		Timestamp:     1699999999.1234,
		ArbitrationID: 0x123,
		DLC:           8,
		Data:          []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}

	got := strings.Join(FrameRow(f), ",")
	want := "1699999999.1234,0x123,False,False,False,8,0102030405060708"
	if got != want {
		t.Errorf("FrameRow() = %q, want %q", got, want)
	}
}

func TestFrameRowFlagsAndEmptyData(t *testing.T) {
	f := Frame{Timestamp: 1, ArbitrationID: 0x1ABCDEF0, IsExtendedID: true, IsRemoteFrame: true, DLC: 0}

	got := FrameRow(f)
	if got[FieldArbitrationID] != "0x1ABCDEF0" || got[FieldIsExtendedID] != "True" || got[FieldIsRemoteFrame] != "True" {
		t.Errorf("unexpected row %v", got)
	}
	if got[FieldData] != "" {
		t.Errorf("data = %q, want empty", got[FieldData])
	}
}

func TestParseRecordRoundTrip(t *testing.T) {
	frames := []Frame{
		{Timestamp: 1699999999.1234, ArbitrationID: 0x123, DLC: 8, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{Timestamp: 1700000000.000001, ArbitrationID: 0x5, DLC: 0, Data: []byte{}},
		{Timestamp: 0.5, ArbitrationID: 0x1FFFFFFF, IsExtendedID: true, IsErrorFrame: true, DLC: 1, Data: []byte{0xAB}},
	}

	for _, f := range frames {
		rec, err := ParseRecord(FrameRow(f))
		if err != nil {
			t.Fatalf("ParseRecord(%v): %v", FrameRow(f), err)
		}
		if rec != RecordFromFrame(f) {
			t.Errorf("round trip = %+v, want %+v", rec, RecordFromFrame(f))
		}
		if !slices.Equal(rec.Fields(), FrameRow(f)) {
			t.Errorf("Fields() = %v, want %v", rec.Fields(), FrameRow(f))
		}

		back, err := rec.Frame()
		if err != nil {
			t.Fatalf("Frame(): %v", err)
		}
		if back.ArbitrationID != f.ArbitrationID || back.Timestamp != f.Timestamp || back.DataHex() != f.DataHex() {
			t.Errorf("Frame() = %+v, want %+v", back, f)
		}
	}
}

func TestParseRecordNormalisesInput(t *testing.T) {
	rec, err := ParseRecord([]string{"1.5", "0x00a", "true", "0", "FALSE", "2", "ABCD"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ArbitrationID != "0xA" {
		t.Errorf("id = %q, want 0xA", rec.ArbitrationID)
	}
	if !rec.IsExtendedID || rec.IsRemoteFrame || rec.IsErrorFrame {
		t.Errorf("flags = %v %v %v", rec.IsExtendedID, rec.IsRemoteFrame, rec.IsErrorFrame)
	}
	if rec.Data != "abcd" {
		t.Errorf("data = %q, want abcd", rec.Data)
	}
}

func TestParseRecordErrors(t *testing.T) {
	valid := []string{"1.0", "0x100", "False", "False", "False", "1", "01"}
	with := func(f Field, v string) []string {
		row := slices.Clone(valid)
		row[f] = v
		return row
	}

	tests := []struct {
		name string
		row  []string
	}{
		{name: "too few columns", row: valid[:6]},
		{name: "too many columns", row: append(slices.Clone(valid), "x")},
		{name: "timestamp", row: with(FieldTimestamp, "now")},
		{name: "id without 0x", row: with(FieldArbitrationID, "256")},
		{name: "id not hex", row: with(FieldArbitrationID, "0xGG")},
		{name: "boolean", row: with(FieldIsExtendedID, "yes")},
		{name: "standard id above 11 bits", row: with(FieldArbitrationID, "0x800")},
		{name: "dlc not numeric", row: with(FieldDLC, "one")},
		{name: "dlc too large", row: with(FieldDLC, "9")},
		{name: "data not hex", row: with(FieldData, "zz")},
		{name: "data shorter than dlc", row: with(FieldDLC, "2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRecord(tt.row); err == nil {
				t.Errorf("ParseRecord(%v) succeeded", tt.row)
			}
		})
	}
}

func TestParseRecordRemoteFrameWithoutData(t *testing.T) {
	rec, err := ParseRecord([]string{"1.0", "0x100", "False", "True", "False", "4", ""})
	if err != nil {
		t.Fatalf("remote frame rejected: %v", err)
	}
	if rec.DLC != 4 || rec.Data != "" {
		t.Errorf("rec = %+v", rec)
	}
}

func TestFieldString(t *testing.T) {
	if FieldDLC.String() != "dlc" {
		t.Errorf("FieldDLC = %q", FieldDLC.String())
	}
	if got := Field(42).String(); got != "field(42)" {
		t.Errorf("out of range field = %q", got)
	}
}
