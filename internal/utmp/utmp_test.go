package utmp

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// makeRecord encodes one on-disk utmp record with the given fields.
func makeRecord(t *testing.T, typ int16, pid int32, user, line, host string, sec int32) []byte {
	t.Helper()
	raw := rawRecord{
		Type:  typ,
		PID:   pid,
		TVSec: sec,
	}
	copy(raw.User[:], user)
	copy(raw.Line[:], line)
	copy(raw.Host[:], host)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &raw); err != nil {
		t.Fatalf("encode record: %v", err)
	}
	if buf.Len() != recordSize {
		t.Fatalf("encoded record is %d bytes, want %d", buf.Len(), recordSize)
	}
	return buf.Bytes()
}

func TestParseKeepsOnlyUserProcesses(t *testing.T) {
	var store bytes.Buffer
	store.Write(makeRecord(t, typeBootTime, 0, "reboot", "~", "", 100))
	store.Write(makeRecord(t, typeUserProcess, 1234, "alice", ":0", "", 200))
	store.Write(makeRecord(t, typeDeadProcess, 999, "", "pts/3", "", 300))
	store.Write(makeRecord(t, typeUserProcess, 5678, "bob", "pts/1", "example.com", 400))
	store.Write(makeRecord(t, typeRunLevel, 0, "runlevel", "~", "", 500))

	records, err := Parse(&store)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Parse() returned %d records, want 2", len(records))
	}

	if records[0].PID != 1234 || records[0].User != "alice" || records[0].Line != ":0" || records[0].Host != "" {
		t.Errorf("records[0] = %+v, want alice on :0", records[0])
	}
	if records[1].PID != 5678 || records[1].User != "bob" || records[1].Host != "example.com" {
		t.Errorf("records[1] = %+v, want bob @ example.com", records[1])
	}
	if got := records[0].LoginTime.Unix(); got != 200 {
		t.Errorf("records[0].LoginTime = %d, want 200", got)
	}
}

func TestParseEmptyStore(t *testing.T) {
	records, err := Parse(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Parse() returned %d records, want 0", len(records))
	}
}

func TestParseTruncatedRecord(t *testing.T) {
	full := makeRecord(t, typeUserProcess, 42, "alice", ":0", "", 100)
	_, err := Parse(bytes.NewReader(full[:recordSize-17]))
	if err == nil {
		t.Fatal("Parse() of truncated store succeeded, want error")
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "utmp")
	data := makeRecord(t, typeUserProcess, 77, "carol", "tty2", "", 1700000000)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	records, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error: %v", err)
	}
	if len(records) != 1 || records[0].User != "carol" {
		t.Fatalf("ParseFile() = %+v, want one record for carol", records)
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("ParseFile() of missing store succeeded, want error")
	}
}

func TestLabel(t *testing.T) {
	loginTime := time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

	tests := []struct {
		name string
		rec  SessionRecord
		want string
	}{
		{
			name: "local session has no host suffix",
			rec:  SessionRecord{User: "alice", Line: ":0", LoginTime: loginTime},
			want: "2024-03-09 14:30:05 - alice / :0",
		},
		{
			name: "remote session appends host",
			rec:  SessionRecord{User: "bob", Line: "pts/1", Host: "example", LoginTime: loginTime},
			want: "2024-03-09 14:30:05 - bob / pts/1 @ example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Label(time.UTC); got != tt.want {
				t.Errorf("Label() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLabelGeneralFallback(t *testing.T) {
	loginTime := time.Date(2024, 3, 9, 14, 30, 5, 0, time.FixedZone("", 3600))
	rec := SessionRecord{User: "alice", Line: ":0", LoginTime: loginTime}

	got := rec.Label(nil)
	if !strings.HasSuffix(got, " +01:00:00 - alice / :0") {
		t.Errorf("Label(nil) = %q, want explicit offset suffix", got)
	}
	if !strings.HasPrefix(got, "2024-03-09 14:30:05") {
		t.Errorf("Label(nil) = %q, want stored-offset wall clock", got)
	}
}

func TestFormatTimeConvertsToLocation(t *testing.T) {
	loginTime := time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)
	loc := time.FixedZone("X", -5*3600)
	if got := FormatTime(loginTime, loc); got != "2024-03-09 09:30:05" {
		t.Errorf("FormatTime() = %q, want converted wall clock", got)
	}
}
