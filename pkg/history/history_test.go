package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/battwatch/battwatch-go/pkg/battery"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name     string
		device   string
		id       string
		expected string
	}{
		{"plain", "Corne", "af01bc", "Corne_af01bc.csv"},
		{"spaces and punctuation", "Corne v2!", "af:01:bc", "Corne_v2__af_01_bc.csv"},
		{"unicode kept", "Lily58", "DeviceId(4c87)", "Lily58_DeviceId_4c87_.csv"},
		{"empty parts", "", "", "_.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filename(tt.device, tt.id); got != tt.expected {
				t.Errorf("Filename(%q, %q) = %q, want %q", tt.device, tt.id, got, tt.expected)
			}
		})
	}
}

func TestAppendAndRead(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "battery_history"))
	s.now = fixedClock

	err := s.Append("af01", "Corne", battery.Source{
		Descriptor: battery.Desc("Left"),
		Level:      battery.Lvl(72),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append("af01", "Corne", battery.Source{Level: battery.Lvl(68)}); err != nil {
		t.Fatal(err)
	}

	records, err := s.Read("af01", "Corne")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	want := Record{Timestamp: "2025-06-01T12:30:00Z", UserDescription: "Left", BatteryLevel: 72}
	if records[0] != want {
		t.Errorf("first record = %+v, want %+v", records[0], want)
	}
	if records[1].UserDescription != "" || records[1].BatteryLevel != 68 {
		t.Errorf("second record = %+v, want central source at 68", records[1])
	}
}

func TestHeaderWrittenOnce(t *testing.T) {
	s := NewStore(t.TempDir())
	s.now = fixedClock

	for i := 0; i < 3; i++ {
		if err := s.Append("af01", "Corne", battery.Source{Level: battery.Lvl(50)}); err != nil {
			t.Fatal(err)
		}
	}

	raw, err := os.ReadFile(s.Path("af01", "Corne"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("file lines = %d, want header + 3 rows", len(lines))
	}
	if lines[0] != "timestamp,user_description,battery_level" {
		t.Errorf("header = %q", lines[0])
	}
	for _, l := range lines[1:] {
		if l != "2025-06-01T12:30:00Z,,50" {
			t.Errorf("row = %q, want fixed timestamp row", l)
		}
	}
}

func TestAppendSkipsUnknownLevel(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Append("af01", "Corne", battery.Source{Descriptor: battery.Desc("Left")}); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(s.Path("af01", "Corne")); !os.IsNotExist(err) {
		t.Error("nil-level append created a history file")
	}
}

func TestReadMissingFile(t *testing.T) {
	s := NewStore(t.TempDir())

	records, err := s.Read("nope", "Nope")
	if err != nil {
		t.Fatal(err)
	}
	if records != nil {
		t.Errorf("records = %v, want nil for missing file", records)
	}
}

func TestReadTolerantOfBadRows(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	content := strings.Join([]string{
		"timestamp,user_description,battery_level",
		"2025-06-01T12:00:00Z,Left,80",
		"not a row",
		"2025-06-01T12:05:00Z,Left,garbage",
		"2025-06-01T12:10:00Z,Left,75",
		"",
	}, "\n")
	if err := os.WriteFile(s.Path("af01", "Corne"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := s.Read("af01", "Corne")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 (short row skipped)", len(records))
	}
	if records[1].BatteryLevel != -1 {
		t.Errorf("unparseable level = %d, want -1", records[1].BatteryLevel)
	}
	if records[2].BatteryLevel != 75 {
		t.Errorf("last level = %d, want 75", records[2].BatteryLevel)
	}
}

func TestDescriptorWithComma(t *testing.T) {
	s := NewStore(t.TempDir())
	s.now = fixedClock

	err := s.Append("af01", "Corne", battery.Source{
		Descriptor: battery.Desc("Left, outer"),
		Level:      battery.Lvl(42),
	})
	if err != nil {
		t.Fatal(err)
	}

	records, err := s.Read("af01", "Corne")
	if err != nil {
		t.Fatal(err)
	}
	// The level lands inside the third field; the row is kept with level -1
	// rather than dropped.
	if len(records) != 1 || records[0].BatteryLevel != -1 {
		t.Errorf("records = %+v, want one row with level -1", records)
	}
}

func TestRemove(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Append("af01", "Corne", battery.Source{Level: battery.Lvl(10)}); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove("af01", "Corne"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.Path("af01", "Corne")); !os.IsNotExist(err) {
		t.Error("history file still present after Remove")
	}
	if err := s.Remove("af01", "Corne"); err != nil {
		t.Errorf("removing a missing file = %v, want nil", err)
	}
}
