// Package history keeps per-device battery level history in plain CSV files,
// one file per device, append-only. The files are meant to be opened directly
// in a spreadsheet, so the format stays deliberately simple: a header line and
// one `timestamp,user_description,battery_level` row per reading.
package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/battwatch/battwatch-go/pkg/battery"
)

const header = "timestamp,user_description,battery_level"

// Record is one history row.
type Record struct {
	Timestamp       string `json:"timestamp"`
	UserDescription string `json:"user_description"`
	BatteryLevel    int    `json:"battery_level"`
}

// Filename derives the history file name for a device. Both parts are
// sanitized to alphanumerics, '-' and '_' so any device name is a safe
// path component.
func Filename(deviceName, deviceID string) string {
	return sanitize(deviceName) + "_" + sanitize(deviceID) + ".csv"
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Store appends and reads per-device history files under one directory.
// Safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// NewStore creates a store rooted at dir. The directory is created lazily on
// the first append.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the history directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the history file path for a device.
func (s *Store) Path(deviceID, deviceName string) string {
	return filepath.Join(s.dir, Filename(deviceName, deviceID))
}

// Append writes one reading to the device's history file, creating the file
// with its header first when needed. Sources with an unknown level are
// skipped: history records levels, not their absence.
func (s *Store) Append(deviceID, deviceName string, source battery.Source) error {
	if source.Level == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	path := s.Path(deviceID, deviceName)
	_, statErr := os.Stat(path)
	needsHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	if needsHeader {
		if _, err := fmt.Fprintln(f, header); err != nil {
			return fmt.Errorf("write history header: %w", err)
		}
	}

	ts := s.now().UTC().Format(time.RFC3339)
	if _, err := fmt.Fprintf(f, "%s,%s,%d\n", ts, source.DescriptorKey(), *source.Level); err != nil {
		return fmt.Errorf("write history row: %w", err)
	}
	return nil
}

// Read returns every recorded row for a device, oldest first. A missing file
// is an empty history, not an error. Rows that don't split into three fields
// are skipped; an unparseable level becomes -1 so the row survives.
func (s *Store) Read(deviceID, deviceName string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.Path(deviceID, deviceName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			continue
		}
		level, err := strconv.Atoi(parts[2])
		if err != nil {
			level = -1
		}
		records = append(records, Record{
			Timestamp:       parts[0],
			UserDescription: parts[1],
			BatteryLevel:    level,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	return records, nil
}

// Remove deletes a device's history file. Missing files are fine.
func (s *Store) Remove(deviceID, deviceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.Path(deviceID, deviceName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove history file: %w", err)
	}
	return nil
}
