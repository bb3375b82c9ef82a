package eventlog

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	event := Event{
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC),
		Category:  CategoryRead,
		DeviceID:  "dev-1",
		Read: &ReadRecord{
			Attempts:  2,
			Budget:    3,
			Succeeded: true,
			Sources:   2,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if decoded.DeviceID != "dev-1" || decoded.Category != CategoryRead {
		t.Errorf("envelope fields lost: %+v", decoded)
	}
	if decoded.Read == nil || decoded.Read.Attempts != 2 || !decoded.Read.Succeeded {
		t.Errorf("read payload lost: %+v", decoded.Read)
	}
	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("timestamp = %v, want %v", decoded.Timestamp, event.Timestamp)
	}
}

func TestDecodeGarbageFails(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("decoding garbage succeeded")
	}
}

func TestCategoryStrings(t *testing.T) {
	names := map[Category]string{
		CategoryReconcile:    "RECONCILE",
		CategoryMonitor:      "MONITOR",
		CategoryRead:         "READ",
		CategoryReport:       "REPORT",
		CategoryStatus:       "STATUS",
		CategoryNotification: "NOTIFICATION",
		CategoryError:        "ERROR",
		Category(99):         "UNKNOWN",
	}
	for c, want := range names {
		if c.String() != want {
			t.Errorf("Category(%d).String() = %q, want %q", c, c.String(), want)
		}
	}
	if ActionReversal.String() != "REVERSAL" || ActionStopAll.String() != "STOP_ALL" {
		t.Error("monitor action names wrong")
	}
}

func TestFileLoggerAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.blog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(Event{Timestamp: time.Now(), Category: CategoryStatus, DeviceID: "dev-1",
		Status: &StatusRecord{Connected: true}})
	logger.Close()

	// Reopen and append a second event.
	logger, err = NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger reopen failed: %v", err)
	}
	logger.Log(Event{Timestamp: time.Now(), Category: CategoryStatus, DeviceID: "dev-2",
		Status: &StatusRecord{Connected: false}})
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var ids []string
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		ids = append(ids, ev.DeviceID)
	}
	if len(ids) != 2 || ids[0] != "dev-1" || ids[1] != "dev-2" {
		t.Errorf("events = %v, want [dev-1 dev-2]", ids)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.blog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Log(Event{Timestamp: time.Now(), Category: CategoryReport,
					Report: &ReportRecord{HasLevel: true, Level: j}})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		if _, err := reader.Next(); err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("Next failed after %d events: %v", count, err)
		}
		count++
	}
	if count != 200 {
		t.Errorf("read %d events, want 200", count)
	}
}

func TestFileLoggerClosedIgnoresLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.blog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Close()
	if err := logger.Close(); err != nil {
		t.Errorf("second Close error = %v", err)
	}
	logger.Log(Event{Category: CategoryError}) // must not panic

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Error("event written after Close")
	}
}

func TestReaderFiltering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.blog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, Category: CategoryRead, DeviceID: "dev-1"},
		{Timestamp: base.Add(time.Minute), Category: CategoryReport, DeviceID: "dev-2"},
		{Timestamp: base.Add(2 * time.Minute), Category: CategoryRead, DeviceID: "dev-2"},
		{Timestamp: base.Add(3 * time.Minute), Category: CategoryError, DeviceID: "dev-1"},
	}
	for _, ev := range events {
		logger.Log(ev)
	}
	logger.Close()

	readCat := CategoryRead
	reader, err := NewFilteredReader(path, Filter{Category: &readCat, DeviceID: "dev-2"})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	ev, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.DeviceID != "dev-2" || ev.Category != CategoryRead {
		t.Errorf("filtered event = %+v", ev)
	}
	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("second Next = %v, want io.EOF", err)
	}

	// Time-window filter.
	start := base.Add(30 * time.Second)
	end := base.Add(150 * time.Second)
	reader2, err := NewFilteredReader(path, Filter{TimeStart: &start, TimeEnd: &end})
	if err != nil {
		t.Fatal(err)
	}
	defer reader2.Close()
	count := 0
	for {
		if _, err := reader2.Next(); err != nil {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("time-window matched %d events, want 2", count)
	}
}

func TestMultiLoggerFansOut(t *testing.T) {
	var a, b countingLogger
	multi := NewMultiLogger(&a, &b, NoopLogger{})

	multi.Log(Event{Category: CategoryReconcile})
	multi.Log(Event{Category: CategoryMonitor})

	if a.count != 2 || b.count != 2 {
		t.Errorf("counts = %d,%d, want 2,2", a.count, b.count)
	}
}

type countingLogger struct {
	mu    sync.Mutex
	count int
}

func (c *countingLogger) Log(Event) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}
