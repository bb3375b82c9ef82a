package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/battwatch/battwatch-go/pkg/eventlog"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[eventlog.Category]int
	Devices          map[string]*DeviceStats
	Errors           int
	Notifications    int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// DeviceStats holds statistics for a single device.
type DeviceStats struct {
	FirstSeen     time.Time
	LastSeen      time.Time
	Events        int
	Reports       int
	FailedReads   int
	Disconnects   int
	LastLevel     int
	LastLevelSeen bool
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := eventlog.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory: make(map[eventlog.Category]int),
		Devices:          make(map[string]*DeviceStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.observe(event)
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) observe(event eventlog.Event) {
	s.TotalEvents++
	s.EventsByCategory[event.Category]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	switch event.Category {
	case eventlog.CategoryError:
		s.Errors++
	case eventlog.CategoryNotification:
		s.Notifications++
	}

	if event.DeviceID == "" {
		return
	}
	dev := s.Devices[event.DeviceID]
	if dev == nil {
		dev = &DeviceStats{FirstSeen: event.Timestamp}
		s.Devices[event.DeviceID] = dev
	}
	dev.Events++
	if event.Timestamp.Before(dev.FirstSeen) {
		dev.FirstSeen = event.Timestamp
	}
	if event.Timestamp.After(dev.LastSeen) {
		dev.LastSeen = event.Timestamp
	}

	switch {
	case event.Report != nil:
		dev.Reports++
		if event.Report.HasLevel {
			dev.LastLevel = event.Report.Level
			dev.LastLevelSeen = true
		}
	case event.Read != nil:
		if !event.Read.Succeeded {
			dev.FailedReads++
		}
	case event.Status != nil:
		if !event.Status.Connected {
			dev.Disconnects++
		}
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintf(w, "Total events: %d\n", stats.TotalEvents)
	if !stats.TimeRange.Start.IsZero() {
		fmt.Fprintf(w, "Time range:   %s .. %s (%s)\n",
			stats.TimeRange.Start.UTC().Format(time.RFC3339),
			stats.TimeRange.End.UTC().Format(time.RFC3339),
			stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
	}

	fmt.Fprintln(w, "\nEvents by category:")
	categories := make([]eventlog.Category, 0, len(stats.EventsByCategory))
	for c := range stats.EventsByCategory {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	for _, c := range categories {
		fmt.Fprintf(w, "  %-14s %d\n", c.String(), stats.EventsByCategory[c])
	}

	if stats.Errors > 0 {
		fmt.Fprintf(w, "\nErrors: %d\n", stats.Errors)
	}
	if stats.Notifications > 0 {
		fmt.Fprintf(w, "Notifications: %d\n", stats.Notifications)
	}

	if len(stats.Devices) == 0 {
		return
	}
	fmt.Fprintln(w, "\nDevices:")
	ids := make([]string, 0, len(stats.Devices))
	for id := range stats.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		dev := stats.Devices[id]
		fmt.Fprintf(w, "  %s\n", id)
		fmt.Fprintf(w, "    Events: %d  Reports: %d  Failed reads: %d  Disconnects: %d\n",
			dev.Events, dev.Reports, dev.FailedReads, dev.Disconnects)
		if dev.LastLevelSeen {
			fmt.Fprintf(w, "    Last level: %d%%\n", dev.LastLevel)
		}
	}
}
