package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/battwatch/battwatch-go/pkg/eventlog"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	DeviceID  string
	Category  string
	TimeStart string
	TimeEnd   string
}

// BuildFilter converts the string-valued options to an event filter.
func BuildFilter(opts FilterOptions) (eventlog.Filter, error) {
	filter := eventlog.Filter{DeviceID: opts.DeviceID}

	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return eventlog.Filter{}, err
		}
		filter.Category = &c
	}
	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return eventlog.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return eventlog.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	return filter, nil
}

// RunFilter reads the log file and writes matching events to a new log file.
func RunFilter(path string, opts FilterOptions) error {
	if opts.Output == "" {
		return fmt.Errorf("output file required")
	}

	filter, err := BuildFilter(opts)
	if err != nil {
		return err
	}

	reader, err := eventlog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	out, err := eventlog.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		out.Log(event)
		count++
	}

	fmt.Printf("Wrote %d events to %s\n", count, opts.Output)
	return nil
}
