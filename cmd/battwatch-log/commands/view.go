// Package commands implements the battwatch-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/battwatch/battwatch-go/pkg/eventlog"
)

// ParseCategoryFlag converts a category flag value to a Category.
func ParseCategoryFlag(s string) (eventlog.Category, error) {
	switch strings.ToLower(s) {
	case "reconcile":
		return eventlog.CategoryReconcile, nil
	case "monitor":
		return eventlog.CategoryMonitor, nil
	case "read":
		return eventlog.CategoryRead, nil
	case "report":
		return eventlog.CategoryReport, nil
	case "status":
		return eventlog.CategoryStatus, nil
	case "notification":
		return eventlog.CategoryNotification, nil
	case "error":
		return eventlog.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category: %s (supported: reconcile, monitor, read, report, status, notification, error)", s)
	}
}

// RunView reads the log file and writes a human-readable rendering of each
// matching event to w.
func RunView(path string, filter eventlog.Filter, w io.Writer) error {
	reader, err := eventlog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event eventlog.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	device := event.DeviceID
	if device == "" {
		device = "-"
	}
	fmt.Fprintf(w, "%s [%s] %s\n", ts, device, event.Category)

	switch {
	case event.Reconcile != nil:
		r := event.Reconcile
		fmt.Fprintf(w, "  Generation: %d\n", r.Generation)
		fmt.Fprintf(w, "  Desired: %d  Start: %d  Stop: %d\n", r.Desired, r.ToStart, r.ToStop)
	case event.Monitor != nil:
		m := event.Monitor
		fmt.Fprintf(w, "  Action: %s\n", m.Action)
		if m.Generation != 0 {
			fmt.Fprintf(w, "  Generation: %d\n", m.Generation)
		}
		if m.Err != "" {
			fmt.Fprintf(w, "  Error: %s\n", m.Err)
		}
	case event.Read != nil:
		r := event.Read
		fmt.Fprintf(w, "  Attempts: %d/%d\n", r.Attempts, r.Budget)
		if r.Succeeded {
			fmt.Fprintf(w, "  Sources: %d\n", r.Sources)
		} else if r.Err != "" {
			fmt.Fprintf(w, "  Error: %s\n", r.Err)
		}
	case event.Report != nil:
		r := event.Report
		desc := r.Descriptor
		if desc == "" {
			desc = "(central)"
		}
		if r.HasLevel {
			fmt.Fprintf(w, "  %s: %d%%\n", desc, r.Level)
		} else {
			fmt.Fprintf(w, "  %s: level unknown\n", desc)
		}
	case event.Status != nil:
		state := "disconnected"
		if event.Status.Connected {
			state = "connected"
		}
		fmt.Fprintf(w, "  State: %s\n", state)
	case event.Notification != nil:
		n := event.Notification
		fmt.Fprintf(w, "  Kind: %s\n", n.Kind)
		if n.Body != "" {
			fmt.Fprintf(w, "  Body: %s\n", n.Body)
		}
	case event.Error != nil:
		e := event.Error
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
		fmt.Fprintf(w, "  Message: %s\n", e.Message)
	}

	fmt.Fprintln(w)
}
