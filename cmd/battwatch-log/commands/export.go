package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/battwatch/battwatch-go/pkg/eventlog"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := eventlog.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

// exportEvent is the JSONL projection of an event. CBOR integer keys don't
// survive a straight json.Marshal of Event, so name the fields here.
type exportEvent struct {
	Timestamp    time.Time                    `json:"timestamp"`
	Category     string                       `json:"category"`
	DeviceID     string                       `json:"device_id,omitempty"`
	Reconcile    *eventlog.ReconcileRecord    `json:"reconcile,omitempty"`
	Monitor      *eventlog.MonitorRecord      `json:"monitor,omitempty"`
	Read         *eventlog.ReadRecord         `json:"read,omitempty"`
	Report       *eventlog.ReportRecord       `json:"report,omitempty"`
	Status       *eventlog.StatusRecord       `json:"status,omitempty"`
	Notification *eventlog.NotificationRecord `json:"notification,omitempty"`
	Error        *eventlog.ErrorRecord        `json:"error,omitempty"`
}

func exportJSONL(reader *eventlog.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		out := exportEvent{
			Timestamp:    event.Timestamp,
			Category:     event.Category.String(),
			DeviceID:     event.DeviceID,
			Reconcile:    event.Reconcile,
			Monitor:      event.Monitor,
			Read:         event.Read,
			Report:       event.Report,
			Status:       event.Status,
			Notification: event.Notification,
			Error:        event.Error,
		}
		if err := encoder.Encode(out); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *eventlog.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "category", "device_id", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		row := []string{
			event.Timestamp.UTC().Format(time.RFC3339Nano),
			event.Category.String(),
			event.DeviceID,
			csvDetail(event),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

// csvDetail renders the payload as one compact cell.
func csvDetail(event eventlog.Event) string {
	switch {
	case event.Reconcile != nil:
		r := event.Reconcile
		return fmt.Sprintf("gen=%d desired=%d start=%d stop=%d", r.Generation, r.Desired, r.ToStart, r.ToStop)
	case event.Monitor != nil:
		m := event.Monitor
		s := "action=" + m.Action.String()
		if m.Err != "" {
			s += " err=" + m.Err
		}
		return s
	case event.Read != nil:
		r := event.Read
		s := fmt.Sprintf("attempts=%d/%d ok=%t", r.Attempts, r.Budget, r.Succeeded)
		if r.Err != "" {
			s += " err=" + r.Err
		}
		return s
	case event.Report != nil:
		r := event.Report
		if !r.HasLevel {
			return "level=?"
		}
		s := "level=" + strconv.Itoa(r.Level)
		if r.Descriptor != "" {
			s = r.Descriptor + " " + s
		}
		return s
	case event.Status != nil:
		return "connected=" + strconv.FormatBool(event.Status.Connected)
	case event.Notification != nil:
		return "kind=" + event.Notification.Kind
	case event.Error != nil:
		return event.Error.Context + ": " + event.Error.Message
	default:
		return ""
	}
}
