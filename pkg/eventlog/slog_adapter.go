package eventlog

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger at Debug level. Useful in
// development to watch the engine in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}

	switch {
	case event.Reconcile != nil:
		attrs = append(attrs,
			slog.Uint64("generation", event.Reconcile.Generation),
			slog.Int("desired", event.Reconcile.Desired),
			slog.Int("to_start", event.Reconcile.ToStart),
			slog.Int("to_stop", event.Reconcile.ToStop),
		)
	case event.Monitor != nil:
		attrs = append(attrs, slog.String("action", event.Monitor.Action.String()))
		if event.Monitor.Generation != 0 {
			attrs = append(attrs, slog.Uint64("generation", event.Monitor.Generation))
		}
		if event.Monitor.Err != "" {
			attrs = append(attrs, slog.String("error", event.Monitor.Err))
		}
	case event.Read != nil:
		attrs = append(attrs,
			slog.Int("attempts", event.Read.Attempts),
			slog.Int("budget", event.Read.Budget),
			slog.Bool("succeeded", event.Read.Succeeded),
		)
		if event.Read.Succeeded {
			attrs = append(attrs, slog.Int("sources", event.Read.Sources))
		}
		if event.Read.Err != "" {
			attrs = append(attrs, slog.String("error", event.Read.Err))
		}
	case event.Report != nil:
		if event.Report.Descriptor != "" {
			attrs = append(attrs, slog.String("descriptor", event.Report.Descriptor))
		}
		if event.Report.HasLevel {
			attrs = append(attrs, slog.Int("level", event.Report.Level))
		}
	case event.Status != nil:
		attrs = append(attrs, slog.Bool("connected", event.Status.Connected))
	case event.Notification != nil:
		attrs = append(attrs,
			slog.String("kind", event.Notification.Kind),
			slog.String("body", event.Notification.Body),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("context", event.Error.Context),
			slog.String("error", event.Error.Message),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "engine", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
