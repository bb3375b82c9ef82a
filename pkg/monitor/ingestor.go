package monitor

import (
	"context"
	"time"

	"github.com/battwatch/battwatch-go/pkg/eventlog"
	"github.com/battwatch/battwatch-go/pkg/transport"
)

// Ingestor applies asynchronous transport events to device state. The two
// event kinds are independent; the only shared resource is the store's
// per-device atomic update inside the applier. Events for unregistered
// devices are dropped.
type Ingestor struct {
	applier *StateApplier
	logger  eventlog.Logger
}

// NewIngestor creates an Ingestor. logger may be nil.
func NewIngestor(applier *StateApplier, logger eventlog.Logger) *Ingestor {
	if logger == nil {
		logger = eventlog.NoopLogger{}
	}
	return &Ingestor{applier: applier, logger: logger}
}

// Bind registers the ingestor's handlers on a transport. Handlers run on
// transport goroutines with the given context.
func (i *Ingestor) Bind(ctx context.Context, tr transport.Transport) {
	tr.OnReport(func(ev transport.ReportEvent) { i.HandleReport(ctx, ev) })
	tr.OnStatus(func(ev transport.StatusEvent) { i.HandleStatus(ctx, ev) })
}

// HandleReport merges a pushed battery report. Any report proves liveness,
// so the device flips to connected silently; low-battery edges notify.
func (i *Ingestor) HandleReport(ctx context.Context, ev transport.ReportEvent) {
	rec := &eventlog.ReportRecord{
		Descriptor: ev.Source.DescriptorKey(),
		HasLevel:   ev.Source.LevelKnown(),
	}
	if ev.Source.Level != nil {
		rec.Level = *ev.Source.Level
	}
	i.logger.Log(eventlog.Event{
		Timestamp: time.Now(),
		Category:  eventlog.CategoryReport,
		DeviceID:  ev.DeviceID,
		Report:    rec,
	})

	i.applier.ApplyReport(ctx, ev.DeviceID, ev.Source)
}

// HandleStatus applies an explicit connection status observation; a real
// flip emits the corresponding notification exactly once.
func (i *Ingestor) HandleStatus(ctx context.Context, ev transport.StatusEvent) {
	i.logger.Log(eventlog.Event{
		Timestamp: time.Now(),
		Category:  eventlog.CategoryStatus,
		DeviceID:  ev.DeviceID,
		Status:    &eventlog.StatusRecord{Connected: ev.Connected},
	})

	i.applier.ApplyStatus(ctx, ev.DeviceID, ev.Connected)
}
