package monitor

import (
	"context"
	"time"

	"github.com/battwatch/battwatch-go/pkg/battery"
	"github.com/battwatch/battwatch-go/pkg/eventlog"
	"github.com/battwatch/battwatch-go/pkg/notify"
	"github.com/battwatch/battwatch-go/pkg/registry"
)

// HistoryAppender records applied battery readings. Implemented by
// history.Store.
type HistoryAppender interface {
	// Append records one reading with a known level.
	Append(deviceID, deviceName string, source battery.Source) error
}

// ApplierConfig wires a StateApplier.
type ApplierConfig struct {
	// Store is the device store. Required.
	Store *registry.Store

	// Flags returns the current notification enable flags. Nil means all
	// enabled.
	Flags func() notify.Flags

	// Sink delivers notifications. Nil suppresses delivery (messages are
	// still logged).
	Sink notify.Sink

	// Logger records engine events. Nil disables capture.
	Logger eventlog.Logger

	// History records applied readings. Optional.
	History HistoryAppender

	// Hooks receives progress callbacks. Optional.
	Hooks Hooks
}

// StateApplier is the single path from observed readings and transitions to
// store mutations and notifications. Both notification-bearing engine paths
// (Reader and Ingestor) and the Reconciler's snapshot merge go through it,
// so flip detection happens exactly once, under the store's per-device
// atomic update.
type StateApplier struct {
	store   *registry.Store
	flags   func() notify.Flags
	sink    notify.Sink
	logger  eventlog.Logger
	history HistoryAppender
	hooks   Hooks
}

// NewStateApplier creates a StateApplier from the config, substituting
// no-ops for absent optional pieces.
func NewStateApplier(cfg ApplierConfig) *StateApplier {
	a := &StateApplier{
		store:   cfg.Store,
		flags:   cfg.Flags,
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		history: cfg.History,
		hooks:   cfg.Hooks,
	}
	if a.flags == nil {
		a.flags = notify.DefaultFlags
	}
	if a.logger == nil {
		a.logger = eventlog.NoopLogger{}
	}
	if a.hooks == nil {
		a.hooks = NoopHooks{}
	}
	return a
}

// ApplySuccessfulRead folds a successful read into the device: merge, flip
// to connected with a notification if the device was believed down, and
// low-battery edges per source. Unknown devices are ignored.
func (a *StateApplier) ApplySuccessfulRead(ctx context.Context, deviceID string, reading []battery.Source) {
	var transitions []notify.Transition
	var name string
	ok := a.store.Update(deviceID, func(dev *registry.Device) {
		name = dev.Name
		if dev.Disconnected {
			dev.Disconnected = false
			transitions = append(transitions, notify.Connected())
		}
		transitions = append(transitions, mergeLowEdges(dev, reading)...)
	})
	if !ok {
		return
	}
	a.emit(ctx, deviceID, name, transitions)
	a.appendHistory(deviceID, name, reading)
}

// ApplyReadExhausted marks a device unreachable after its retry budget ran
// out, with a disconnected notification if it was previously believed up.
func (a *StateApplier) ApplyReadExhausted(ctx context.Context, deviceID string) {
	var transitions []notify.Transition
	var name string
	ok := a.store.Update(deviceID, func(dev *registry.Device) {
		name = dev.Name
		if !dev.Disconnected {
			dev.Disconnected = true
			transitions = append(transitions, notify.Disconnected())
		}
	})
	if !ok {
		return
	}
	a.emit(ctx, deviceID, name, transitions)
}

// ApplyReport folds one pushed report into the device. Receipt of any report
// proves liveness, so the device flips to connected unconditionally, but
// silently: connect notifications belong to explicit status flips and
// successful reads. Low-battery edges still fire.
func (a *StateApplier) ApplyReport(ctx context.Context, deviceID string, source battery.Source) {
	reading := []battery.Source{source}
	var transitions []notify.Transition
	var name string
	ok := a.store.Update(deviceID, func(dev *registry.Device) {
		name = dev.Name
		dev.Disconnected = false
		transitions = mergeLowEdges(dev, reading)
	})
	if !ok {
		return
	}
	a.hooks.ReportIngested(deviceID)
	a.emit(ctx, deviceID, name, transitions)
	a.appendHistory(deviceID, name, reading)
}

// ApplyStatus applies an explicit connection status observation. A no-op
// when the state matches; otherwise the flip emits the corresponding
// notification exactly once.
func (a *StateApplier) ApplyStatus(ctx context.Context, deviceID string, connected bool) {
	var transitions []notify.Transition
	var name string
	ok := a.store.Update(deviceID, func(dev *registry.Device) {
		name = dev.Name
		if dev.Disconnected == !connected {
			return
		}
		dev.Disconnected = !connected
		if connected {
			transitions = append(transitions, notify.Connected())
		} else {
			transitions = append(transitions, notify.Disconnected())
		}
	})
	if !ok {
		return
	}
	a.emit(ctx, deviceID, name, transitions)
}

// ApplySnapshot merges the initial reading returned by a fresh subscription.
// Merge only: no liveness flip, no notifications. The transport's
// connection watcher proves liveness on its own schedule.
func (a *StateApplier) ApplySnapshot(ctx context.Context, deviceID string, reading []battery.Source) {
	var name string
	ok := a.store.Update(deviceID, func(dev *registry.Device) {
		name = dev.Name
		dev.Sources = battery.Merge(dev.Sources, reading)
	})
	if !ok {
		return
	}
	a.appendHistory(deviceID, name, reading)
}

// MarkUnreachable flips a device to disconnected without a notification.
// Used for failed subscription starts.
func (a *StateApplier) MarkUnreachable(deviceID string) {
	a.store.Update(deviceID, func(dev *registry.Device) {
		dev.Disconnected = true
	})
}

// mergeLowEdges merges the reading into the device and returns a low-battery
// transition for every source that crossed into the low range on this merge,
// judged against the level stored immediately before it.
func mergeLowEdges(dev *registry.Device, reading []battery.Source) []notify.Transition {
	prev := make(map[string]*int, len(dev.Sources))
	for _, s := range dev.Sources {
		prev[s.DescriptorKey()] = s.Level
	}
	dev.Sources = battery.Merge(dev.Sources, reading)

	var transitions []notify.Transition
	for _, s := range dev.Sources {
		if battery.CrossedLow(prev[s.DescriptorKey()], s.Level) {
			transitions = append(transitions, notify.LowBattery(s.Descriptor, *s.Level))
		}
	}
	return transitions
}

func (a *StateApplier) emit(ctx context.Context, deviceID, name string, transitions []notify.Transition) {
	if len(transitions) == 0 {
		return
	}
	flags := a.flags()
	for _, tr := range transitions {
		msg, ok := notify.Build(deviceID, name, tr, flags)
		if !ok {
			continue
		}
		a.hooks.NotificationEmitted(tr.Kind.String())
		a.logger.Log(eventlog.Event{
			Timestamp: time.Now(),
			Category:  eventlog.CategoryNotification,
			DeviceID:  deviceID,
			Notification: &eventlog.NotificationRecord{
				Kind: tr.Kind.String(),
				Body: msg.Body,
			},
		})
		if a.sink == nil {
			continue
		}
		if err := a.sink.Deliver(ctx, msg); err != nil {
			a.logger.Log(eventlog.Event{
				Timestamp: time.Now(),
				Category:  eventlog.CategoryError,
				DeviceID:  deviceID,
				Error:     &eventlog.ErrorRecord{Context: "notification delivery", Message: err.Error()},
			})
		}
	}
}

func (a *StateApplier) appendHistory(deviceID, name string, reading []battery.Source) {
	if a.history == nil {
		return
	}
	for _, s := range reading {
		if s.Level == nil {
			continue
		}
		if err := a.history.Append(deviceID, name, s); err != nil {
			a.logger.Log(eventlog.Event{
				Timestamp: time.Now(),
				Category:  eventlog.CategoryError,
				DeviceID:  deviceID,
				Error:     &eventlog.ErrorRecord{Context: "history append", Message: err.Error()},
			})
		}
	}
}
