package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/battwatch/battwatch-go/pkg/eventlog"
	"github.com/battwatch/battwatch-go/pkg/monitor"
	"github.com/battwatch/battwatch-go/pkg/notify"
	"github.com/battwatch/battwatch-go/pkg/registry"
	"github.com/battwatch/battwatch-go/pkg/transport"
)

// Service errors.
var (
	ErrAlreadyStarted = errors.New("service already started")
	ErrNotStarted     = errors.New("service not started")
	ErrUnknownDevice  = errors.New("device not registered")
)

// Options wires a Service. Store and Transport are required; everything else
// has a usable zero value.
type Options struct {
	Store     *registry.Store
	Transport transport.Transport

	// Mode is the initial monitoring mode.
	Mode monitor.Mode

	// PollInterval is the polling cycle length. Zero selects the default.
	PollInterval time.Duration

	// Flags returns the current notification enable flags. Nil enables all.
	Flags func() notify.Flags

	// Sink delivers notifications. Nil logs them only.
	Sink notify.Sink

	// History records applied readings. Optional.
	History monitor.HistoryAppender

	// Logger records engine events. Optional.
	Logger eventlog.Logger

	// Hooks receives engine progress callbacks, e.g. metrics. Optional.
	Hooks monitor.Hooks

	// Log may be nil to use the default logger.
	Log *slog.Logger
}

// Service owns the monitor synchronization engine and exposes the operations
// the UI/config collaborator drives it with.
type Service struct {
	store *registry.Store
	tr    transport.Transport
	log   *slog.Logger

	set        *monitor.MonitorSet
	applier    *monitor.StateApplier
	reconciler *monitor.Reconciler
	reader     *monitor.Reader
	ingestor   *monitor.Ingestor
	scheduler  *monitor.Scheduler

	mu      sync.Mutex
	mode    monitor.Mode
	started bool
	ctx     context.Context
	cancel  context.CancelFunc

	eventMu  sync.Mutex
	onEvents []func(Event)
}

// New assembles a Service from the options.
func New(opts Options) *Service {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	set := monitor.NewMonitorSet()
	applier := monitor.NewStateApplier(monitor.ApplierConfig{
		Store:   opts.Store,
		Flags:   opts.Flags,
		Sink:    opts.Sink,
		Logger:  opts.Logger,
		History: opts.History,
		Hooks:   opts.Hooks,
	})

	s := &Service{
		store:      opts.Store,
		tr:         opts.Transport,
		log:        log,
		set:        set,
		applier:    applier,
		reconciler: monitor.NewReconciler(opts.Transport, set, applier, opts.Logger, opts.Hooks),
		reader:     monitor.NewReader(opts.Transport, applier, nil, opts.Logger, opts.Hooks),
		ingestor:   monitor.NewIngestor(applier, opts.Logger),
		mode:       opts.Mode,
	}
	s.scheduler = monitor.NewScheduler(s.reader, opts.Store, opts.PollInterval)
	return s
}

// Start wires transport events and begins monitoring in the configured mode.
// The persisted device list is expected to be restored into the store
// beforehand; every restored device starts out disconnected.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	runCtx := s.ctx
	mode := s.mode
	s.mu.Unlock()

	s.ingestor.Bind(runCtx, s.tr)

	switch mode {
	case monitor.ModeNotifications:
		s.reconcileNow(runCtx)
	default:
		s.scheduler.Start()
	}

	s.log.Info("service started", "mode", mode.String(), "devices", s.store.Len())
	s.emit(Event{Kind: EventStarted, Mode: mode})
	return nil
}

// Stop tears down all monitoring: subscriptions are reconciled away with the
// stop-all safety net behind them, the poll loop halts, and the device list
// is flushed one last time.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	mode := s.mode
	s.mu.Unlock()

	s.scheduler.Stop()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	s.reconciler.StopAll(stopCtx)
	s.reconciler.Wait()
	cancelStop()
	cancel()

	if err := s.store.Flush(); err != nil {
		s.log.Warn("final device list flush failed", "error", err)
	}

	s.log.Info("service stopped")
	s.emit(Event{Kind: EventStopped, Mode: mode})
}

// Scan discovers nearby devices. The scan is bounded; failures come back as
// one displayable error, never a fault.
func (s *Service) Scan(ctx context.Context) ([]transport.DeviceInfo, error) {
	infos, err := transport.Scan(ctx, s.tr)
	ev := Event{Kind: EventScanCompleted, Mode: s.Mode(), Found: len(infos)}
	if err != nil {
		ev.Err = transport.DescribeScanError(err)
		s.emit(ev)
		return nil, err
	}
	s.emit(ev)
	return infos, nil
}

// AddDevice registers a device and performs the mode-appropriate initial
// fetch: an immediate read in polling mode, a reconciliation pass (which
// subscribes and merges the snapshot) in notification mode.
func (s *Service) AddDevice(ctx context.Context, id, name string) error {
	err := s.store.Add(registry.Device{ID: id, Name: name, Disconnected: true})
	if err != nil {
		return err
	}

	switch s.Mode() {
	case monitor.ModeNotifications:
		s.reconcileNow(ctx)
	default:
		s.reader.Read(ctx, id)
	}

	s.emit(Event{Kind: EventDeviceAdded, DeviceID: id, Mode: s.Mode()})
	return nil
}

// RemoveDevice tears down the device's monitor, then unregisters it. The
// teardown pass runs first so a start still in flight for this device is
// superseded and reverses itself.
func (s *Service) RemoveDevice(ctx context.Context, id string) error {
	if _, ok := s.store.Get(id); !ok {
		return ErrUnknownDevice
	}

	if s.Mode() == monitor.ModeNotifications {
		remaining := withoutID(s.store.IDs(), id)
		s.reconciler.Reconcile(ctx, remaining)
	}

	s.store.Remove(id)
	s.emit(Event{Kind: EventDeviceRemoved, DeviceID: id, Mode: s.Mode()})
	return nil
}

// SetMode switches the monitoring mode. Leaving notification mode stops
// every subscription with the transport-wide stop-all as a safety net.
func (s *Service) SetMode(ctx context.Context, mode monitor.Mode) {
	s.mu.Lock()
	if s.mode == mode {
		s.mu.Unlock()
		return
	}
	prev := s.mode
	s.mode = mode
	started := s.started
	s.mu.Unlock()

	s.log.Info("mode changed", "from", prev.String(), "to", mode.String())

	if started {
		switch mode {
		case monitor.ModeNotifications:
			s.scheduler.Stop()
			s.reconcileNow(ctx)
		default:
			s.reconciler.StopAll(ctx)
			s.scheduler.Start()
		}
	}

	s.emit(Event{Kind: EventModeChanged, Mode: mode})
}

// ReloadAll re-reads every registered device now. The manual refresh for
// polling mode; in notification mode fresh data arrives by push instead.
func (s *Service) ReloadAll(ctx context.Context) {
	if s.Mode() != monitor.ModePolling {
		return
	}
	s.scheduler.RunOnce(ctx)
}

// Devices returns the registered devices.
func (s *Service) Devices() []registry.Device {
	return s.store.List()
}

// Mode returns the current monitoring mode.
func (s *Service) Mode() monitor.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ActiveMonitors returns the device IDs holding a believed-live
// subscription.
func (s *Service) ActiveMonitors() []string {
	return s.set.IDs()
}

// OnEvent registers an observer for service events. Observers must not
// block.
func (s *Service) OnEvent(fn func(Event)) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	s.onEvents = append(s.onEvents, fn)
}

// Quiesce waits for in-flight reconciliation work to drain. Test support.
func (s *Service) Quiesce() {
	s.reconciler.Wait()
}

func (s *Service) reconcileNow(ctx context.Context) {
	desired := monitor.DesiredSet(s.Mode(), s.store.IDs())
	s.reconciler.Reconcile(ctx, desired)
}

func (s *Service) emit(ev Event) {
	s.eventMu.Lock()
	observers := append([]func(Event){}, s.onEvents...)
	s.eventMu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

func withoutID(ids []string, drop string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
