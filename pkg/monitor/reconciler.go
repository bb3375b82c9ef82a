package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/battwatch/battwatch-go/pkg/eventlog"
	"github.com/battwatch/battwatch-go/pkg/transport"
)

// Reconciler converges the active subscription set toward a desired set.
//
// Every pass captures a generation token. The mutex orders the three moments
// that must not interleave: bumping the generation and diffing the set at
// pass start, and the check-then-commit of each start result. A start whose
// generation is no longer current discards its result; if it already
// established a subscription on the transport, it immediately stops it again
// so superseded passes never leak subscriptions.
type Reconciler struct {
	mu         sync.Mutex
	generation atomic.Uint64

	// starting tracks, per device, the newest generation with a start in
	// flight. Transport subscriptions are device-keyed, so a superseded
	// pass must not reverse a device that a newer pass has meanwhile
	// started or committed: the stop would tear down the newer pass's
	// subscription while the set still believes it live.
	starting map[string]uint64

	tr      transport.Transport
	set     *MonitorSet
	applier *StateApplier
	logger  eventlog.Logger
	hooks   Hooks

	wg sync.WaitGroup
}

// NewReconciler creates a Reconciler over the given set. logger and hooks
// may be nil.
func NewReconciler(tr transport.Transport, set *MonitorSet, applier *StateApplier, logger eventlog.Logger, hooks Hooks) *Reconciler {
	if logger == nil {
		logger = eventlog.NoopLogger{}
	}
	if hooks == nil {
		hooks = NoopHooks{}
	}
	return &Reconciler{
		starting: make(map[string]uint64),
		tr:       tr,
		set:      set,
		applier:  applier,
		logger:   logger,
		hooks:    hooks,
	}
}

// Generation returns the current generation token.
func (r *Reconciler) Generation() uint64 {
	return r.generation.Load()
}

// Reconcile diffs the desired set against the active set and launches the
// starts and stops that close the gap. It returns once the work is launched;
// Wait blocks until in-flight operations drain.
func (r *Reconciler) Reconcile(ctx context.Context, desired []string) {
	r.mu.Lock()
	gen := r.generation.Add(1)

	want := make(map[string]bool, len(desired))
	var toStart []string
	for _, id := range desired {
		if want[id] {
			continue
		}
		want[id] = true
		if !r.set.Contains(id) {
			toStart = append(toStart, id)
		}
	}
	var toStop []string
	for _, id := range r.set.IDs() {
		if !want[id] {
			toStop = append(toStop, id)
		}
	}
	// Bookkeeping is dropped before the stop I/O happens and regardless of
	// its outcome: an orphaned transport subscription is repairable, leaked
	// bookkeeping is not.
	for _, id := range toStop {
		r.set.Remove(id)
	}
	for _, id := range toStart {
		r.starting[id] = gen
	}
	r.mu.Unlock()

	r.hooks.ReconcilePass(gen, len(want), len(toStart), len(toStop))
	r.logger.Log(eventlog.Event{
		Timestamp: time.Now(),
		Category:  eventlog.CategoryReconcile,
		Reconcile: &eventlog.ReconcileRecord{
			Generation: gen,
			Desired:    len(want),
			ToStart:    len(toStart),
			ToStop:     len(toStop),
		},
	})

	for _, id := range toStop {
		r.wg.Add(1)
		go r.stopDevice(ctx, gen, id)
	}
	for _, id := range toStart {
		r.wg.Add(1)
		go r.startDevice(ctx, gen, id)
	}
}

// StopAll tears down every subscription: per-device stops for everything in
// the set, then the transport's stop-all as a safety net for whatever the
// bookkeeping lost track of. Used when leaving notification mode and at
// shutdown. Blocks until the stops ran.
func (r *Reconciler) StopAll(ctx context.Context) {
	r.mu.Lock()
	gen := r.generation.Add(1)
	ids := r.set.Clear()
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		r.wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.stopDevice(ctx, gen, id)
		}(id)
	}
	wg.Wait()

	err := r.tr.StopAllMonitors(ctx)
	rec := &eventlog.MonitorRecord{Action: eventlog.ActionStopAll, Generation: gen}
	if err != nil {
		rec.Err = err.Error()
	}
	r.logger.Log(eventlog.Event{
		Timestamp: time.Now(),
		Category:  eventlog.CategoryMonitor,
		Monitor:   rec,
	})
}

// Wait blocks until every launched start/stop has finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) startDevice(ctx context.Context, gen uint64, deviceID string) {
	defer r.wg.Done()

	sources, err := r.tr.StartMonitor(ctx, deviceID)
	if err != nil {
		// Unreachable right now; the next pass retries. No notification:
		// liveness transitions belong to the reader and the ingestor.
		r.mu.Lock()
		r.clearStarting(deviceID, gen)
		r.mu.Unlock()
		r.applier.MarkUnreachable(deviceID)
		r.logMonitor(deviceID, eventlog.MonitorRecord{Action: eventlog.ActionStart, Generation: gen, Err: err.Error()})
		return
	}

	r.mu.Lock()
	if r.generation.Load() != gen {
		// Superseded while the start was in flight: this pass's result must
		// not be committed, and the subscription it just established must
		// not outlive it. The reversal is skipped when a newer pass has
		// committed or started this same device; the stop would strip its
		// subscription out from under the set's bookkeeping.
		owned := r.starting[deviceID] == gen
		r.clearStarting(deviceID, gen)
		committed := r.set.Contains(deviceID)
		r.mu.Unlock()
		r.hooks.PassSuperseded(gen)
		if committed || !owned {
			r.logMonitor(deviceID, eventlog.MonitorRecord{Action: eventlog.ActionReversal, Generation: gen})
			return
		}
		reversalErr := r.tr.StopMonitor(ctx, deviceID)
		rec := eventlog.MonitorRecord{Action: eventlog.ActionReversal, Generation: gen}
		if reversalErr != nil {
			rec.Err = reversalErr.Error()
		}
		r.logMonitor(deviceID, rec)
		return
	}
	r.clearStarting(deviceID, gen)
	r.set.Add(Handle{DeviceID: deviceID, Generation: gen, StartedAt: time.Now()})
	r.mu.Unlock()

	r.hooks.MonitorStarted(deviceID)
	r.logMonitor(deviceID, eventlog.MonitorRecord{Action: eventlog.ActionStart, Generation: gen})

	// An empty snapshot is valid: subscribed, but the device answered
	// nothing yet. The connection watcher reports on it later.
	if len(sources) > 0 {
		r.applier.ApplySnapshot(ctx, deviceID, sources)
	}
}

// clearStarting drops the in-flight record when it still belongs to gen.
// Callers hold r.mu.
func (r *Reconciler) clearStarting(deviceID string, gen uint64) {
	if r.starting[deviceID] == gen {
		delete(r.starting, deviceID)
	}
}

func (r *Reconciler) stopDevice(ctx context.Context, gen uint64, deviceID string) {
	defer r.wg.Done()

	rec := eventlog.MonitorRecord{Action: eventlog.ActionStop, Generation: gen}
	if err := r.tr.StopMonitor(ctx, deviceID); err != nil {
		// Best-effort: a failed stop is logged and forgotten.
		rec.Err = err.Error()
	}
	r.hooks.MonitorStopped(deviceID)
	r.logMonitor(deviceID, rec)
}

func (r *Reconciler) logMonitor(deviceID string, rec eventlog.MonitorRecord) {
	r.logger.Log(eventlog.Event{
		Timestamp: time.Now(),
		Category:  eventlog.CategoryMonitor,
		DeviceID:  deviceID,
		Monitor:   &rec,
	})
}
