package monitor

import (
	"context"
	"time"

	"github.com/battwatch/battwatch-go/pkg/battery"
	"github.com/battwatch/battwatch-go/pkg/eventlog"
	"github.com/battwatch/battwatch-go/pkg/transport"
)

const (
	// RetryDelay is the fixed wait between read attempts.
	RetryDelay = 500 * time.Millisecond

	// AttemptsWhileUp is the attempt budget for devices believed connected:
	// tolerate a transient miss or two before declaring them down, which
	// prevents flapping.
	AttemptsWhileUp = 3

	// AttemptsWhileDown is the attempt budget for devices already believed
	// disconnected: fail fast, the next cycle will try again.
	AttemptsWhileDown = 1
)

// ReadState is the explicit state of a read in progress.
type ReadState uint8

const (
	// ReadAttempting means the budget is not exhausted and no attempt has
	// succeeded yet.
	ReadAttempting ReadState = 0
	// ReadSucceeded means an attempt returned a reading.
	ReadSucceeded ReadState = 1
	// ReadExhausted means every budgeted attempt failed.
	ReadExhausted ReadState = 2
	// ReadAborted means the context was cancelled; no state was applied.
	ReadAborted ReadState = 3
)

// String returns the state name.
func (s ReadState) String() string {
	switch s {
	case ReadAttempting:
		return "attempting"
	case ReadSucceeded:
		return "succeeded"
	case ReadExhausted:
		return "exhausted"
	case ReadAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ReadOutcome is the final state of one read with its attempt history.
type ReadOutcome struct {
	DeviceID string
	State    ReadState
	Attempts int
	Budget   int
	Sources  []battery.Source
	Err      error
}

// SleepFunc waits for d or until the context is cancelled. Injectable so
// tests run without real timers.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepWithContext is the production SleepFunc.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reader performs bounded-retry battery reads and applies their outcome.
type Reader struct {
	tr      transport.Transport
	applier *StateApplier
	sleep   SleepFunc
	delay   time.Duration
	logger  eventlog.Logger
	hooks   Hooks
}

// NewReader creates a Reader. sleep may be nil for SleepWithContext; logger
// and hooks may be nil.
func NewReader(tr transport.Transport, applier *StateApplier, sleep SleepFunc, logger eventlog.Logger, hooks Hooks) *Reader {
	if sleep == nil {
		sleep = SleepWithContext
	}
	if logger == nil {
		logger = eventlog.NoopLogger{}
	}
	if hooks == nil {
		hooks = NoopHooks{}
	}
	return &Reader{
		tr:      tr,
		applier: applier,
		sleep:   sleep,
		delay:   RetryDelay,
		logger:  logger,
		hooks:   hooks,
	}
}

// Read performs one bounded-retry read of a device and applies the result:
// a success merges the reading and may flip the device to connected; an
// exhausted budget marks it disconnected. The budget is one attempt when the
// device is already believed down, three otherwise. Aborted reads (context
// cancellation) apply nothing.
func (r *Reader) Read(ctx context.Context, deviceID string) ReadOutcome {
	dev, known := r.applier.store.Get(deviceID)
	if !known {
		return ReadOutcome{DeviceID: deviceID, State: ReadAborted}
	}

	budget := AttemptsWhileUp
	if dev.Disconnected {
		budget = AttemptsWhileDown
	}

	outcome := r.run(ctx, deviceID, budget)

	switch outcome.State {
	case ReadSucceeded:
		r.applier.ApplySuccessfulRead(ctx, deviceID, outcome.Sources)
	case ReadExhausted:
		r.applier.ApplyReadExhausted(ctx, deviceID)
	}

	if outcome.State != ReadAborted {
		r.hooks.ReadCompleted(deviceID, outcome.Attempts, outcome.State == ReadSucceeded)
		rec := &eventlog.ReadRecord{
			Attempts:  outcome.Attempts,
			Budget:    outcome.Budget,
			Succeeded: outcome.State == ReadSucceeded,
			Sources:   len(outcome.Sources),
		}
		if outcome.Err != nil {
			rec.Err = outcome.Err.Error()
		}
		r.logger.Log(eventlog.Event{
			Timestamp: time.Now(),
			Category:  eventlog.CategoryRead,
			DeviceID:  deviceID,
			Read:      rec,
		})
	}
	return outcome
}

// run is the attempt state machine: Attempting(n) transitions to Succeeded
// on the first good attempt, to Exhausted when the budget runs out, and to
// Aborted when the context ends between attempts.
func (r *Reader) run(ctx context.Context, deviceID string, budget int) ReadOutcome {
	outcome := ReadOutcome{DeviceID: deviceID, State: ReadAttempting, Budget: budget}

	for outcome.State == ReadAttempting {
		outcome.Attempts++
		sources, err := r.tr.ReadInfo(ctx, deviceID)
		if err == nil {
			outcome.State = ReadSucceeded
			outcome.Sources = sources
			outcome.Err = nil
			break
		}
		outcome.Err = err

		if ctx.Err() != nil {
			outcome.State = ReadAborted
			break
		}
		if outcome.Attempts >= budget {
			outcome.State = ReadExhausted
			break
		}
		if err := r.sleep(ctx, r.delay); err != nil {
			outcome.State = ReadAborted
			outcome.Err = err
			break
		}
	}
	return outcome
}
