// Package monitor implements the monitor synchronization engine.
//
// The engine keeps the set of active push subscriptions converged with the
// desired set implied by the registered devices and the current mode, folds
// partial battery readings into device state, and derives exactly-once
// connect/disconnect/low-battery notifications. It must stay correct under
// overlapping asynchronous operations: mode switches mid-flight, device
// removal mid-subscribe, rapid add/remove churn.
//
// # Components
//
//   - MonitorSet: the engine's belief about live subscriptions. Injected
//     into the Reconciler so tests own its lifecycle.
//   - Reconciler: diffs desired against active, starts and stops
//     subscriptions, and guards commits with a generation token.
//   - Reader: bounded-retry one-shot reads with a fixed delay and an
//     injectable sleep.
//   - Ingestor: applies pushed report events and connection status events.
//   - Scheduler: drives the Reader over all registered devices on a timer
//     in polling mode.
//   - StateApplier: the one place where readings become store mutations and
//     notifications, shared by Reader, Ingestor, and Reconciler.
//
// # Generation Tokens
//
// Every reconciliation pass captures a fresh generation from an atomic
// counter. A start commits its subscription into the MonitorSet only while
// its generation is still current; the check and the commit happen under one
// mutex, the same mutex that orders generation bumps and set diffs. A
// superseded start discards its result and, when it already established a
// subscription, immediately stops it again. At most one pass's result is
// ever committed per device, no matter how many passes have I/O in flight.
//
// # Notification Call Sites
//
// Exactly two engine paths observe liveness transitions with notification
// rights: the Reader (connected on a successful read, disconnected on retry
// exhaustion, low-battery edges) and the Ingestor (connect/disconnect on
// explicit status flips, low-battery edges on reports). Report receipt flips
// a device to connected silently: liveness proof, not a user event. The
// Reconciler never notifies: a failed start marks the device disconnected
// quietly and the initial snapshot of a fresh subscription is merged without
// liveness claims.
package monitor
