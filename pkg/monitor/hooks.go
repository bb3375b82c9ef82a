package monitor

// Hooks receives engine progress callbacks, e.g. for metrics. Implementations
// must be safe for concurrent use and must not block.
type Hooks interface {
	// ReconcilePass is called once per reconciliation pass.
	ReconcilePass(generation uint64, desired, toStart, toStop int)

	// PassSuperseded is called when a start discards its result because a
	// newer generation began.
	PassSuperseded(generation uint64)

	// MonitorStarted is called when a subscription commits.
	MonitorStarted(deviceID string)

	// MonitorStopped is called when a subscription is torn down.
	MonitorStopped(deviceID string)

	// ReadCompleted is called after a read finishes its attempt budget.
	ReadCompleted(deviceID string, attempts int, succeeded bool)

	// ReportIngested is called for every accepted report event.
	ReportIngested(deviceID string)

	// NotificationEmitted is called per delivered notification kind.
	NotificationEmitted(kind string)
}

// NoopHooks ignores all callbacks.
type NoopHooks struct{}

func (NoopHooks) ReconcilePass(uint64, int, int, int) {}
func (NoopHooks) PassSuperseded(uint64)               {}
func (NoopHooks) MonitorStarted(string)               {}
func (NoopHooks) MonitorStopped(string)               {}
func (NoopHooks) ReadCompleted(string, int, bool)     {}
func (NoopHooks) ReportIngested(string)               {}
func (NoopHooks) NotificationEmitted(string)          {}

// Compile-time interface satisfaction check.
var _ Hooks = NoopHooks{}
