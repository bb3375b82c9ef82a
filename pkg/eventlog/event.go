package eventlog

import "time"

// Event is one engine event. CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"2,keyasint"`

	// DeviceID is the affected device, when the event concerns one.
	DeviceID string `cbor:"3,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Reconcile    *ReconcileRecord    `cbor:"4,keyasint,omitempty"`
	Monitor      *MonitorRecord      `cbor:"5,keyasint,omitempty"`
	Read         *ReadRecord         `cbor:"6,keyasint,omitempty"`
	Report       *ReportRecord       `cbor:"7,keyasint,omitempty"`
	Status       *StatusRecord       `cbor:"8,keyasint,omitempty"`
	Notification *NotificationRecord `cbor:"9,keyasint,omitempty"`
	Error        *ErrorRecord        `cbor:"10,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryReconcile indicates a reconciliation pass summary.
	CategoryReconcile Category = 0
	// CategoryMonitor indicates a subscription start/stop outcome.
	CategoryMonitor Category = 1
	// CategoryRead indicates a completed read (with retries folded in).
	CategoryRead Category = 2
	// CategoryReport indicates a pushed battery report.
	CategoryReport Category = 3
	// CategoryStatus indicates a transport connection status change.
	CategoryStatus Category = 4
	// CategoryNotification indicates an emitted user notification.
	CategoryNotification Category = 5
	// CategoryError indicates an error event.
	CategoryError Category = 6
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryReconcile:
		return "RECONCILE"
	case CategoryMonitor:
		return "MONITOR"
	case CategoryRead:
		return "READ"
	case CategoryReport:
		return "REPORT"
	case CategoryStatus:
		return "STATUS"
	case CategoryNotification:
		return "NOTIFICATION"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ReconcileRecord summarizes one reconciliation pass.
type ReconcileRecord struct {
	// Generation is the pass's generation token.
	Generation uint64 `cbor:"1,keyasint"`

	// Desired is the size of the desired monitor set.
	Desired int `cbor:"2,keyasint"`

	// ToStart is how many subscriptions the pass set out to establish.
	ToStart int `cbor:"3,keyasint"`

	// ToStop is how many subscriptions the pass tore down.
	ToStop int `cbor:"4,keyasint"`
}

// MonitorAction is the kind of subscription operation.
type MonitorAction uint8

const (
	// ActionStart is a subscription establishment.
	ActionStart MonitorAction = 0
	// ActionStop is a subscription teardown.
	ActionStop MonitorAction = 1
	// ActionStopAll is the stop-all safety net.
	ActionStopAll MonitorAction = 2
	// ActionReversal is a superseded pass stopping its own fresh subscription.
	ActionReversal MonitorAction = 3
)

// String returns the action name.
func (a MonitorAction) String() string {
	switch a {
	case ActionStart:
		return "START"
	case ActionStop:
		return "STOP"
	case ActionStopAll:
		return "STOP_ALL"
	case ActionReversal:
		return "REVERSAL"
	default:
		return "UNKNOWN"
	}
}

// MonitorRecord captures one subscription operation outcome.
type MonitorRecord struct {
	// Action performed.
	Action MonitorAction `cbor:"1,keyasint"`

	// Generation of the pass that issued the operation.
	Generation uint64 `cbor:"2,keyasint,omitempty"`

	// Err is the failure message, empty on success.
	Err string `cbor:"3,keyasint,omitempty"`
}

// ReadRecord captures one completed read, including its retry history.
type ReadRecord struct {
	// Attempts actually performed.
	Attempts int `cbor:"1,keyasint"`

	// Budget is the attempt budget the read started with.
	Budget int `cbor:"2,keyasint"`

	// Succeeded reports whether any attempt returned data.
	Succeeded bool `cbor:"3,keyasint"`

	// Sources is the number of sources in the successful reading.
	Sources int `cbor:"4,keyasint,omitempty"`

	// Err is the last attempt's failure, empty on success.
	Err string `cbor:"5,keyasint,omitempty"`
}

// ReportRecord captures one pushed battery report.
type ReportRecord struct {
	// Descriptor labels the reporting source; empty for the central side.
	Descriptor string `cbor:"1,keyasint,omitempty"`

	// HasLevel reports whether the report carried a level.
	HasLevel bool `cbor:"2,keyasint"`

	// Level is the reported percentage, meaningful when HasLevel.
	Level int `cbor:"3,keyasint,omitempty"`
}

// StatusRecord captures a transport connection status change.
type StatusRecord struct {
	// Connected is the new state.
	Connected bool `cbor:"1,keyasint"`
}

// NotificationRecord captures an emitted user notification.
type NotificationRecord struct {
	// Kind is the notification kind name.
	Kind string `cbor:"1,keyasint"`

	// Body is the rendered message body.
	Body string `cbor:"2,keyasint,omitempty"`
}

// ErrorRecord captures errors at any engine layer.
type ErrorRecord struct {
	// Context describes what operation was being performed.
	Context string `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`
}
