package transport

import (
	"context"

	"github.com/battwatch/battwatch-go/pkg/battery"
)

// DeviceInfo identifies a discoverable device.
type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReportEvent is a battery reading pushed by a monitored device.
type ReportEvent struct {
	DeviceID string
	Source   battery.Source
}

// StatusEvent is a connection state change observed by the transport for a
// monitored device.
type StatusEvent struct {
	DeviceID  string
	Connected bool
}

// Transport is the wireless stack as seen by the engine.
// Implemented by bridge.Client and transporttest.Fake.
//
// All calls are safe for concurrent use. Report and status callbacks are
// invoked from transport-owned goroutines; registering a nil callback
// disables delivery for that stream.
type Transport interface {
	// ListDevices scans for nearby devices advertising battery service.
	// Callers bound the scan with the context; see ScanTimeout.
	ListDevices(ctx context.Context) ([]DeviceInfo, error)

	// ReadInfo performs a one-shot read of all battery sources of a device.
	// An error means the device is unreachable right now.
	ReadInfo(ctx context.Context, deviceID string) ([]battery.Source, error)

	// StartMonitor subscribes to battery reports from a device and returns
	// the initial reading. An empty slice with a nil error means the
	// subscription is established but the device answered nothing yet.
	StartMonitor(ctx context.Context, deviceID string) ([]battery.Source, error)

	// StopMonitor tears down the subscription for a device. Idempotent;
	// stopping an unmonitored device is not an error.
	StopMonitor(ctx context.Context, deviceID string) error

	// StopAllMonitors tears down every active subscription.
	StopAllMonitors(ctx context.Context) error

	// OnReport registers the callback for pushed battery reports.
	OnReport(fn func(ReportEvent))

	// OnStatus registers the callback for connection status changes.
	OnStatus(fn func(StatusEvent))
}
