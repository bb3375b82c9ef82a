package service

import (
	"fmt"

	"github.com/battwatch/battwatch-go/pkg/monitor"
)

// EventKind classifies a service event.
type EventKind uint8

const (
	// EventStarted fires when the service starts.
	EventStarted EventKind = iota

	// EventStopped fires when the service stops.
	EventStopped

	// EventScanCompleted fires after a discovery scan, successful or not.
	EventScanCompleted

	// EventDeviceAdded fires when a device is registered.
	EventDeviceAdded

	// EventDeviceRemoved fires when a device is unregistered.
	EventDeviceRemoved

	// EventModeChanged fires when the monitoring mode switches.
	EventModeChanged
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventScanCompleted:
		return "scan_completed"
	case EventDeviceAdded:
		return "device_added"
	case EventDeviceRemoved:
		return "device_removed"
	case EventModeChanged:
		return "mode_changed"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Event is one service-level occurrence, for consoles and feeds.
type Event struct {
	Kind EventKind

	// DeviceID is set for device add/remove events.
	DeviceID string

	// Mode is the mode in effect after the event.
	Mode monitor.Mode

	// Found is the device count for scan events.
	Found int

	// Err is the displayable failure, set on failed scans.
	Err string
}
