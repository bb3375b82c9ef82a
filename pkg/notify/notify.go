package notify

import "fmt"

// Kind is the transition category of a notification.
type Kind uint8

const (
	// KindConnected fires when a device flips from disconnected to connected.
	KindConnected Kind = iota

	// KindDisconnected fires when a device flips from connected to disconnected.
	KindDisconnected

	// KindLowBattery fires when a source crosses into the low range.
	KindLowBattery
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindDisconnected:
		return "disconnected"
	case KindLowBattery:
		return "low_battery"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Transition describes one observed device state change.
type Transition struct {
	Kind Kind

	// SourceDescriptor labels the source that went low. Nil for the central
	// source and for connection transitions.
	SourceDescriptor *string

	// Level is the battery level that triggered a low-battery transition.
	Level int
}

// Connected builds a connected transition.
func Connected() Transition {
	return Transition{Kind: KindConnected}
}

// Disconnected builds a disconnected transition.
func Disconnected() Transition {
	return Transition{Kind: KindDisconnected}
}

// LowBattery builds a low-battery transition for one source.
func LowBattery(descriptor *string, level int) Transition {
	return Transition{Kind: KindLowBattery, SourceDescriptor: descriptor, Level: level}
}

// Flags enables notification kinds individually.
type Flags struct {
	Connected    bool `json:"connected" yaml:"connected"`
	Disconnected bool `json:"disconnected" yaml:"disconnected"`
	LowBattery   bool `json:"low_battery" yaml:"low_battery"`
}

// DefaultFlags enables everything.
func DefaultFlags() Flags {
	return Flags{Connected: true, Disconnected: true, LowBattery: true}
}

func (f Flags) enabled(k Kind) bool {
	switch k {
	case KindConnected:
		return f.Connected
	case KindDisconnected:
		return f.Disconnected
	case KindLowBattery:
		return f.LowBattery
	default:
		return false
	}
}

// Message is a ready-to-deliver notification.
type Message struct {
	DeviceID   string
	DeviceName string
	Kind       Kind

	// SourceDescriptor and Level carry low-battery details; descriptor is
	// nil for the central source.
	SourceDescriptor *string
	Level            int

	Title string
	Body  string
}

// Build constructs the message for a transition, or reports false when the
// corresponding flag is off. Pure; safe to call from any goroutine.
func Build(deviceID, deviceName string, tr Transition, flags Flags) (Message, bool) {
	if !flags.enabled(tr.Kind) {
		return Message{}, false
	}

	title := deviceName
	if title == "" {
		title = deviceID
	}

	msg := Message{
		DeviceID:         deviceID,
		DeviceName:       deviceName,
		Kind:             tr.Kind,
		SourceDescriptor: tr.SourceDescriptor,
		Level:            tr.Level,
		Title:            title,
	}

	switch tr.Kind {
	case KindConnected:
		msg.Body = "Connected"
	case KindDisconnected:
		msg.Body = "Disconnected"
	case KindLowBattery:
		if tr.SourceDescriptor != nil && *tr.SourceDescriptor != "" {
			msg.Body = fmt.Sprintf("%s battery low (%d%%)", *tr.SourceDescriptor, tr.Level)
		} else {
			msg.Body = fmt.Sprintf("Battery low (%d%%)", tr.Level)
		}
	}
	return msg, true
}
