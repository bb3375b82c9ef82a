package monitor

import "fmt"

// Mode selects how battery state is kept fresh.
type Mode uint8

const (
	// ModePolling reads every registered device on a timer.
	ModePolling Mode = 0

	// ModeNotifications subscribes to pushed reports from every registered
	// device.
	ModeNotifications Mode = 1
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModePolling:
		return "polling"
	case ModeNotifications:
		return "notifications"
	default:
		return fmt.Sprintf("mode(%d)", m)
	}
}

// ParseMode parses a mode name as written in config files and console input.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "polling", "poll":
		return ModePolling, nil
	case "notifications", "notification", "push":
		return ModeNotifications, nil
	default:
		return ModePolling, fmt.Errorf("unknown mode %q", s)
	}
}

// DesiredSet derives the device IDs that should hold a subscription:
// all registered IDs in notification mode, none otherwise.
func DesiredSet(mode Mode, registered []string) []string {
	if mode != ModeNotifications {
		return nil
	}
	return registered
}
