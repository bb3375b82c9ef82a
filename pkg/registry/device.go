package registry

import (
	"encoding/json"
	"strings"

	"github.com/battwatch/battwatch-go/pkg/battery"
)

// Device is one registered device record.
type Device struct {
	// ID is the transport-level device identifier.
	ID string `json:"id"`

	// Name is the display name captured at registration time.
	Name string `json:"name"`

	// Sources holds the known battery sources, unique per descriptor.
	Sources []battery.Source `json:"sources,omitempty"`

	// Disconnected is true while the device is believed unreachable.
	Disconnected bool `json:"is_disconnected"`
}

// Clone returns a deep copy of the device.
func (d Device) Clone() Device {
	out := d
	out.Sources = battery.CloneSources(d.Sources)
	return out
}

// UnwrapID strips a foreign type-constructor wrapper from a device
// identifier, e.g. "DeviceId(af01bc)" becomes "af01bc". Earlier versions of
// the tracker persisted identifiers through a debug formatter that wrapped
// the raw token this way. Unwrapped identifiers pass through unchanged.
func UnwrapID(id string) string {
	open := strings.IndexByte(id, '(')
	if open <= 0 || !strings.HasSuffix(id, ")") {
		return id
	}
	for _, r := range id[:open] {
		if !isIdentRune(r) {
			return id
		}
	}
	inner := id[open+1 : len(id)-1]
	inner = strings.Trim(inner, `"`)
	if inner == "" {
		return id
	}
	return inner
}

func isIdentRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	}
	return false
}

// normalizeRecord decodes one persisted entry, repairing what it can.
// Returns false for entries beyond repair (no identifier, unparseable JSON).
func normalizeRecord(raw json.RawMessage) (Device, bool) {
	var rec Device
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Device{}, false
	}
	rec.ID = UnwrapID(strings.TrimSpace(rec.ID))
	if rec.ID == "" {
		return Device{}, false
	}
	rec.Sources = normalizeSources(rec.Sources)
	rec.Disconnected = true
	return rec, true
}

// normalizeSources enforces descriptor uniqueness (first occurrence wins) and
// nulls levels outside 0..100.
func normalizeSources(sources []battery.Source) []battery.Source {
	if len(sources) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(sources))
	out := make([]battery.Source, 0, len(sources))
	for _, s := range sources {
		key := s.DescriptorKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		if s.Level != nil && (*s.Level < 0 || *s.Level > 100) {
			s.Level = nil
		}
		out = append(out, s.Clone())
	}
	return out
}
