package battery

// LowThreshold is the battery percentage at or below which a source is
// considered low. Crossing from above to at-or-below this value is the
// low-battery trigger condition.
const LowThreshold = 20

// Source is one battery reading slot of a device.
//
// Descriptor is the user description of the physical part the source belongs
// to (nil for the central/only part). Level is the last known charge in
// percent, nil when no level has ever been observed.
type Source struct {
	Descriptor *string `json:"user_descriptor"`
	Level      *int    `json:"battery_level"`
}

// Clone returns a deep copy of the source.
func (s Source) Clone() Source {
	out := Source{}
	if s.Descriptor != nil {
		d := *s.Descriptor
		out.Descriptor = &d
	}
	if s.Level != nil {
		l := *s.Level
		out.Level = &l
	}
	return out
}

// DescriptorKey returns the descriptor value, with nil mapped to the empty
// string. Sources compare equal per device when their keys match.
func (s Source) DescriptorKey() string {
	if s.Descriptor == nil {
		return ""
	}
	return *s.Descriptor
}

// LevelKnown reports whether the source carries a level.
func (s Source) LevelKnown() bool {
	return s.Level != nil
}

// IsLow reports whether the source level is known and at or below LowThreshold.
func (s Source) IsLow() bool {
	return s.Level != nil && *s.Level <= LowThreshold
}

// CloneSources deep-copies a source slice.
func CloneSources(sources []Source) []Source {
	if sources == nil {
		return nil
	}
	out := make([]Source, len(sources))
	for i, s := range sources {
		out[i] = s.Clone()
	}
	return out
}

// NewSource builds a source from optional raw values, for callers that hold
// plain values rather than pointers.
func NewSource(descriptor string, hasDescriptor bool, level int, hasLevel bool) Source {
	s := Source{}
	if hasDescriptor {
		d := descriptor
		s.Descriptor = &d
	}
	if hasLevel {
		l := level
		s.Level = &l
	}
	return s
}

// Desc returns a pointer to the given descriptor value. Convenience for
// literal source construction.
func Desc(d string) *string {
	return &d
}

// Lvl returns a pointer to the given level value. Convenience for literal
// source construction.
func Lvl(l int) *int {
	return &l
}
