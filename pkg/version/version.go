// Package version provides bridge protocol version parsing and comparison.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the bridge protocol version implemented by this module.
const Current = "1.0"

// BridgeVersion represents a parsed "major.minor" protocol version.
type BridgeVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (BridgeVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return BridgeVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return BridgeVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return BridgeVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return BridgeVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// MustParse parses a version string, panicking on failure. For constants.
func MustParse(s string) BridgeVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v BridgeVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
// Minor revisions only add optional behavior.
func (v BridgeVersion) Compatible(other BridgeVersion) bool {
	return v.Major == other.Major
}
