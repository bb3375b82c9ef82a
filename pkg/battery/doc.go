// Package battery defines the battery source model shared across the engine.
//
// A device exposes one or more battery sources. Single-unit devices expose
// exactly one source with no descriptor. Multi-part devices (split keyboards)
// expose one source per physical part, distinguished by the user description
// reported alongside the battery level. Sources are identified per device by
// descriptor value; two sources of the same device never share a descriptor.
//
// # Merge Semantics
//
// Readings arrive as partial snapshots: a report may omit sources, and a
// present source may carry a nil level when the device answered the read but
// not the value. Merge folds a new reading into known state without ever
// regressing a known level to unknown:
//
//   - a source with a non-nil level replaces the stored level verbatim
//   - a source with a nil level keeps the previously stored level, if any
//   - stored sources absent from the reading are left untouched
//
// Merging the same reading twice yields the same result as merging it once.
package battery
