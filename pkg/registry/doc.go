// Package registry owns the registered-device list and its persistence.
//
// The store is the single owner of device records. Engine components never
// hold references into it; they mutate through Update, an atomic
// read-modify-write of one device, and read through deep-copying accessors.
// Every mutation persists the full list before returning, so a crash never
// loses more than the interleaving of concurrent writers (last write wins;
// partial files cannot occur because writes go through a temp file rename).
//
// Loading is tolerant: entries written by earlier versions of the tracker
// are normalized rather than rejected. Missing fields default, identifiers
// wrapped in a foreign type constructor are unwrapped, out-of-range levels
// become unknown, and entries beyond repair are dropped. Loaded devices
// always start disconnected until a fresh read or event proves liveness.
package registry
