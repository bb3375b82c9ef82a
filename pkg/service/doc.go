// Package service is the outer surface of the battery tracker: it owns the
// engine components, the current monitoring mode, and the operations the
// UI/config collaborator calls (scan, add, remove, set mode, reload).
//
// The service derives the desired monitor set from the registered devices and
// the mode, and reconciles on every change to either. All failure outcomes of
// the engine are expressed as device state; the only errors this package
// returns are user-facing ones (scan failures, duplicate registrations).
package service
