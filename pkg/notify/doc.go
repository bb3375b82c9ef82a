// Package notify builds user notifications from device state transitions.
//
// Message construction is centralized here because two independent engine
// paths (the retrying reader and the event ingestor) can observe the same
// logical transition; only the path that actually performs a state flip
// builds a message, and both build it identically. Building is a pure
// function of the transition and the enable flags; delivery is behind the
// Sink interface, where the platform notification mechanism lives.
package notify
