// Package eventlog provides structured engine event logging.
//
// This package defines the Logger interface and Event types for capturing
// what the monitor engine did and observed: reconciliation passes,
// subscription starts/stops, read attempts, pushed reports, status changes,
// and emitted notifications. It is separate from operational logging (slog):
// the event log is a complete machine-readable trace for debugging
// convergence problems after the fact.
//
// # Basic Usage
//
// Components accept a Logger; pass NoopLogger to disable capture:
//
//	// For development: events in the console via slog
//	logger := eventlog.NewSlogAdapter(slog.Default())
//
//	// For long runs: compact binary file
//	logger, _ := eventlog.NewFileLogger("~/.battwatch/engine.blog")
//
//	// Both at once
//	logger := eventlog.NewMultiLogger(
//	    eventlog.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a concatenation of CBOR-encoded events with integer keys,
// .blog extension by convention. The battwatch-log CLI views, filters, and
// exports them.
package eventlog
