package notify

import (
	"context"
	"log/slog"
)

// Sink delivers built notifications. The OS notification mechanism lives
// behind this boundary; the engine never blocks on delivery semantics beyond
// the context.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, msg Message) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// SlogSink logs notifications instead of delivering them. Useful for
// headless runs and as a development stand-in for a platform sink.
type SlogSink struct {
	Log *slog.Logger
}

// Deliver implements Sink.
func (s SlogSink) Deliver(ctx context.Context, msg Message) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification",
		"device", msg.DeviceID,
		"name", msg.DeviceName,
		"kind", msg.Kind.String(),
		"body", msg.Body,
	)
	return nil
}

// MultiSink fans a notification out to several sinks. Every sink sees every
// message; the first error is returned after all deliveries ran.
type MultiSink []Sink

// Deliver implements Sink.
func (m MultiSink) Deliver(ctx context.Context, msg Message) error {
	var first error
	for _, s := range m {
		if err := s.Deliver(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ Sink = SinkFunc(nil)
	_ Sink = SlogSink{}
	_ Sink = MultiSink{}
)
