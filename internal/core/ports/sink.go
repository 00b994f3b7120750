package ports

import (
	"context"
)

// EventKind identifies the kind of a rendered record, which decides the
// collector endpoint it is delivered to.
type EventKind string

const (
	EventTrace       EventKind = "trace"
	EventInteraction EventKind = "interaction"
	EventFeedback    EventKind = "feedback"
	EventIdentify    EventKind = "identify"
)

// Sink accepts rendered wire records for delivery. Implementations must never
// block the caller on network I/O.
type Sink interface {
	// Enqueue buffers a rendered record. Failures are logged, never returned.
	Enqueue(kind EventKind, payload any)

	// Flush delivers everything buffered so far and waits for the sends.
	Flush(ctx context.Context) error

	// Close flushes and waits for all in-flight sends.
	Close(ctx context.Context) error
}
