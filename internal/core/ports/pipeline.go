// Package ports defines the core interfaces of the telemetry client.
// This file contains the plugin hook interfaces invoked by the plugin pipeline.
package ports

import (
	"context"

	"github.com/tjfontaine/rd-mini/internal/core/domain"
)

// Plugin is an observer/mutator registered with the client.
// Every hook is optional: a plugin implements only the hook interfaces below
// that it cares about, and the pipeline detects them by type assertion.
type Plugin interface {
	// Name returns the unique identifier for this plugin (used in logs).
	Name() string
}

// InteractionStarter is called when an interaction begins.
type InteractionStarter interface {
	OnInteractionStart(ix *domain.Interaction) error
}

// InteractionEnder is called when an interaction finishes, before it is
// rendered. Mutations made here are reflected in what is sent.
type InteractionEnder interface {
	OnInteractionEnd(ix *domain.Interaction) error
}

// SpanObserver is called when a span ends, before it is attached or dispatched.
type SpanObserver interface {
	OnSpan(span *domain.Span) error
}

// TraceObserver is called for standalone model-call traces before rendering.
type TraceObserver interface {
	OnTrace(trace *domain.Trace) error
}

// Flusher is called before the transport flushes so buffering plugins can emit.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Shutdowner is called once when the client closes.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}
