package domain

// InteractionState is the lifecycle state of an interaction.
// Transitions are Created -> Active -> Finished and happen exactly once.
type InteractionState string

const (
	InteractionCreated  InteractionState = "created"
	InteractionActive   InteractionState = "active"
	InteractionFinished InteractionState = "finished"
)

// SpanState is the lifecycle state of a span.
type SpanState string

const (
	SpanStarted SpanState = "started"
	SpanEnded   SpanState = "ended"
)

// Hook names used when reporting plugin failures.
const (
	HookInteractionStart = "on_interaction_start"
	HookInteractionEnd   = "on_interaction_end"
	HookSpan             = "on_span"
	HookTrace            = "on_trace"
	HookFlush            = "flush"
	HookShutdown         = "shutdown"
)
