package ports

import (
	"time"

	"github.com/tjfontaine/rd-mini/internal/core/domain"
)

// ModelCall describes a model invocation as seen before it runs.
type ModelCall struct {
	// TraceID overrides the generated trace ID
	TraceID        string
	Provider       string
	Model          string
	Input          any
	UserID         string
	ConversationID string
	Properties     map[string]any
	StartTime      time.Time
}

// ModelResult is what a wrapped model call reports on success.
type ModelResult struct {
	// Model is the model that actually served the call, if different
	Model     string
	Output    any
	Tokens    *domain.TokenUsage
	ToolCalls []domain.ToolCall
	// Properties are merged over the call properties
	Properties map[string]any
}

// Adapter translates a provider call into the canonical trace record.
// The core treats the result as opaque and never parses provider shapes.
type Adapter interface {
	// Provider returns the provider name this adapter handles.
	Provider() string

	// BuildTrace produces the trace for a finished call. res may be nil when
	// callErr is non-nil.
	BuildTrace(call ModelCall, res *ModelResult, callErr error, end time.Time) *domain.Trace
}
