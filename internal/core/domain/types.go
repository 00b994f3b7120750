package domain

import (
	"time"
)

// SpanKind distinguishes tool calls from nested model calls.
type SpanKind string

const (
	SpanKindTool SpanKind = "tool"
	SpanKindAI   SpanKind = "ai"
)

// Span is one timed sub-step inside an interaction, or a standalone call when
// no interaction was active.
type Span struct {
	// ID uniquely identifies the span
	ID string `json:"id"`

	// ParentID is the enclosing interaction ID; empty for standalone spans
	ParentID string `json:"parent_id,omitempty"`

	Name string   `json:"name"`
	Kind SpanKind `json:"kind"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Input  any `json:"input,omitempty"`
	Output any `json:"output,omitempty"`

	// Error is the message of the error returned by the wrapped operation
	Error string `json:"error,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`
}

// Latency returns the span duration, or zero if it has not ended.
func (s *Span) Latency() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// TokenUsage holds token counts reported (or estimated) for a model call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// ToolCall is a tool invocation requested by a model.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
	Result    any    `json:"result,omitempty"`
}

// Trace is a standalone AI call record with no enclosing interaction.
// Provider adapters produce it atomically; it is never mutated afterwards
// except by plugins before rendering.
type Trace struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`

	Input  any `json:"input,omitempty"`
	Output any `json:"output,omitempty"`

	Tokens    *TokenUsage `json:"tokens,omitempty"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`

	Error      string         `json:"error,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Latency returns the trace duration.
func (t *Trace) Latency() time.Duration {
	if t.EndTime.IsZero() {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}

// FeedbackType is a simple thumbs rating.
type FeedbackType string

const (
	FeedbackThumbsUp   FeedbackType = "thumbs_up"
	FeedbackThumbsDown FeedbackType = "thumbs_down"
)

// Sentiment of a signal.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
)

// SignalType classifies a signal.
type SignalType string

const (
	SignalDefault  SignalType = "default"
	SignalFeedback SignalType = "feedback"
	SignalEdit     SignalType = "edit"
	SignalStandard SignalType = "standard"
)

// Feedback is a simple user judgment on a prior trace or interaction.
type Feedback struct {
	Type FeedbackType
	// Score in [0,1]; takes precedence over Type when set
	Score        *float64
	Comment      string
	SignalType   SignalType
	AttachmentID string
	// Timestamp overrides the send time (RFC 3339)
	Timestamp  string
	Properties map[string]any
}

// Signal is a fully specified judgment on a prior trace or interaction.
type Signal struct {
	EventID      string
	Name         string
	Type         SignalType
	Sentiment    Sentiment
	Comment      string
	After        string
	AttachmentID string
	Properties   map[string]any
}

// UserTraits describe an identified user.
type UserTraits struct {
	Name  string
	Email string
	Plan  string
	Extra map[string]any
}

// Map flattens the traits into the wire representation.
func (u UserTraits) Map() map[string]any {
	out := make(map[string]any, len(u.Extra)+3)
	if u.Name != "" {
		out["name"] = u.Name
	}
	if u.Email != "" {
		out["email"] = u.Email
	}
	if u.Plan != "" {
		out["plan"] = u.Plan
	}
	for k, v := range u.Extra {
		out[k] = v
	}
	return out
}
