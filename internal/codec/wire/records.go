// Package wire renders domain records into the collector's JSON wire format.
// All functions are pure: they read the domain values and return new records.
package wire

// Record is the wire shape of an interaction or a standalone trace, delivered
// to /v1/events/track.
type Record struct {
	EventID     string         `json:"event_id"`
	UserID      string         `json:"user_id,omitempty"`
	Event       string         `json:"event"`
	Timestamp   string         `json:"timestamp"`
	Properties  map[string]any `json:"properties"`
	AIData      AIData         `json:"ai_data"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

// AIData carries the model-facing part of a record. Input and Output are
// null when absent.
type AIData struct {
	Model   string  `json:"model,omitempty"`
	Input   *string `json:"input"`
	Output  *string `json:"output"`
	ConvoID string  `json:"convo_id,omitempty"`
}

// Attachment is the wire shape of an attachment.
type Attachment struct {
	Type         string `json:"type"`
	Name         string `json:"name,omitempty"`
	Value        string `json:"value"`
	Role         string `json:"role"`
	Language     string `json:"language,omitempty"`
	AttachmentID string `json:"attachment_id,omitempty"`
}

// SignalRecord is the wire shape of feedback and signals, delivered to
// /v1/signals/track.
type SignalRecord struct {
	EventID      string         `json:"event_id"`
	SignalName   string         `json:"signal_name"`
	SignalType   string         `json:"signal_type"`
	Sentiment    string         `json:"sentiment"`
	Timestamp    string         `json:"timestamp"`
	Properties   map[string]any `json:"properties"`
	AttachmentID string         `json:"attachment_id,omitempty"`
}

// IdentifyRecord is delivered individually to /v1/users/identify.
type IdentifyRecord struct {
	UserID string         `json:"user_id"`
	Traits map[string]any `json:"traits"`
}

// spanSnapshot is the JSON value stored in a span-derived attachment.
type spanSnapshot struct {
	SpanID     string         `json:"spanId"`
	Input      any            `json:"input"`
	Output     any            `json:"output"`
	LatencyMs  int64          `json:"latencyMs"`
	Error      *string        `json:"error"`
	Properties map[string]any `json:"properties"`
}

// toolCallSnapshot is the JSON value stored in a tool-call attachment.
type toolCallSnapshot struct {
	Arguments any `json:"arguments"`
	Result    any `json:"result"`
}
