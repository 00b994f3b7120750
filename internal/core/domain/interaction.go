package domain

import (
	"time"
)

// Interaction is one logical unit of work tracked end-to-end. It may contain
// several spans (tool calls, nested model calls) and is sent as a single record
// once finished.
type Interaction struct {
	// ID uniquely identifies this interaction (caller-supplied or generated)
	ID string `json:"id"`

	// UserID identifies the end user, defaulting to the identified user
	UserID string `json:"user_id,omitempty"`

	// ConversationID groups interactions belonging to the same conversation
	ConversationID string `json:"conversation_id,omitempty"`

	// StartTime is when the interaction began
	StartTime time.Time `json:"start_time"`

	// Input is the user-facing input of the interaction
	Input string `json:"input,omitempty"`

	// Output is the user-facing output of the interaction
	Output string `json:"output,omitempty"`

	// Model optionally names the primary model used
	Model string `json:"model,omitempty"`

	// Event is the event name sent to the collector (default "interaction")
	Event string `json:"event"`

	// Properties contains arbitrary caller-defined key-value pairs
	Properties map[string]any `json:"properties,omitempty"`

	// Attachments are caller-supplied attachments
	Attachments []Attachment `json:"attachments,omitempty"`

	// Spans are the finished sub-steps in completion order
	Spans []*Span `json:"spans,omitempty"`

	// Error is set when a scoped interaction ended with an error
	Error string `json:"error,omitempty"`
}

// DefaultEvent is the event name used when none is given.
const DefaultEvent = "interaction"

// NewInteraction creates an interaction with initialized collections.
func NewInteraction(id string) *Interaction {
	return &Interaction{
		ID:         id,
		Event:      DefaultEvent,
		StartTime:  time.Now(),
		Properties: make(map[string]any),
	}
}

// AttachmentType is the kind of content carried by an attachment.
type AttachmentType string

const (
	AttachmentCode   AttachmentType = "code"
	AttachmentText   AttachmentType = "text"
	AttachmentImage  AttachmentType = "image"
	AttachmentIframe AttachmentType = "iframe"
)

// AttachmentRole indicates whether an attachment is part of the input or output.
type AttachmentRole string

const (
	RoleInput  AttachmentRole = "input"
	RoleOutput AttachmentRole = "output"
)

// Attachment is extra content attached to an interaction or trace.
type Attachment struct {
	Type     AttachmentType `json:"type"`
	Name     string         `json:"name,omitempty"`
	Value    string         `json:"value"`
	Role     AttachmentRole `json:"role"`
	Language string         `json:"language,omitempty"`
	// AttachmentID allows signals to target this attachment
	AttachmentID string `json:"attachment_id,omitempty"`
}

// BeginOptions configures a new interaction.
type BeginOptions struct {
	// EventID overrides the generated interaction ID
	EventID        string
	UserID         string
	Event          string
	Input          string
	Model          string
	ConversationID string
	Properties     map[string]any
	Attachments    []Attachment
}

// FinishOptions carries values merged into an interaction when it finishes.
type FinishOptions struct {
	// Output replaces the current output when non-empty
	Output      string
	Properties  map[string]any
	Attachments []Attachment
}
