package wire

import (
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
	"time"

	"github.com/tjfontaine/rd-mini/internal/core/domain"
)

const (
	// LibraryName and LibraryVersion identify this client in $context.
	LibraryName    = "rd-mini-go"
	LibraryVersion = "0.1.0"

	// TraceEvent is the event name of standalone trace records.
	TraceEvent = "ai_interaction"
)

// SDKContext returns the $context metadata included in every event record.
func SDKContext() map[string]any {
	return map[string]any{
		"library": map[string]any{
			"name":    LibraryName,
			"version": LibraryVersion,
		},
		"metadata": map[string]any{
			"goVersion": runtime.Version(),
		},
	}
}

// FormatInteraction renders a finished interaction. end is the finish time
// used to compute latency_ms.
func FormatInteraction(ix *domain.Interaction, end time.Time) *Record {
	props := map[string]any{
		"$context":   SDKContext(),
		"latency_ms": end.Sub(ix.StartTime).Milliseconds(),
		"span_count": len(ix.Spans),
	}
	if ix.Error != "" {
		props["error"] = ix.Error
	}
	for k, v := range ix.Properties {
		props[k] = v
	}

	attachments := make([]Attachment, 0, len(ix.Attachments)+len(ix.Spans))
	for _, a := range ix.Attachments {
		attachments = append(attachments, formatAttachment(a))
	}
	for _, s := range ix.Spans {
		attachments = append(attachments, SpanAttachment(s))
	}

	event := ix.Event
	if event == "" {
		event = domain.DefaultEvent
	}

	rec := &Record{
		EventID:    ix.ID,
		UserID:     ix.UserID,
		Event:      event,
		Timestamp:  timestamp(ix.StartTime),
		Properties: props,
		AIData: AIData{
			Model:   ix.Model,
			Input:   ToAPIString(optionalString(ix.Input)),
			Output:  ToAPIString(optionalString(ix.Output)),
			ConvoID: ix.ConversationID,
		},
	}
	if len(attachments) > 0 {
		rec.Attachments = attachments
	}
	return rec
}

// FormatTrace renders a standalone trace.
func FormatTrace(tr *domain.Trace) *Record {
	props := map[string]any{
		"$context":   SDKContext(),
		"provider":   tr.Provider,
		"latency_ms": tr.Latency().Milliseconds(),
	}
	if tr.ConversationID != "" {
		props["conversation_id"] = tr.ConversationID
	}
	if tr.Tokens != nil {
		props["input_tokens"] = tr.Tokens.Input
		props["output_tokens"] = tr.Tokens.Output
		props["total_tokens"] = tr.Tokens.Total
	}
	if tr.Error != "" {
		props["error"] = tr.Error
	}
	for k, v := range tr.Properties {
		props[k] = v
	}

	rec := &Record{
		EventID:    tr.ID,
		UserID:     tr.UserID,
		Event:      TraceEvent,
		Timestamp:  timestamp(tr.StartTime),
		Properties: props,
		AIData: AIData{
			Model:   tr.Model,
			Input:   ToAPIString(tr.Input),
			Output:  ToAPIString(tr.Output),
			ConvoID: tr.ConversationID,
		},
	}

	for _, tc := range tr.ToolCalls {
		name := tc.Name
		if name == "" {
			name = "unknown"
		}
		rec.Attachments = append(rec.Attachments, Attachment{
			Type:     string(domain.AttachmentCode),
			Name:     "tool:" + name,
			Value:    safeJSON(toolCallSnapshot{Arguments: tc.Arguments, Result: tc.Result}),
			Role:     string(domain.RoleOutput),
			Language: "json",
		})
	}
	return rec
}

// SpanAttachment serializes a span as a code attachment named <kind>:<name>.
// There is no native nested-span wire format yet.
func SpanAttachment(s *domain.Span) Attachment {
	snap := spanSnapshot{
		SpanID:     s.ID,
		Input:      s.Input,
		Output:     s.Output,
		LatencyMs:  s.Latency().Milliseconds(),
		Properties: s.Properties,
	}
	if s.Error != "" {
		errMsg := s.Error
		snap.Error = &errMsg
	}
	return Attachment{
		Type:     string(domain.AttachmentCode),
		Name:     fmt.Sprintf("%s:%s", s.Kind, s.Name),
		Value:    safeJSON(snap),
		Role:     string(domain.RoleOutput),
		Language: "json",
	}
}

// FormatFeedback renders simple feedback on a prior event.
func FormatFeedback(eventID string, fb domain.Feedback, now time.Time) *SignalRecord {
	var name string
	var sentiment domain.Sentiment
	if fb.Score != nil {
		if *fb.Score >= 0.5 {
			name, sentiment = "positive", domain.SentimentPositive
		} else {
			name, sentiment = "negative", domain.SentimentNegative
		}
	} else {
		name = string(fb.Type)
		if name == "" {
			name = "negative"
		}
		sentiment = domain.SentimentNegative
		if fb.Type == domain.FeedbackThumbsUp {
			sentiment = domain.SentimentPositive
		}
	}

	signalType := fb.SignalType
	if signalType == "" {
		signalType = domain.SignalFeedback
	}

	ts := fb.Timestamp
	if ts == "" {
		ts = timestamp(now)
	}

	props := map[string]any{}
	if fb.Score != nil {
		props["score"] = *fb.Score
	}
	if fb.Comment != "" {
		props["comment"] = fb.Comment
	}
	for k, v := range fb.Properties {
		props[k] = v
	}

	return &SignalRecord{
		EventID:      eventID,
		SignalName:   name,
		SignalType:   string(signalType),
		Sentiment:    string(sentiment),
		Timestamp:    ts,
		Properties:   props,
		AttachmentID: fb.AttachmentID,
	}
}

// FormatSignal renders a fully specified signal.
func FormatSignal(sig domain.Signal, now time.Time) *SignalRecord {
	props := map[string]any{}
	if sig.Comment != "" {
		props["comment"] = sig.Comment
	}
	if sig.After != "" {
		props["after"] = sig.After
	}
	for k, v := range sig.Properties {
		props[k] = v
	}

	signalType := sig.Type
	if signalType == "" {
		signalType = domain.SignalDefault
	}
	sentiment := sig.Sentiment
	if sentiment == "" {
		sentiment = domain.SentimentNegative
	}

	return &SignalRecord{
		EventID:      sig.EventID,
		SignalName:   sig.Name,
		SignalType:   string(signalType),
		Sentiment:    string(sentiment),
		Timestamp:    timestamp(now),
		Properties:   props,
		AttachmentID: sig.AttachmentID,
	}
}

// FormatIdentify renders a user identification.
func FormatIdentify(userID string, traits domain.UserTraits) *IdentifyRecord {
	return &IdentifyRecord{
		UserID: userID,
		Traits: traits.Map(),
	}
}

// ToAPIString converts a value to the string form the API expects: nil stays
// nil, strings pass through, everything else is JSON-encoded.
func ToAPIString(v any) *string {
	var s string
	switch val := v.(type) {
	case nil:
		return nil
	case *string:
		if val == nil {
			return nil
		}
		s = *val
	case string:
		s = val
	case []byte:
		s = string(val)
	case fmt.Stringer:
		str, ok := Stringify(val)
		if !ok {
			if isNil(val) {
				return nil
			}
			str = safeJSON(val)
		}
		s = str
	default:
		s = safeJSON(val)
	}
	return &s
}

// Stringify calls v.String. It reports false when v is a nil pointer (or
// other nil reference) behind a non-nil interface, or when String panics.
func Stringify(v fmt.Stringer) (s string, ok bool) {
	if isNil(v) {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			s, ok = "", false
		}
	}()
	return v.String(), true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func formatAttachment(a domain.Attachment) Attachment {
	return Attachment{
		Type:         string(a.Type),
		Name:         a.Name,
		Value:        a.Value,
		Role:         string(a.Role),
		Language:     a.Language,
		AttachmentID: a.AttachmentID,
	}
}

// safeJSON encodes v, falling back to its fmt representation for values
// encoding/json rejects (channels, funcs, cycles).
func safeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func optionalString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
