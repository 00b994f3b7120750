package wire

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/rd-mini/internal/core/domain"
)

func TestFormatInteraction(t *testing.T) {
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	ix := domain.NewInteraction("e1")
	ix.StartTime = start
	ix.UserID = "user-1"
	ix.ConversationID = "conv-1"
	ix.Input = "what is up"
	ix.Output = "not much"
	ix.Properties["tier"] = "gold"
	ix.Attachments = []domain.Attachment{{
		Type:         domain.AttachmentText,
		Name:         "doc",
		Value:        "hello",
		Role:         domain.RoleInput,
		AttachmentID: "att-1",
	}}
	ix.Spans = []*domain.Span{{
		ID:        "span_1",
		ParentID:  "e1",
		Name:      "search",
		Kind:      domain.SpanKindTool,
		StartTime: start,
		EndTime:   start.Add(25 * time.Millisecond),
		Input:     map[string]any{"q": "docs"},
		Output:    []string{"a", "b"},
	}}

	rec := FormatInteraction(ix, start.Add(250*time.Millisecond))

	if rec.EventID != "e1" || rec.UserID != "user-1" || rec.Event != "interaction" {
		t.Errorf("unexpected header fields: %+v", rec)
	}
	if rec.Timestamp != "2025-01-02T03:04:05Z" {
		t.Errorf("unexpected timestamp %q", rec.Timestamp)
	}
	if rec.Properties["latency_ms"] != int64(250) {
		t.Errorf("expected latency_ms 250, got %v", rec.Properties["latency_ms"])
	}
	if rec.Properties["span_count"] != 1 {
		t.Errorf("expected span_count 1, got %v", rec.Properties["span_count"])
	}
	if rec.Properties["tier"] != "gold" {
		t.Errorf("expected custom property to be merged")
	}
	if _, ok := rec.Properties["error"]; ok {
		t.Error("error should be absent on success")
	}
	if rec.AIData.Input == nil || *rec.AIData.Input != "what is up" {
		t.Errorf("unexpected input %v", rec.AIData.Input)
	}
	if rec.AIData.ConvoID != "conv-1" {
		t.Errorf("unexpected convo_id %q", rec.AIData.ConvoID)
	}

	if len(rec.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(rec.Attachments))
	}
	if rec.Attachments[0].AttachmentID != "att-1" {
		t.Errorf("caller attachment should come first and keep its id")
	}

	spanAtt := rec.Attachments[1]
	if spanAtt.Name != "tool:search" || spanAtt.Type != "code" || spanAtt.Language != "json" {
		t.Errorf("unexpected span attachment: %+v", spanAtt)
	}
	var snap map[string]any
	if err := json.Unmarshal([]byte(spanAtt.Value), &snap); err != nil {
		t.Fatalf("span attachment value is not JSON: %v", err)
	}
	if snap["spanId"] != "span_1" || snap["latencyMs"] != float64(25) {
		t.Errorf("unexpected span snapshot: %v", snap)
	}
	if snap["error"] != nil {
		t.Errorf("expected null error, got %v", snap["error"])
	}
}

func TestFormatInteraction_ErrorAndEmptyOutput(t *testing.T) {
	ix := domain.NewInteraction("e2")
	ix.Event = "q"
	ix.Error = "boom"

	rec := FormatInteraction(ix, ix.StartTime)

	if rec.Properties["error"] != "boom" {
		t.Errorf("expected error property, got %v", rec.Properties["error"])
	}
	if rec.AIData.Output != nil {
		t.Errorf("expected null output, got %q", *rec.AIData.Output)
	}
	if rec.Attachments != nil {
		t.Errorf("expected no attachments, got %v", rec.Attachments)
	}

	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"output":null`) {
		t.Errorf("expected explicit null output in %s", b)
	}
}

func TestFormatTrace(t *testing.T) {
	start := time.Now()
	tr := &domain.Trace{
		ID:             "trace_1",
		Provider:       "openai",
		Model:          "gpt-4o",
		Input:          []map[string]string{{"role": "user", "content": "hi"}},
		Output:         "hello",
		Tokens:         &domain.TokenUsage{Input: 3, Output: 5, Total: 8},
		ToolCalls:      []domain.ToolCall{{Name: "lookup", Arguments: map[string]any{"id": 1}}, {}},
		StartTime:      start,
		EndTime:        start.Add(time.Second),
		ConversationID: "conv",
	}

	rec := FormatTrace(tr)

	if rec.Event != TraceEvent {
		t.Errorf("expected event %q, got %q", TraceEvent, rec.Event)
	}
	if rec.AIData.Model != "gpt-4o" {
		t.Errorf("unexpected model %q", rec.AIData.Model)
	}
	if rec.Properties["total_tokens"] != 8 || rec.Properties["provider"] != "openai" {
		t.Errorf("unexpected properties: %v", rec.Properties)
	}
	if rec.Properties["latency_ms"] != int64(1000) {
		t.Errorf("expected latency 1000, got %v", rec.Properties["latency_ms"])
	}
	if rec.AIData.Input == nil || !strings.Contains(*rec.AIData.Input, `"role":"user"`) {
		t.Errorf("expected JSON-encoded input, got %v", rec.AIData.Input)
	}
	if len(rec.Attachments) != 2 || rec.Attachments[0].Name != "tool:lookup" || rec.Attachments[1].Name != "tool:unknown" {
		t.Errorf("unexpected tool attachments: %+v", rec.Attachments)
	}
	if _, ok := rec.Properties["$context"].(map[string]any); !ok {
		t.Error("expected $context metadata")
	}
}

func TestFormatFeedback(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	high, low := 0.9, 0.1

	tests := []struct {
		name          string
		fb            domain.Feedback
		wantName      string
		wantSentiment string
	}{
		{name: "high score", fb: domain.Feedback{Score: &high}, wantName: "positive", wantSentiment: "POSITIVE"},
		{name: "low score", fb: domain.Feedback{Score: &low}, wantName: "negative", wantSentiment: "NEGATIVE"},
		{name: "thumbs up", fb: domain.Feedback{Type: domain.FeedbackThumbsUp}, wantName: "thumbs_up", wantSentiment: "POSITIVE"},
		{name: "thumbs down", fb: domain.Feedback{Type: domain.FeedbackThumbsDown}, wantName: "thumbs_down", wantSentiment: "NEGATIVE"},
		{name: "empty", fb: domain.Feedback{}, wantName: "negative", wantSentiment: "NEGATIVE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := FormatFeedback("trace_1", tt.fb, now)
			if rec.SignalName != tt.wantName {
				t.Errorf("signal_name = %q, want %q", rec.SignalName, tt.wantName)
			}
			if rec.Sentiment != tt.wantSentiment {
				t.Errorf("sentiment = %q, want %q", rec.Sentiment, tt.wantSentiment)
			}
			if rec.SignalType != "feedback" {
				t.Errorf("signal_type = %q, want feedback", rec.SignalType)
			}
			if rec.Timestamp != "2025-06-01T00:00:00Z" {
				t.Errorf("unexpected timestamp %q", rec.Timestamp)
			}
		})
	}
}

func TestFormatSignal_Defaults(t *testing.T) {
	rec := FormatSignal(domain.Signal{
		EventID: "trace_1",
		Name:    "edit",
		After:   "corrected text",
	}, time.Now())

	if rec.SignalType != "default" || rec.Sentiment != "NEGATIVE" {
		t.Errorf("unexpected defaults: %+v", rec)
	}
	if rec.Properties["after"] != "corrected text" {
		t.Errorf("expected after property, got %v", rec.Properties)
	}
}

func TestFormatIdentify(t *testing.T) {
	rec := FormatIdentify("u1", domain.UserTraits{Email: "a@b.c"})
	if rec.UserID != "u1" || rec.Traits["email"] != "a@b.c" {
		t.Errorf("unexpected identify record: %+v", rec)
	}
}

type stringer struct{}

func (stringer) String() string { return "stringer" }

func TestToAPIString(t *testing.T) {
	if ToAPIString(nil) != nil {
		t.Error("nil should stay nil")
	}
	if got := *ToAPIString("x"); got != "x" {
		t.Errorf("string passthrough: got %q", got)
	}
	if got := *ToAPIString([]byte("raw")); got != "raw" {
		t.Errorf("bytes: got %q", got)
	}
	if got := *ToAPIString(stringer{}); got != "stringer" {
		t.Errorf("stringer: got %q", got)
	}
	if got := *ToAPIString(map[string]int{"a": 1}); got != `{"a":1}` {
		t.Errorf("json: got %q", got)
	}
	if got := *ToAPIString(make(chan int)); !strings.HasPrefix(got, "0x") {
		t.Errorf("unencodable values should fall back to fmt, got %q", got)
	}
	var nilPtr *string
	if ToAPIString(nilPtr) != nil {
		t.Error("nil *string should stay nil")
	}
}

type brokenStringer struct {
	N int
}

func (b brokenStringer) String() string { panic("broken") }

func TestToAPIString_NilAndPanickingStringers(t *testing.T) {
	var u *url.URL
	if got := ToAPIString(u); got != nil {
		t.Errorf("nil Stringer pointer should be nil, got %q", *got)
	}
	if got := *ToAPIString(brokenStringer{N: 1}); got != `{"N":1}` {
		t.Errorf("panicking String should fall back to JSON, got %q", got)
	}
}

func TestFormatTrace_NilStringerOutput(t *testing.T) {
	rec := FormatTrace(&domain.Trace{
		ID:        "trace_1",
		Provider:  "unknown",
		Model:     "tool:parse",
		Output:    (*url.URL)(nil),
		StartTime: time.Unix(0, 0),
		EndTime:   time.Unix(1, 0),
	})
	if rec.AIData.Output != nil {
		t.Errorf("expected nil output, got %q", *rec.AIData.Output)
	}
}

func TestStringify(t *testing.T) {
	if s, ok := Stringify(stringer{}); !ok || s != "stringer" {
		t.Errorf("expected stringer, got %q (%v)", s, ok)
	}
	if _, ok := Stringify((*url.URL)(nil)); ok {
		t.Error("expected nil pointer to report false")
	}
	if _, ok := Stringify(brokenStringer{}); ok {
		t.Error("expected panicking String to report false")
	}
}
