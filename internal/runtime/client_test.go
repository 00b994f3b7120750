package runtime

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tjfontaine/rd-mini/internal/core/domain"
	"github.com/tjfontaine/rd-mini/internal/core/ports"
	"github.com/tjfontaine/rd-mini/internal/pkg/config"
	"github.com/tjfontaine/rd-mini/internal/testutil"
	"github.com/tjfontaine/rd-mini/internal/tracker"
	"github.com/tjfontaine/rd-mini/internal/transport"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		APIKey:         "rk_test",
		BaseURL:        baseURL,
		FlushInterval:  time.Hour,
		MaxQueueSize:   100,
		MaxRetries:     0,
		RetryBaseDelay: time.Millisecond,
		Timeout:        5 * time.Second,
		OTel:           config.OTelConfig{Exporter: "none"},
	}
}

func newTestClient(t *testing.T, cfg *config.Config, opts ...Option) *Client {
	t.Helper()
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func flush(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

type countingPlugin struct {
	name      string
	flushes   atomic.Int32
	shutdowns atomic.Int32
	ended     atomic.Int32
}

func (p *countingPlugin) Name() string { return p.name }

func (p *countingPlugin) OnInteractionEnd(ix *domain.Interaction) error {
	p.ended.Add(1)
	ix.Properties["seen_by"] = p.name
	return nil
}

func (p *countingPlugin) Flush(context.Context) error {
	p.flushes.Add(1)
	return nil
}

func (p *countingPlugin) Shutdown(context.Context) error {
	p.shutdowns.Add(1)
	return nil
}

func TestNew_Validation(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.APIKey = ""

	_, err := New(cfg)
	if !errors.Is(err, config.ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}

	if _, err := New(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestClient_ScopeDelivered(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	c := newTestClient(t, testConfig(srv.URL))

	_, err := c.Scope(context.Background(), domain.BeginOptions{Input: "hello", UserID: "u1"},
		func(ctx context.Context, h *tracker.Handle) (any, error) {
			return "world", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flush(t, c)

	reqs := srv.RequestsTo(transport.EventsPath)
	if len(reqs) != 1 {
		t.Fatalf("expected 1 events request, got %d", len(reqs))
	}
	records := reqs[0].JSONArray(t)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec["event"] != "interaction" || rec["user_id"] != "u1" {
		t.Errorf("unexpected record: %v", rec)
	}
	ai := rec["ai_data"].(map[string]any)
	if ai["input"] != "hello" || ai["output"] != "world" {
		t.Errorf("unexpected ai_data: %v", ai)
	}
	if got := reqs[0].Header.Get("Authorization"); got != "Bearer rk_test" {
		t.Errorf("expected bearer auth, got %q", got)
	}
	if c.LastTraceID() != rec["event_id"] {
		t.Errorf("expected last trace id %v, got %s", rec["event_id"], c.LastTraceID())
	}
}

func TestClient_TraceCallStandalone(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	c := newTestClient(t, testConfig(srv.URL))

	call := ports.ModelCall{TraceID: "trace_call", Provider: "openai", Model: "gpt-4o", Input: "hi"}
	res, err := c.TraceCall(context.Background(), call, func(ctx context.Context) (*ports.ModelResult, error) {
		return &ports.ModelResult{
			Output: "hello there",
			Tokens: &domain.TokenUsage{Input: 1, Output: 2, Total: 3},
		}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "hello there" {
		t.Errorf("expected result passed through, got %v", res.Output)
	}

	flush(t, c)

	records := srv.RequestsTo(transport.EventsPath)[0].JSONArray(t)
	rec := records[0]
	if rec["event_id"] != "trace_call" || rec["event"] != "ai_interaction" {
		t.Errorf("unexpected record: %v", rec)
	}
	props := rec["properties"].(map[string]any)
	if props["provider"] != "openai" || props["total_tokens"] != float64(3) {
		t.Errorf("unexpected properties: %v", props)
	}
	if _, ok := props["tokens_estimated"]; ok {
		t.Error("reported tokens should not be marked estimated")
	}
}

func TestClient_TraceCallEstimatesTokens(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	c := newTestClient(t, testConfig(srv.URL))

	_, _ = c.TraceCall(context.Background(), ports.ModelCall{Provider: "openai", Model: "gpt-4o", Input: "count these words"},
		func(ctx context.Context) (*ports.ModelResult, error) {
			return &ports.ModelResult{Output: "ok"}, nil
		})

	flush(t, c)

	props := srv.RequestsTo(transport.EventsPath)[0].JSONArray(t)[0]["properties"].(map[string]any)
	if props["tokens_estimated"] != true {
		t.Errorf("expected estimated tokens, got %v", props)
	}
	if n, _ := props["input_tokens"].(float64); n <= 0 {
		t.Errorf("expected positive input token estimate, got %v", props["input_tokens"])
	}
}

func TestClient_TraceCallInsideInteraction(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	c := newTestClient(t, testConfig(srv.URL))

	_, _ = c.Scope(context.Background(), domain.BeginOptions{Input: "q"}, func(ctx context.Context, h *tracker.Handle) (any, error) {
		return c.TraceCall(ctx, ports.ModelCall{Provider: "anthropic", Model: "claude"}, func(ctx context.Context) (*ports.ModelResult, error) {
			return &ports.ModelResult{Output: "a"}, nil
		})
	})

	flush(t, c)

	records := srv.RequestsTo(transport.EventsPath)[0].JSONArray(t)
	if len(records) != 1 {
		t.Fatalf("expected only the interaction record, got %d", len(records))
	}
	attachments := records[0]["attachments"].([]any)
	if len(attachments) != 1 {
		t.Fatalf("expected 1 span attachment, got %d", len(attachments))
	}
	if name := attachments[0].(map[string]any)["name"]; name != "ai:anthropic:claude" {
		t.Errorf("expected ai:anthropic:claude, got %v", name)
	}
}

func TestClient_TraceCallError(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	c := newTestClient(t, testConfig(srv.URL))
	boom := errors.New("rate limited")

	_, err := c.TraceCall(context.Background(), ports.ModelCall{Provider: "openai", Model: "m"},
		func(ctx context.Context) (*ports.ModelResult, error) {
			return nil, boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}

	flush(t, c)

	props := srv.RequestsTo(transport.EventsPath)[0].JSONArray(t)[0]["properties"].(map[string]any)
	if props["error"] != "rate limited" {
		t.Errorf("expected error property, got %v", props["error"])
	}
}

func TestClient_Identify(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	c := newTestClient(t, testConfig(srv.URL))

	c.Identify("user_42", &domain.UserTraits{Name: "Ada", Plan: "pro"})
	_, h := c.Begin(context.Background(), domain.BeginOptions{})
	h.Finish()

	flush(t, c)

	ident := srv.RequestsTo(transport.IdentifyPath)
	if len(ident) != 1 {
		t.Fatalf("expected 1 identify request, got %d", len(ident))
	}
	body := ident[0].JSONObject(t)
	if body["user_id"] != "user_42" {
		t.Errorf("expected user_42, got %v", body["user_id"])
	}
	traits := body["traits"].(map[string]any)
	if traits["plan"] != "pro" {
		t.Errorf("unexpected traits: %v", traits)
	}

	rec := srv.RequestsTo(transport.EventsPath)[0].JSONArray(t)[0]
	if rec["user_id"] != "user_42" {
		t.Errorf("expected identified user on interaction, got %v", rec["user_id"])
	}
}

func TestClient_IdentifyWithoutTraits(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	c := newTestClient(t, testConfig(srv.URL))

	c.Identify("user_1", nil)
	flush(t, c)

	if n := len(srv.RequestsTo(transport.IdentifyPath)); n != 0 {
		t.Errorf("expected no identify request without traits, got %d", n)
	}
}

func TestClient_FeedbackAndSignal(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	c := newTestClient(t, testConfig(srv.URL))

	c.Feedback("trace_1", domain.Feedback{Type: domain.FeedbackThumbsUp, Comment: "great"})
	c.TrackSignal(domain.Signal{EventID: "trace_1", Name: "edit", Type: domain.SignalEdit, After: "fixed"})

	flush(t, c)

	reqs := srv.RequestsTo(transport.SignalsPath)
	if len(reqs) != 1 {
		t.Fatalf("expected 1 signals request, got %d", len(reqs))
	}
	signals := reqs[0].JSONArray(t)
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	if signals[0]["signal_name"] != "thumbs_up" || signals[0]["sentiment"] != "POSITIVE" {
		t.Errorf("unexpected feedback: %v", signals[0])
	}
	if signals[1]["signal_name"] != "edit" {
		t.Errorf("unexpected signal: %v", signals[1])
	}
}

func TestClient_RedactPII(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	cfg := testConfig(srv.URL)
	cfg.RedactPII = true
	c := newTestClient(t, cfg)

	_, h := c.Begin(context.Background(), domain.BeginOptions{Input: "mail me at ada@example.com"})
	h.Finish()

	flush(t, c)

	ai := srv.RequestsTo(transport.EventsPath)[0].JSONArray(t)[0]["ai_data"].(map[string]any)
	if ai["input"] != "mail me at <REDACTED>" {
		t.Errorf("expected redacted input, got %v", ai["input"])
	}
}

func TestClient_PluginsAndClose(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	cfg := testConfig(srv.URL)
	cfg.RedactPII = true
	cfg.OTel.Enabled = true

	p := &countingPlugin{name: "counter"}
	c, err := New(cfg, WithPlugins(p))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	names := make([]string, 0)
	for _, pl := range c.pipeline.Plugins() {
		names = append(names, pl.Name())
	}
	if strings.Join(names, ",") != "pii-redaction,counter,otel-export" {
		t.Errorf("unexpected plugin order: %v", names)
	}

	_, h := c.Begin(context.Background(), domain.BeginOptions{})
	h.Finish()
	flush(t, c)

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if p.ended.Load() != 1 {
		t.Errorf("expected 1 interaction end, got %d", p.ended.Load())
	}
	if p.flushes.Load() != 2 {
		t.Errorf("expected flush on Flush and Close, got %d", p.flushes.Load())
	}
	if p.shutdowns.Load() != 1 {
		t.Errorf("expected exactly one shutdown, got %d", p.shutdowns.Load())
	}

	props := srv.RequestsTo(transport.EventsPath)[0].JSONArray(t)[0]["properties"].(map[string]any)
	if props["seen_by"] != "counter" {
		t.Errorf("expected plugin mutation to be sent, got %v", props)
	}
}

func TestClient_Disabled(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	cfg := testConfig(srv.URL)
	cfg.APIKey = ""
	cfg.Disabled = true
	c := newTestClient(t, cfg)

	_, h := c.Begin(context.Background(), domain.BeginOptions{Input: "x"})
	h.Finish()
	flush(t, c)

	if n := len(srv.Requests()); n != 0 {
		t.Errorf("expected no requests when disabled, got %d", n)
	}
}

func TestClient_Metrics(t *testing.T) {
	srv := testutil.NewCaptureServer(t)
	reg := prometheus.NewRegistry()
	c := newTestClient(t, testConfig(srv.URL), WithMetrics(reg))

	c.Feedback("trace_1", domain.Feedback{Type: domain.FeedbackThumbsDown})
	flush(t, c)

	if got := promtest.ToFloat64(c.metrics.Enqueued.WithLabelValues("feedback")); got != 1 {
		t.Errorf("expected 1 enqueued feedback, got %v", got)
	}
}
