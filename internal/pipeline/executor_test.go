package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/tjfontaine/rd-mini/internal/core/domain"
	"github.com/tjfontaine/rd-mini/internal/core/ports"
)

// mockPlugin is a test helper that records hook calls and returns configured results.
type mockPlugin struct {
	name      string
	err       error
	panicWith any
	calls     *[]string
}

func (p *mockPlugin) Name() string { return p.name }

func (p *mockPlugin) record(hook string) error {
	if p.calls != nil {
		*p.calls = append(*p.calls, p.name+"."+hook)
	}
	if p.panicWith != nil {
		panic(p.panicWith)
	}
	return p.err
}

func (p *mockPlugin) OnInteractionStart(ix *domain.Interaction) error { return p.record("start") }
func (p *mockPlugin) OnInteractionEnd(ix *domain.Interaction) error   { return p.record("end") }
func (p *mockPlugin) OnSpan(span *domain.Span) error                  { return p.record("span") }
func (p *mockPlugin) OnTrace(tr *domain.Trace) error                  { return p.record("trace") }
func (p *mockPlugin) Flush(ctx context.Context) error                 { return p.record("flush") }
func (p *mockPlugin) Shutdown(ctx context.Context) error              { return p.record("shutdown") }

// nameOnly implements no hooks at all.
type nameOnly struct{}

func (nameOnly) Name() string { return "name-only" }

// redactor mutates the interaction output in OnInteractionEnd.
type redactor struct{}

func (redactor) Name() string { return "redactor" }

func (redactor) OnInteractionEnd(ix *domain.Interaction) error {
	ix.Output = "[REDACTED]"
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestPipeline_Nil(t *testing.T) {
	var p *Pipeline

	p.InteractionStart(domain.NewInteraction("e1"))
	p.InteractionEnd(domain.NewInteraction("e1"))
	p.Span(&domain.Span{})
	p.Trace(&domain.Trace{})
	p.Flush(context.Background())
	p.Shutdown(context.Background())

	if p.Plugins() != nil {
		t.Error("expected no plugins on nil pipeline")
	}
}

func TestPipeline_RegistrationOrder(t *testing.T) {
	var calls []string
	p := New([]ports.Plugin{
		&mockPlugin{name: "first", calls: &calls},
		nil,
		nameOnly{},
		&mockPlugin{name: "second", calls: &calls},
	})

	if len(p.Plugins()) != 3 {
		t.Fatalf("expected 3 plugins, got %d", len(p.Plugins()))
	}

	ix := domain.NewInteraction("e1")
	p.InteractionStart(ix)
	p.Span(&domain.Span{ID: "s1"})
	p.InteractionEnd(ix)
	p.Trace(&domain.Trace{ID: "t1"})
	p.Flush(context.Background())
	p.Shutdown(context.Background())

	expected := []string{
		"first.start", "second.start",
		"first.span", "second.span",
		"first.end", "second.end",
		"first.trace", "second.trace",
		"first.flush", "second.flush",
		"first.shutdown", "second.shutdown",
	}
	if len(calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(calls), calls)
	}
	for i := range expected {
		if calls[i] != expected[i] {
			t.Errorf("call %d: expected %q, got %q", i, expected[i], calls[i])
		}
	}
}

func TestPipeline_FailingHookDoesNotStopOthers(t *testing.T) {
	var calls []string
	var logs bytes.Buffer

	p := New([]ports.Plugin{
		&mockPlugin{name: "broken", err: errors.New("hook failed"), calls: &calls},
		&mockPlugin{name: "healthy", calls: &calls},
	}, WithLogger(newTestLogger(&logs)))

	p.InteractionEnd(domain.NewInteraction("e1"))

	if len(calls) != 2 || calls[1] != "healthy.end" {
		t.Errorf("expected healthy plugin to run after failure, got %v", calls)
	}
	if !strings.Contains(logs.String(), "plugin broken.on_interaction_end: hook failed") {
		t.Errorf("expected plugin error to be logged, got %q", logs.String())
	}
}

func TestPipeline_PanickingHookIsRecovered(t *testing.T) {
	var calls []string
	var logs bytes.Buffer

	p := New([]ports.Plugin{
		&mockPlugin{name: "panicky", panicWith: "kaboom", calls: &calls},
		&mockPlugin{name: "healthy", calls: &calls},
	}, WithLogger(newTestLogger(&logs)))

	p.Span(&domain.Span{ID: "s1"})

	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %v", calls)
	}
	if !strings.Contains(logs.String(), "panic: kaboom") {
		t.Errorf("expected panic to be logged, got %q", logs.String())
	}
}

func TestPipeline_MutationsAreVisible(t *testing.T) {
	p := New([]ports.Plugin{redactor{}})

	ix := domain.NewInteraction("e1")
	ix.Output = "secret"
	p.InteractionEnd(ix)

	if ix.Output != "[REDACTED]" {
		t.Errorf("expected mutated output, got %q", ix.Output)
	}
}
