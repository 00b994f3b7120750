package otelexport

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/rd-mini/internal/codec/wire"
	"github.com/tjfontaine/rd-mini/internal/core/domain"
	"github.com/tjfontaine/rd-mini/internal/core/ports"
)

// PluginName is reported in plugin failure logs.
const PluginName = "otel-export"

// InstrumentationName names the tracer used for exported spans.
const InstrumentationName = "github.com/tjfontaine/rd-mini"

// Attribute keys set on exported spans.
const (
	AttrInteractionID  = "rdmini.interaction.id"
	AttrEvent          = "rdmini.event"
	AttrUserID         = "rdmini.user_id"
	AttrConversationID = "rdmini.conversation_id"
	AttrSpanID         = "rdmini.span.id"
	AttrSpanKind       = "rdmini.span.kind"
	AttrParentID       = "rdmini.parent_id"
	AttrInput          = "rdmini.input"
	AttrOutput         = "rdmini.output"
	AttrSystem         = "gen_ai.system"
	AttrModel          = "gen_ai.request.model"
	AttrInputTokens    = "gen_ai.usage.input_tokens"
	AttrOutputTokens   = "gen_ai.usage.output_tokens"
)

// Plugin exports records as OpenTelemetry spans. Spans that belong to an
// interaction are exported as children of the interaction span when it ends;
// standalone spans and traces are exported immediately.
type Plugin struct {
	provider     trace.TracerProvider
	tracer       trace.Tracer
	content      bool
	ownsProvider bool
	now          func() time.Time
}

var (
	_ ports.InteractionEnder = (*Plugin)(nil)
	_ ports.SpanObserver     = (*Plugin)(nil)
	_ ports.TraceObserver    = (*Plugin)(nil)
	_ ports.Flusher          = (*Plugin)(nil)
	_ ports.Shutdowner       = (*Plugin)(nil)
)

// Option configures a Plugin.
type Option func(*Plugin)

// WithContent includes input and output text as span attributes.
func WithContent(enabled bool) Option {
	return func(p *Plugin) {
		p.content = enabled
	}
}

// WithOwnedProvider makes Shutdown also shut down the provider.
func WithOwnedProvider() Option {
	return func(p *Plugin) {
		p.ownsProvider = true
	}
}

// New creates an export plugin writing to tp.
func New(tp trace.TracerProvider, opts ...Option) *Plugin {
	p := &Plugin{
		provider: tp,
		tracer:   tp.Tracer(InstrumentationName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements ports.Plugin.
func (p *Plugin) Name() string {
	return PluginName
}

// OnInteractionEnd exports the interaction and its spans.
func (p *Plugin) OnInteractionEnd(ix *domain.Interaction) error {
	attrs := []attribute.KeyValue{
		attribute.String(AttrInteractionID, ix.ID),
		attribute.String(AttrEvent, ix.Event),
		attribute.Int("rdmini.span_count", len(ix.Spans)),
	}
	if ix.UserID != "" {
		attrs = append(attrs, attribute.String(AttrUserID, ix.UserID))
	}
	if ix.ConversationID != "" {
		attrs = append(attrs, attribute.String(AttrConversationID, ix.ConversationID))
	}
	if ix.Model != "" {
		attrs = append(attrs, attribute.String(AttrModel, ix.Model))
	}
	if p.content {
		attrs = append(attrs,
			attribute.String(AttrInput, ix.Input),
			attribute.String(AttrOutput, ix.Output),
		)
	}

	ctx, root := p.tracer.Start(context.Background(), ix.Event,
		trace.WithTimestamp(ix.StartTime),
		trace.WithAttributes(attrs...),
	)
	for _, span := range ix.Spans {
		p.exportSpan(ctx, span)
	}
	if ix.Error != "" {
		root.SetStatus(codes.Error, ix.Error)
	}
	root.End(trace.WithTimestamp(p.now()))
	return nil
}

// OnSpan exports spans that have no parent interaction.
func (p *Plugin) OnSpan(span *domain.Span) error {
	if span.ParentID != "" {
		return nil
	}
	p.exportSpan(context.Background(), span)
	return nil
}

// OnTrace exports a standalone model call.
func (p *Plugin) OnTrace(t *domain.Trace) error {
	attrs := []attribute.KeyValue{
		attribute.String(AttrInteractionID, t.ID),
		attribute.String(AttrSystem, t.Provider),
		attribute.String(AttrModel, t.Model),
	}
	if t.UserID != "" {
		attrs = append(attrs, attribute.String(AttrUserID, t.UserID))
	}
	if t.ConversationID != "" {
		attrs = append(attrs, attribute.String(AttrConversationID, t.ConversationID))
	}
	if t.Tokens != nil {
		attrs = append(attrs,
			attribute.Int(AttrInputTokens, t.Tokens.Input),
			attribute.Int(AttrOutputTokens, t.Tokens.Output),
		)
	}
	if p.content {
		attrs = append(attrs,
			attribute.String(AttrInput, text(t.Input)),
			attribute.String(AttrOutput, text(t.Output)),
		)
	}

	_, s := p.tracer.Start(context.Background(), fmt.Sprintf("%s %s", t.Provider, t.Model),
		trace.WithTimestamp(t.StartTime),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	for _, tc := range t.ToolCalls {
		s.AddEvent("tool_call", trace.WithAttributes(attribute.String("name", tc.Name)))
	}
	if t.Error != "" {
		s.SetStatus(codes.Error, t.Error)
	}
	s.End(trace.WithTimestamp(endTime(t.EndTime, t.StartTime)))
	return nil
}

// Flush forces export of buffered spans when the provider supports it.
func (p *Plugin) Flush(ctx context.Context) error {
	if f, ok := p.provider.(interface{ ForceFlush(context.Context) error }); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// Shutdown shuts down an owned provider.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if !p.ownsProvider {
		return p.Flush(ctx)
	}
	if s, ok := p.provider.(interface{ Shutdown(context.Context) error }); ok {
		return s.Shutdown(ctx)
	}
	return nil
}

func (p *Plugin) exportSpan(ctx context.Context, span *domain.Span) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSpanID, span.ID),
		attribute.String(AttrSpanKind, string(span.Kind)),
	}
	if span.ParentID != "" {
		attrs = append(attrs, attribute.String(AttrParentID, span.ParentID))
	}
	if p.content {
		attrs = append(attrs,
			attribute.String(AttrInput, text(span.Input)),
			attribute.String(AttrOutput, text(span.Output)),
		)
	}

	_, s := p.tracer.Start(ctx, string(span.Kind)+":"+span.Name,
		trace.WithTimestamp(span.StartTime),
		trace.WithAttributes(attrs...),
	)
	if span.Error != "" {
		s.SetStatus(codes.Error, span.Error)
	}
	s.End(trace.WithTimestamp(endTime(span.EndTime, span.StartTime)))
}

func endTime(end, start time.Time) time.Time {
	if end.IsZero() {
		return start
	}
	return end
}

func text(v any) string {
	if s := wire.ToAPIString(v); s != nil {
		return *s
	}
	return ""
}
