package pii

import (
	"github.com/tjfontaine/rd-mini/internal/core/domain"
	"github.com/tjfontaine/rd-mini/internal/core/ports"
)

// PluginName is reported in plugin failure logs.
const PluginName = "pii-redaction"

// Plugin redacts PII from records before they are rendered.
type Plugin struct {
	redactor *Redactor
}

var (
	_ ports.InteractionEnder = (*Plugin)(nil)
	_ ports.SpanObserver     = (*Plugin)(nil)
	_ ports.TraceObserver    = (*Plugin)(nil)
)

// New creates a redaction plugin.
func New(opts Options) *Plugin {
	return &Plugin{redactor: NewRedactor(opts)}
}

// Name implements ports.Plugin.
func (p *Plugin) Name() string {
	return PluginName
}

// Redactor exposes the underlying redactor for direct use.
func (p *Plugin) Redactor() *Redactor {
	return p.redactor
}

// OnInteractionEnd redacts input, output, properties, attachments and the
// spans collected so far.
func (p *Plugin) OnInteractionEnd(ix *domain.Interaction) error {
	r := p.redactor
	ix.Input = r.Redact(ix.Input)
	ix.Output = r.Redact(ix.Output)
	ix.Error = r.Redact(ix.Error)
	ix.Properties = r.RedactMap(ix.Properties)

	for i := range ix.Attachments {
		ix.Attachments[i].Value = r.Redact(ix.Attachments[i].Value)
		ix.Attachments[i].Name = r.Redact(ix.Attachments[i].Name)
	}
	for _, span := range ix.Spans {
		p.redactSpan(span)
	}
	return nil
}

// OnSpan implements ports.SpanObserver.
func (p *Plugin) OnSpan(span *domain.Span) error {
	p.redactSpan(span)
	return nil
}

// OnTrace implements ports.TraceObserver.
func (p *Plugin) OnTrace(trace *domain.Trace) error {
	r := p.redactor
	trace.Input = r.RedactValue(trace.Input)
	trace.Output = r.RedactValue(trace.Output)
	trace.Error = r.Redact(trace.Error)
	trace.Properties = r.RedactMap(trace.Properties)

	for i := range trace.ToolCalls {
		trace.ToolCalls[i].Arguments = r.RedactValue(trace.ToolCalls[i].Arguments)
		trace.ToolCalls[i].Result = r.RedactValue(trace.ToolCalls[i].Result)
	}
	return nil
}

func (p *Plugin) redactSpan(span *domain.Span) {
	r := p.redactor
	span.Input = r.RedactValue(span.Input)
	span.Output = r.RedactValue(span.Output)
	span.Error = r.Redact(span.Error)
	span.Properties = r.RedactMap(span.Properties)
}
