package runtime

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/tjfontaine/rd-mini/internal/adapter"
	"github.com/tjfontaine/rd-mini/internal/core/domain"
	"github.com/tjfontaine/rd-mini/internal/core/ports"
	"github.com/tjfontaine/rd-mini/internal/idgen"
)

// TraceCall runs a model call and records it. Under an active interaction
// the call becomes an "ai" span of that interaction; otherwise it is sent as
// a standalone trace. fn's result and error are returned unchanged.
func (c *Client) TraceCall(ctx context.Context, call ports.ModelCall, fn func(ctx context.Context) (*ports.ModelResult, error)) (res *ports.ModelResult, err error) {
	if call.TraceID == "" {
		call.TraceID = idgen.NewTraceID()
	}
	if call.StartTime.IsZero() {
		call.StartTime = time.Now()
	}
	if call.UserID == "" {
		call.UserID = c.currentUserID()
	}
	a := c.adapters.For(adapter.Parse(call.Provider))

	defer func() {
		if r := recover(); r != nil {
			c.recordCall(ctx, a.BuildTrace(call, nil, domain.PanicError(r), time.Now()))
			panic(r)
		}
	}()

	res, err = fn(ctx)
	c.recordCall(ctx, a.BuildTrace(call, res, err, time.Now()))
	return res, err
}

func (c *Client) recordCall(ctx context.Context, tr *domain.Trace) {
	if c.tracker.AttachModelSpan(ctx, modelSpan(tr)) {
		return
	}
	c.tracker.SendTrace(tr)
}

// modelSpan converts a model-call trace into a span, folding token counts
// and tool calls into its properties.
func modelSpan(tr *domain.Trace) *domain.Span {
	props := make(map[string]any, len(tr.Properties)+4)
	maps.Copy(props, tr.Properties)
	props["provider"] = tr.Provider
	if tr.Tokens != nil {
		props["input_tokens"] = tr.Tokens.Input
		props["output_tokens"] = tr.Tokens.Output
		props["total_tokens"] = tr.Tokens.Total
	}
	if len(tr.ToolCalls) > 0 {
		props["tool_calls"] = tr.ToolCalls
	}

	return &domain.Span{
		ID:         tr.ID,
		Name:       fmt.Sprintf("%s:%s", tr.Provider, tr.Model),
		Kind:       domain.SpanKindAI,
		StartTime:  tr.StartTime,
		EndTime:    tr.EndTime,
		Input:      tr.Input,
		Output:     tr.Output,
		Error:      tr.Error,
		Properties: props,
	}
}
