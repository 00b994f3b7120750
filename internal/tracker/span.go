package tracker

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/tjfontaine/rd-mini/internal/core/domain"
	"github.com/tjfontaine/rd-mini/internal/idgen"
)

// SpanOptions describes a span to start.
type SpanOptions struct {
	Name string
	// Kind defaults to domain.SpanKindTool
	Kind       domain.SpanKind
	Input      any
	Properties map[string]any
	// Task marks a tool span as a higher-level task (is_task property)
	Task bool
}

// SpanHandle controls a manually ended span.
type SpanHandle struct {
	ctrl   *Controller
	parent *Handle

	mu    sync.Mutex
	span  *domain.Span
	ended bool
}

// StartSpan starts a span under the interaction active in ctx, if any. The
// parent is captured now; ending the span later attaches it to that parent
// even if ctx has moved on.
func (c *Controller) StartSpan(ctx context.Context, opts SpanOptions) *SpanHandle {
	kind := opts.Kind
	if kind == "" {
		kind = domain.SpanKindTool
	}

	span := &domain.Span{
		ID:         idgen.NewSpanID(),
		Name:       opts.Name,
		Kind:       kind,
		StartTime:  c.now(),
		Input:      opts.Input,
		Properties: make(map[string]any, len(opts.Properties)+1),
	}
	maps.Copy(span.Properties, opts.Properties)
	if opts.Task {
		span.Properties["is_task"] = true
	}

	parent := Current(ctx)
	if parent != nil && parent.Finished() {
		parent = nil
	}
	if parent != nil {
		span.ParentID = parent.ID()
	}

	c.logger.Debug("span started",
		slog.String("span_id", span.ID),
		slog.String("name", span.Name),
		slog.String("parent_id", span.ParentID),
	)
	return &SpanHandle{ctrl: c, parent: parent, span: span}
}

// RecordSpan times fn as a span. fn's error is recorded and returned
// unchanged; a panic is recorded and re-raised.
func (c *Controller) RecordSpan(ctx context.Context, opts SpanOptions, fn func(ctx context.Context) (any, error)) (any, error) {
	sh := c.StartSpan(ctx, opts)

	defer func() {
		if r := recover(); r != nil {
			sh.End(domain.PanicError(r))
			panic(r)
		}
	}()

	out, err := fn(ctx)
	if err == nil {
		sh.SetOutput(out)
	}
	sh.End(err)
	return out, err
}

// ID returns the span ID.
func (s *SpanHandle) ID() string {
	return s.span.ID
}

// ParentID returns the captured parent interaction ID, or "".
func (s *SpanHandle) ParentID() string {
	return s.span.ParentID
}

// SetInput records the span input.
func (s *SpanHandle) SetInput(input any) *SpanHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.span.Input = input
	}
	return s
}

// SetOutput records the span output.
func (s *SpanHandle) SetOutput(output any) *SpanHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.span.Output = output
	}
	return s
}

// SetProperties merges props into the span properties.
func (s *SpanHandle) SetProperties(props map[string]any) *SpanHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		maps.Copy(s.span.Properties, props)
	}
	return s
}

// End finishes the span, recording err if non-nil. Only the first call has
// any effect.
func (s *SpanHandle) End(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.span.EndTime = s.ctrl.now()
	if err != nil {
		s.span.Error = err.Error()
	}
	s.mu.Unlock()

	s.ctrl.completeSpan(s.parent, s.span)
}
