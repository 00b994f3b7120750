// Package tracker implements the interaction and span lifecycle: starting
// and finishing interactions, publishing the active one through a
// context.Context, and routing finished spans either into their parent
// interaction or out as standalone traces.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync/atomic"
	"time"

	"github.com/tjfontaine/rd-mini/internal/codec/wire"
	"github.com/tjfontaine/rd-mini/internal/core/domain"
	"github.com/tjfontaine/rd-mini/internal/core/ports"
	"github.com/tjfontaine/rd-mini/internal/idgen"
	"github.com/tjfontaine/rd-mini/internal/pipeline"
)

// Controller owns the active interactions and hands rendered records to a sink.
type Controller struct {
	sink     ports.Sink
	pipeline *pipeline.Pipeline
	registry *registry
	logger   *slog.Logger

	userID func() string
	now    func() time.Time

	lastTraceID atomic.Pointer[string]
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithPipeline sets the plugin pipeline run on lifecycle events.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(c *Controller) {
		c.pipeline = p
	}
}

// WithUserID sets the function returning the identified user, used when an
// interaction or trace has no explicit user.
func WithUserID(fn func() string) Option {
	return func(c *Controller) {
		c.userID = fn
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates a controller delivering to sink.
func New(sink ports.Sink, opts ...Option) *Controller {
	c := &Controller{
		sink:     sink,
		registry: newRegistry(),
		logger:   slog.Default(),
		userID:   func() string { return "" },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts an interaction and makes it active in the returned context.
// ctx is left untouched; callers continue with the returned context.
func (c *Controller) Begin(ctx context.Context, opts domain.BeginOptions) (context.Context, *Handle) {
	h := c.start(opts)
	ctx = Enter(ctx, h)
	c.pipeline.InteractionStart(h.ix)
	return ctx, h
}

// Scope runs fn inside a new interaction and finishes it when fn returns,
// fails or panics. When fn succeeds and no output was set, a string-like
// result becomes the output. fn's error is recorded and returned unchanged.
// A panic is recorded and re-raised.
func (c *Controller) Scope(ctx context.Context, opts domain.BeginOptions, fn func(ctx context.Context, h *Handle) (any, error)) (any, error) {
	h := c.start(opts)

	var result any
	err := Run(ctx, h, func(ctx context.Context) error {
		c.pipeline.InteractionStart(h.ix)
		defer func() {
			if r := recover(); r != nil {
				h.setError(domain.PanicError(r).Error())
				c.finish(h)
				panic(r)
			}
		}()
		var err error
		result, err = fn(ctx, h)
		return err
	})

	if err != nil {
		h.setError(err.Error())
	} else if s, ok := stringLike(result); ok {
		h.setOutputIfEmpty(s)
	}
	c.finish(h)
	return result, err
}

// Workflow is a Scope whose event defaults to the workflow name.
func (c *Controller) Workflow(ctx context.Context, name string, opts domain.BeginOptions, fn func(ctx context.Context, h *Handle) (any, error)) (any, error) {
	if opts.Event == "" {
		opts.Event = name
	}
	return c.Scope(ctx, opts, fn)
}

// Resume makes the active interaction with the given ID current in ctx. If
// no such interaction is active a new one is begun with that ID.
func (c *Controller) Resume(ctx context.Context, id string) (context.Context, *Handle) {
	if h, ok := c.registry.get(id); ok {
		c.logger.Debug("interaction resumed", slog.String("interaction_id", id))
		return Enter(ctx, h), h
	}
	return c.Begin(ctx, domain.BeginOptions{EventID: id})
}

// Active returns the number of unfinished interactions.
func (c *Controller) Active() int {
	return c.registry.size()
}

// SendTrace dispatches a standalone model-call trace.
func (c *Controller) SendTrace(tr *domain.Trace) {
	if tr.ID == "" {
		tr.ID = idgen.NewTraceID()
	}
	if tr.UserID == "" {
		tr.UserID = c.userID()
	}
	c.pipeline.Trace(tr)
	c.enqueueTrace(tr)
}

// AttachModelSpan attaches a finished model-call span to the interaction
// active in ctx. It reports false, doing nothing, when none is active.
func (c *Controller) AttachModelSpan(ctx context.Context, span *domain.Span) bool {
	parent := Current(ctx)
	if parent == nil || parent.Finished() {
		return false
	}
	if span.ID == "" {
		span.ID = idgen.NewSpanID()
	}
	if span.Kind == "" {
		span.Kind = domain.SpanKindAI
	}
	span.ParentID = parent.ID()
	c.completeSpan(parent, span)
	return true
}

// LastTraceID returns the ID of the most recently dispatched trace or
// interaction.
func (c *Controller) LastTraceID() string {
	if p := c.lastTraceID.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Controller) start(opts domain.BeginOptions) *Handle {
	id := opts.EventID
	if id == "" {
		id = idgen.NewTraceID()
	}

	ix := domain.NewInteraction(id)
	ix.StartTime = c.now()
	ix.UserID = opts.UserID
	if ix.UserID == "" {
		ix.UserID = c.userID()
	}
	if opts.Event != "" {
		ix.Event = opts.Event
	}
	ix.Input = opts.Input
	ix.Model = opts.Model
	ix.ConversationID = opts.ConversationID
	maps.Copy(ix.Properties, opts.Properties)
	ix.Attachments = append(ix.Attachments, opts.Attachments...)

	h := &Handle{
		ctrl:  c,
		id:    id,
		ix:    ix,
		state: domain.InteractionCreated,
	}

	h.state = domain.InteractionActive
	c.registry.put(h)

	c.logger.Debug("interaction began",
		slog.String("interaction_id", id),
		slog.String("event", ix.Event),
	)
	return h
}

func (c *Controller) finish(h *Handle, opts ...domain.FinishOptions) {
	ix, scopes, ok := h.markFinished(opts)
	if !ok {
		c.logger.Debug("interaction already finished", slog.String("interaction_id", h.ID()))
		return
	}

	c.pipeline.InteractionEnd(ix)
	end := c.now()

	c.registry.remove(h)
	for _, s := range scopes {
		s.clearIf(h)
	}

	c.sink.Enqueue(ports.EventInteraction, wire.FormatInteraction(ix, end))
	c.setLastTraceID(ix.ID)

	c.logger.Debug("interaction finished",
		slog.String("interaction_id", ix.ID),
		slog.Int("spans", len(ix.Spans)),
		slog.Duration("latency", end.Sub(ix.StartTime)),
	)
}

// completeSpan runs the span hooks and routes the span to its parent, or out
// as a standalone trace when there is none or the parent already finished.
func (c *Controller) completeSpan(parent *Handle, span *domain.Span) {
	c.pipeline.Span(span)

	if parent == nil {
		c.dispatchStandalone(span)
		return
	}
	if !parent.addSpan(span) {
		c.logger.Warn("span ended after its interaction finished; sending it standalone",
			slog.String("span_id", span.ID),
			slog.String("interaction_id", parent.ID()),
		)
		if span.Properties == nil {
			span.Properties = make(map[string]any)
		}
		span.Properties["parent_id"] = parent.ID()
		c.dispatchStandalone(span)
	}
}

func (c *Controller) dispatchStandalone(span *domain.Span) {
	c.enqueueTrace(&domain.Trace{
		ID:         span.ID,
		Provider:   "unknown",
		Model:      fmt.Sprintf("%s:%s", span.Kind, span.Name),
		Input:      span.Input,
		Output:     span.Output,
		StartTime:  span.StartTime,
		EndTime:    span.EndTime,
		UserID:     c.userID(),
		Error:      span.Error,
		Properties: span.Properties,
	})
}

func (c *Controller) enqueueTrace(tr *domain.Trace) {
	c.sink.Enqueue(ports.EventTrace, wire.FormatTrace(tr))
	c.setLastTraceID(tr.ID)
}

func (c *Controller) setLastTraceID(id string) {
	c.lastTraceID.Store(&id)
}

// stringLike returns v as a string when it is a string, byte slice or Stringer.
func stringLike(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case *string:
		if val == nil {
			return "", false
		}
		return *val, true
	case []byte:
		return string(val), true
	case fmt.Stringer:
		return wire.Stringify(val)
	}
	return "", false
}

