// Package raindrop provides the public API for recording AI interactions.
// This is the stable API for external consumers.
//
//	cfg, err := raindrop.LoadConfig("raindrop.yaml")
//	client, err := raindrop.New(cfg)
//	defer client.Close(ctx)
//
//	answer, err := raindrop.WithInteraction(ctx, client, raindrop.BeginOptions{Input: q},
//	    func(ctx context.Context, h *raindrop.Handle) (string, error) {
//	        docs, err := raindrop.Tool(ctx, client, "search", func(ctx context.Context) ([]string, error) {
//	            return search(ctx, q)
//	        })
//	        ...
//	    })
package raindrop

import (
	"context"

	"github.com/tjfontaine/rd-mini/internal/adapter"
	"github.com/tjfontaine/rd-mini/internal/core/domain"
	"github.com/tjfontaine/rd-mini/internal/core/ports"
	"github.com/tjfontaine/rd-mini/internal/pkg/config"
	"github.com/tjfontaine/rd-mini/internal/plugins/otelexport"
	"github.com/tjfontaine/rd-mini/internal/plugins/pii"
	"github.com/tjfontaine/rd-mini/internal/runtime"
	"github.com/tjfontaine/rd-mini/internal/tracker"
)

// Client records interactions, spans and model calls.
// See internal/runtime.Client for full documentation.
type Client = runtime.Client

// Option is a functional option for configuring a Client.
type Option = runtime.Option

// Config holds client settings.
type Config = config.Config

type (
	Handle        = tracker.Handle
	SpanHandle    = tracker.SpanHandle
	SpanOptions   = tracker.SpanOptions
	BeginOptions  = domain.BeginOptions
	FinishOptions = domain.FinishOptions
	Attachment    = domain.Attachment
	Feedback      = domain.Feedback
	Signal        = domain.Signal
	UserTraits    = domain.UserTraits
	TokenUsage    = domain.TokenUsage
	ToolCall      = domain.ToolCall
	ModelCall     = ports.ModelCall
	ModelResult   = ports.ModelResult
	Plugin        = ports.Plugin
	Provider      = adapter.Provider
	PIIOptions    = pii.Options
)

var (
	New        = runtime.New
	LoadConfig = config.Load

	// Current returns the interaction active in ctx, or nil.
	Current = tracker.Current

	// DetectProvider identifies the provider of an SDK client value.
	DetectProvider = adapter.Detect

	ErrMissingAPIKey = config.ErrMissingAPIKey
)

// Options
var (
	WithLogger     = runtime.WithLogger
	WithPlugins    = runtime.WithPlugins
	WithHTTPClient = runtime.WithHTTPClient
	WithMetrics    = runtime.WithMetrics
	WithSink       = runtime.WithSink
)

// Built-in plugins
var (
	NewPIIPlugin  = pii.New
	NewOTelPlugin = otelexport.New
)

// WithInteraction runs fn inside a new interaction that finishes when fn
// returns. A string result becomes the interaction output unless one was set.
func WithInteraction[T any](ctx context.Context, c *Client, opts BeginOptions, fn func(ctx context.Context, h *Handle) (T, error)) (T, error) {
	v, err := c.Scope(ctx, opts, func(ctx context.Context, h *Handle) (any, error) {
		return fn(ctx, h)
	})
	out, _ := v.(T)
	return out, err
}

// Workflow is WithInteraction with the event named after the workflow.
func Workflow[T any](ctx context.Context, c *Client, name string, opts BeginOptions, fn func(ctx context.Context, h *Handle) (T, error)) (T, error) {
	v, err := c.Workflow(ctx, name, opts, func(ctx context.Context, h *Handle) (any, error) {
		return fn(ctx, h)
	})
	out, _ := v.(T)
	return out, err
}

// Tool records fn as a tool span of the interaction active in ctx, or as a
// standalone trace when there is none.
func Tool[T any](ctx context.Context, c *Client, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	return record(ctx, c, SpanOptions{Name: name, Kind: domain.SpanKindTool}, fn)
}

// Task is Tool for a unit of agent work; the span is flagged is_task.
func Task[T any](ctx context.Context, c *Client, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	return record(ctx, c, SpanOptions{Name: name, Kind: domain.SpanKindTool, Task: true}, fn)
}

// WrapTool returns fn wrapped so every call is recorded as a tool span with
// the argument as its input.
func WrapTool[A, R any](c *Client, name string, fn func(ctx context.Context, arg A) (R, error)) func(ctx context.Context, arg A) (R, error) {
	return func(ctx context.Context, arg A) (R, error) {
		return record(ctx, c, SpanOptions{Name: name, Kind: domain.SpanKindTool, Input: arg}, func(ctx context.Context) (R, error) {
			return fn(ctx, arg)
		})
	}
}

// TraceCall records a model call; see Client.TraceCall.
func TraceCall(ctx context.Context, c *Client, call ModelCall, fn func(ctx context.Context) (*ModelResult, error)) (*ModelResult, error) {
	return c.TraceCall(ctx, call, fn)
}

func record[T any](ctx context.Context, c *Client, opts SpanOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.RecordSpan(ctx, opts, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	out, _ := v.(T)
	return out, err
}
