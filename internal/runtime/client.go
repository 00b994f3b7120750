// Package runtime wires configuration, plugins, the interaction tracker and
// the transport queue into a single Client.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tjfontaine/rd-mini/internal/adapter"
	"github.com/tjfontaine/rd-mini/internal/codec/wire"
	"github.com/tjfontaine/rd-mini/internal/core/domain"
	"github.com/tjfontaine/rd-mini/internal/core/ports"
	"github.com/tjfontaine/rd-mini/internal/pipeline"
	"github.com/tjfontaine/rd-mini/internal/pkg/config"
	"github.com/tjfontaine/rd-mini/internal/plugins/otelexport"
	"github.com/tjfontaine/rd-mini/internal/plugins/pii"
	"github.com/tjfontaine/rd-mini/internal/tracker"
	"github.com/tjfontaine/rd-mini/internal/transport"
)

// Client is the entry point for recording interactions, spans and model
// calls. It is safe for concurrent use.
type Client struct {
	cfg    config.Config
	logger *slog.Logger

	plugins    []ports.Plugin
	httpClient *http.Client
	metrics    *transport.Metrics

	sink     ports.Sink
	pipeline *pipeline.Pipeline
	tracker  *tracker.Controller
	adapters *adapter.Registry

	userID atomic.Pointer[string]

	closeOnce sync.Once
	closeErr  error
}

// New creates a client from cfg.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      *cfg,
		adapters: adapter.NewRegistry(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	custom := c.plugins
	c.plugins = nil

	if c.logger == nil {
		c.logger = slog.Default()
		if cfg.Debug {
			c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}

	// redaction runs first so every later plugin sees redacted values
	if cfg.RedactPII {
		c.plugins = append(c.plugins, pii.New(pii.Options{}))
	}
	c.plugins = append(c.plugins, custom...)
	if cfg.OTel.Enabled {
		tp, err := otelexport.NewTracerProvider(otelexport.Config{
			Exporter:    cfg.OTel.Exporter,
			ServiceName: cfg.OTel.ServiceName,
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("init otel export: %w", err)
		}
		c.plugins = append(c.plugins, otelexport.New(tp, otelexport.WithOwnedProvider()))
	}

	if c.sink == nil {
		c.sink = transport.New(transport.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Disabled:       cfg.Disabled,
			FlushInterval:  cfg.FlushInterval,
			MaxQueueSize:   cfg.MaxQueueSize,
			MaxRetries:     cfg.MaxRetries,
			RetryBaseDelay: cfg.RetryBaseDelay,
			Timeout:        cfg.Timeout,
			Compress:       cfg.Compress,
			HTTPClient:     c.httpClient,
			Logger:         c.logger,
			Metrics:        c.metrics,
		})
	}

	c.pipeline = pipeline.New(c.plugins, pipeline.WithLogger(c.logger))
	c.tracker = tracker.New(c.sink,
		tracker.WithLogger(c.logger),
		tracker.WithPipeline(c.pipeline),
		tracker.WithUserID(c.currentUserID),
	)

	names := make([]string, 0, len(c.plugins))
	for _, p := range c.pipeline.Plugins() {
		names = append(names, p.Name())
	}
	c.logger.Debug("client initialized",
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("disabled", cfg.Disabled),
		slog.Any("plugins", names),
	)
	return c, nil
}

// Tracker returns the underlying lifecycle controller.
func (c *Client) Tracker() *tracker.Controller {
	return c.tracker
}

// Adapters returns the provider adapter registry used by TraceCall.
func (c *Client) Adapters() *adapter.Registry {
	return c.adapters
}

// Begin starts a manually finished interaction.
func (c *Client) Begin(ctx context.Context, opts domain.BeginOptions) (context.Context, *tracker.Handle) {
	return c.tracker.Begin(ctx, opts)
}

// Scope runs fn inside an interaction finished when fn returns.
func (c *Client) Scope(ctx context.Context, opts domain.BeginOptions, fn func(ctx context.Context, h *tracker.Handle) (any, error)) (any, error) {
	return c.tracker.Scope(ctx, opts, fn)
}

// Workflow runs fn inside an interaction named after the workflow.
func (c *Client) Workflow(ctx context.Context, name string, opts domain.BeginOptions, fn func(ctx context.Context, h *tracker.Handle) (any, error)) (any, error) {
	return c.tracker.Workflow(ctx, name, opts, fn)
}

// Resume makes the interaction with the given ID current in ctx.
func (c *Client) Resume(ctx context.Context, id string) (context.Context, *tracker.Handle) {
	return c.tracker.Resume(ctx, id)
}

// RecordSpan times fn as a span of the interaction active in ctx.
func (c *Client) RecordSpan(ctx context.Context, opts tracker.SpanOptions, fn func(ctx context.Context) (any, error)) (any, error) {
	return c.tracker.RecordSpan(ctx, opts, fn)
}

// StartSpan starts a manually ended span.
func (c *Client) StartSpan(ctx context.Context, opts tracker.SpanOptions) *tracker.SpanHandle {
	return c.tracker.StartSpan(ctx, opts)
}

// LastTraceID returns the ID of the most recently sent trace or interaction.
func (c *Client) LastTraceID() string {
	return c.tracker.LastTraceID()
}

// Identify sets the user attributed to later interactions and traces that
// name no user. Traits, when given, are sent to the collector.
func (c *Client) Identify(userID string, traits *domain.UserTraits) {
	c.userID.Store(&userID)
	if traits != nil {
		c.sink.Enqueue(ports.EventIdentify, wire.FormatIdentify(userID, *traits))
	}
	c.logger.Debug("user identified", slog.String("user_id", userID))
}

// Feedback sends a simple judgment on a prior trace or interaction.
func (c *Client) Feedback(eventID string, fb domain.Feedback) {
	c.sink.Enqueue(ports.EventFeedback, wire.FormatFeedback(eventID, fb, time.Now()))
	c.logger.Debug("feedback sent", slog.String("event_id", eventID))
}

// TrackSignal sends a fully specified signal.
func (c *Client) TrackSignal(sig domain.Signal) {
	c.sink.Enqueue(ports.EventFeedback, wire.FormatSignal(sig, time.Now()))
	c.logger.Debug("signal sent",
		slog.String("event_id", sig.EventID),
		slog.String("signal", sig.Name),
	)
}

// Flush runs plugin flush hooks and then delivers everything queued.
func (c *Client) Flush(ctx context.Context) error {
	c.pipeline.Flush(ctx)
	return c.sink.Flush(ctx)
}

// Close flushes plugins, shuts them down and closes the transport. Later
// calls return the first result.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.pipeline.Flush(ctx)
		c.pipeline.Shutdown(ctx)
		c.closeErr = c.sink.Close(ctx)
		c.logger.Debug("client closed")
	})
	return c.closeErr
}

func (c *Client) currentUserID() string {
	if p := c.userID.Load(); p != nil {
		return *p
	}
	return ""
}
