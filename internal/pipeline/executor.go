package pipeline

import (
	"context"
	"log/slog"

	"github.com/tjfontaine/rd-mini/internal/core/domain"
	"github.com/tjfontaine/rd-mini/internal/core/ports"
)

// Pipeline invokes plugin hooks in registration order.
// A nil *Pipeline is valid and runs no hooks.
type Pipeline struct {
	plugins []ports.Plugin
	logger  *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used to report failing hooks.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a pipeline over the given plugins. Nil entries are ignored.
func New(plugins []ports.Plugin, opts ...Option) *Pipeline {
	p := &Pipeline{
		plugins: make([]ports.Plugin, 0, len(plugins)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, plugin := range plugins {
		if plugin != nil {
			p.plugins = append(p.plugins, plugin)
		}
	}
	return p
}

// Plugins returns the registered plugins in order.
func (p *Pipeline) Plugins() []ports.Plugin {
	if p == nil {
		return nil
	}
	return p.plugins
}

// InteractionStart runs OnInteractionStart on every plugin that has it.
func (p *Pipeline) InteractionStart(ix *domain.Interaction) {
	if p == nil {
		return
	}
	for _, plugin := range p.plugins {
		if h, ok := plugin.(ports.InteractionStarter); ok {
			p.invoke(plugin, domain.HookInteractionStart, func() error {
				return h.OnInteractionStart(ix)
			})
		}
	}
}

// InteractionEnd runs OnInteractionEnd on every plugin that has it.
func (p *Pipeline) InteractionEnd(ix *domain.Interaction) {
	if p == nil {
		return
	}
	for _, plugin := range p.plugins {
		if h, ok := plugin.(ports.InteractionEnder); ok {
			p.invoke(plugin, domain.HookInteractionEnd, func() error {
				return h.OnInteractionEnd(ix)
			})
		}
	}
}

// Span runs OnSpan on every plugin that has it.
func (p *Pipeline) Span(span *domain.Span) {
	if p == nil {
		return
	}
	for _, plugin := range p.plugins {
		if h, ok := plugin.(ports.SpanObserver); ok {
			p.invoke(plugin, domain.HookSpan, func() error {
				return h.OnSpan(span)
			})
		}
	}
}

// Trace runs OnTrace on every plugin that has it.
func (p *Pipeline) Trace(tr *domain.Trace) {
	if p == nil {
		return
	}
	for _, plugin := range p.plugins {
		if h, ok := plugin.(ports.TraceObserver); ok {
			p.invoke(plugin, domain.HookTrace, func() error {
				return h.OnTrace(tr)
			})
		}
	}
}

// Flush awaits every plugin's Flush in order.
func (p *Pipeline) Flush(ctx context.Context) {
	if p == nil {
		return
	}
	for _, plugin := range p.plugins {
		if h, ok := plugin.(ports.Flusher); ok {
			p.invoke(plugin, domain.HookFlush, func() error {
				return h.Flush(ctx)
			})
		}
	}
}

// Shutdown awaits every plugin's Shutdown in order.
func (p *Pipeline) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	for _, plugin := range p.plugins {
		if h, ok := plugin.(ports.Shutdowner); ok {
			p.invoke(plugin, domain.HookShutdown, func() error {
				return h.Shutdown(ctx)
			})
		}
	}
}

func (p *Pipeline) invoke(plugin ports.Plugin, hook string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.report(plugin, hook, domain.PanicError(r))
		}
	}()
	if err := fn(); err != nil {
		p.report(plugin, hook, err)
	}
}

func (p *Pipeline) report(plugin ports.Plugin, hook string, err error) {
	perr := &domain.PluginError{Plugin: plugin.Name(), Hook: hook, Err: err}
	p.logger.Warn("plugin hook failed",
		slog.String("plugin", perr.Plugin),
		slog.String("hook", hook),
		slog.String("error", perr.Error()),
	)
}
