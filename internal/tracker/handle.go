package tracker

import (
	"maps"
	"sync"

	"github.com/tjfontaine/rd-mini/internal/core/domain"
)

// Handle controls one interaction. Every method is safe for concurrent use.
// Setters become no-ops once the interaction has finished.
type Handle struct {
	ctrl *Controller
	id   string

	mu    sync.Mutex
	ix    *domain.Interaction
	state domain.InteractionState
	// scopes the handle has been published into; cleared on finish
	scopes []*scope
}

// ID returns the interaction ID.
func (h *Handle) ID() string {
	return h.id
}

// SetInput sets the interaction input.
func (h *Handle) SetInput(input string) *Handle {
	h.update(func(ix *domain.Interaction) { ix.Input = input })
	return h
}

// SetOutput sets the interaction output.
func (h *Handle) SetOutput(output string) *Handle {
	h.update(func(ix *domain.Interaction) { ix.Output = output })
	return h
}

// Output returns the current output.
func (h *Handle) Output() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ix.Output
}

// SetModel names the primary model of the interaction.
func (h *Handle) SetModel(model string) *Handle {
	h.update(func(ix *domain.Interaction) { ix.Model = model })
	return h
}

// SetProperty sets a single property.
func (h *Handle) SetProperty(key string, value any) *Handle {
	h.update(func(ix *domain.Interaction) { ix.Properties[key] = value })
	return h
}

// SetProperties merges props into the interaction properties.
func (h *Handle) SetProperties(props map[string]any) *Handle {
	h.update(func(ix *domain.Interaction) { maps.Copy(ix.Properties, props) })
	return h
}

// AddAttachments appends caller attachments.
func (h *Handle) AddAttachments(attachments ...domain.Attachment) *Handle {
	h.update(func(ix *domain.Interaction) { ix.Attachments = append(ix.Attachments, attachments...) })
	return h
}

// Finished reports whether Finish has run.
func (h *Handle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == domain.InteractionFinished
}

// Finish merges opts, runs the end hooks and enqueues the interaction.
// Only the first call has any effect.
func (h *Handle) Finish(opts ...domain.FinishOptions) {
	h.ctrl.finish(h, opts...)
}

func (h *Handle) update(fn func(ix *domain.Interaction)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == domain.InteractionFinished {
		return
	}
	fn(h.ix)
}

// addSpan appends s unless the interaction has already finished.
func (h *Handle) addSpan(s *domain.Span) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == domain.InteractionFinished {
		return false
	}
	h.ix.Spans = append(h.ix.Spans, s)
	return true
}

func (h *Handle) setError(msg string) {
	h.update(func(ix *domain.Interaction) { ix.Error = msg })
}

// setOutputIfEmpty reports whether the output was set.
func (h *Handle) setOutputIfEmpty(output string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == domain.InteractionFinished || h.ix.Output != "" {
		return false
	}
	h.ix.Output = output
	return true
}

func (h *Handle) track(s *scope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == domain.InteractionFinished {
		return
	}
	h.scopes = append(h.scopes, s)
}

// markFinished transitions to Finished, merging opts, and returns the
// interaction and the scopes to clear. ok is false if it was already finished.
func (h *Handle) markFinished(opts []domain.FinishOptions) (ix *domain.Interaction, scopes []*scope, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == domain.InteractionFinished {
		return nil, nil, false
	}
	for _, o := range opts {
		if o.Output != "" {
			h.ix.Output = o.Output
		}
		maps.Copy(h.ix.Properties, o.Properties)
		h.ix.Attachments = append(h.ix.Attachments, o.Attachments...)
	}
	h.state = domain.InteractionFinished
	scopes, h.scopes = h.scopes, nil
	return h.ix, scopes, true
}
