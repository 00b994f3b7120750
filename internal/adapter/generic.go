package adapter

import (
	"maps"
	"time"

	"github.com/tjfontaine/rd-mini/internal/core/domain"
	"github.com/tjfontaine/rd-mini/internal/core/ports"
	"github.com/tjfontaine/rd-mini/internal/idgen"
)

// Generic builds traces for any provider from the call description and the
// result reported by the caller. Missing token counts are estimated unless
// estimation is turned off.
type Generic struct {
	provider  Provider
	estimator *TokenEstimator
}

// GenericOption configures a Generic adapter.
type GenericOption func(*Generic)

// WithEstimator sets the token estimator; nil disables estimation.
func WithEstimator(e *TokenEstimator) GenericOption {
	return func(g *Generic) {
		g.estimator = e
	}
}

// NewGeneric creates a generic adapter for p.
func NewGeneric(p Provider, opts ...GenericOption) *Generic {
	g := &Generic{
		provider:  p,
		estimator: NewTokenEstimator(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the provider name.
func (g *Generic) Provider() string {
	return string(g.provider)
}

// BuildTrace produces the canonical trace for a finished call.
func (g *Generic) BuildTrace(call ports.ModelCall, res *ports.ModelResult, callErr error, end time.Time) *domain.Trace {
	id := call.TraceID
	if id == "" {
		id = idgen.NewTraceID()
	}
	provider := call.Provider
	if provider == "" {
		provider = string(g.provider)
	}

	tr := &domain.Trace{
		ID:             id,
		Provider:       provider,
		Model:          call.Model,
		Input:          call.Input,
		StartTime:      call.StartTime,
		EndTime:        end,
		UserID:         call.UserID,
		ConversationID: call.ConversationID,
		Properties:     make(map[string]any, len(call.Properties)),
	}
	maps.Copy(tr.Properties, call.Properties)

	if callErr != nil {
		tr.Error = callErr.Error()
	}
	if res != nil {
		if res.Model != "" {
			tr.Model = res.Model
		}
		tr.Output = res.Output
		tr.Tokens = res.Tokens
		tr.ToolCalls = res.ToolCalls
		maps.Copy(tr.Properties, res.Properties)
	}

	if tr.Tokens == nil && g.estimator != nil && callErr == nil {
		tr.Tokens = g.estimator.Estimate(tr.Model, tr.Input, tr.Output)
		tr.Properties["tokens_estimated"] = true
	}
	return tr
}

var _ ports.Adapter = (*Generic)(nil)
