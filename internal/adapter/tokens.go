package adapter

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/rd-mini/internal/codec/wire"
	"github.com/tjfontaine/rd-mini/internal/core/domain"
)

// TokenEstimator estimates token counts with tiktoken encodings. Models
// without a known encoding fall back to o200k_base; if no codec loads at all
// it uses CharsPerToken.
type TokenEstimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64

	mu     sync.RWMutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

// NewTokenEstimator creates a token estimator.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{
		CharsPerToken: 4.0,
		codecs:        make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

// CountText counts tokens in text for model.
func (e *TokenEstimator) CountText(model, text string) int {
	if text == "" {
		return 0
	}
	codec, err := e.codec(model)
	if err == nil {
		if ids, _, err := codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return int(float64(len(text))/e.CharsPerToken + 0.5)
}

// Estimate returns token usage for a call's input and output. Structured
// values are counted in their JSON form.
func (e *TokenEstimator) Estimate(model string, input, output any) *domain.TokenUsage {
	in := e.CountText(model, text(input))
	out := e.CountText(model, text(output))
	return &domain.TokenUsage{Input: in, Output: out, Total: in + out}
}

func (e *TokenEstimator) codec(model string) (tokenizer.Codec, error) {
	enc := encodingFor(model)

	e.mu.RLock()
	if c, ok := e.codecs[enc]; ok {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	c, err := tokenizer.Get(enc)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.codecs[enc] = c
	e.mu.Unlock()
	return c, nil
}

// encodingFor picks the tiktoken encoding for a model name.
//
// Encoding reference:
// - O200kBase: GPT-4o, GPT-4.1, GPT-5, o-series and unknown models
// - Cl100kBase: GPT-4, GPT-3.5-turbo, text-embedding-*
func encodingFor(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	case strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

func text(v any) string {
	if s := wire.ToAPIString(v); s != nil {
		return *s
	}
	return ""
}
