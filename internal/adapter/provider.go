// Package adapter translates AI provider calls into canonical trace records.
// Providers are an explicit enumeration; Detect maps a client value to one of
// them and a Registry hands out the adapter for it.
package adapter

import (
	"reflect"
	"strings"
)

// Provider identifies an AI provider.
type Provider string

const (
	OpenAI    Provider = "openai"
	Anthropic Provider = "anthropic"
	Gemini    Provider = "gemini"
	Bedrock   Provider = "bedrock"
	Unknown   Provider = "unknown"
)

// Providers lists the known providers, Unknown excluded.
var Providers = []Provider{OpenAI, Anthropic, Gemini, Bedrock}

// namer lets a client report its provider explicitly.
type namer interface {
	ProviderName() string
}

// Detect maps a client to a provider. A ProviderName method wins; otherwise
// the Go package path and type name of the client are matched. It never
// calls any other method on the client.
func Detect(client any) Provider {
	if client == nil {
		return Unknown
	}
	if n, ok := client.(namer); ok {
		return Parse(n.ProviderName())
	}

	t := reflect.TypeOf(client)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return match(t.PkgPath() + "." + t.Name())
}

// Parse converts a provider name to a Provider, returning Unknown for names
// it does not recognize.
func Parse(name string) Provider {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range Providers {
		if name == string(p) {
			return p
		}
	}
	return match(name)
}

func match(s string) Provider {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "openai"):
		return OpenAI
	case strings.Contains(s, "anthropic"), strings.Contains(s, "claude"):
		return Anthropic
	case strings.Contains(s, "gemini"), strings.Contains(s, "genai"), strings.Contains(s, "vertex"):
		return Gemini
	case strings.Contains(s, "bedrock"):
		return Bedrock
	default:
		return Unknown
	}
}
