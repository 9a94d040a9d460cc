package types

import (
	"strings"

	"github.com/pkg/errors"
)

// ProviderID names one supported backend. The string values are the labels
// used as keys in config.yaml.
type ProviderID string

const (
	ProviderGemini           ProviderID = "Google Gemini"
	ProviderOpenAI           ProviderID = "OpenAI"
	ProviderOllama           ProviderID = "Ollama"
	ProviderOpenAICompatible ProviderID = "OpenAI Compatible"
	ProviderGrok             ProviderID = "xAI Grok"
	ProviderClaude           ProviderID = "Anthropic Claude"
)

// DefaultProvider is used when the configuration names no valid provider.
const DefaultProvider = ProviderGemini

var allProviders = []ProviderID{
	ProviderGemini,
	ProviderOpenAI,
	ProviderOllama,
	ProviderOpenAICompatible,
	ProviderGrok,
	ProviderClaude,
}

var slugs = map[ProviderID]string{
	ProviderGemini:           "gemini",
	ProviderOpenAI:           "openai",
	ProviderOllama:           "ollama",
	ProviderOpenAICompatible: "openai-compatible",
	ProviderGrok:             "grok",
	ProviderClaude:           "claude",
}

// AllProviders returns every supported provider in display order.
func AllProviders() []ProviderID {
	ret := make([]ProviderID, len(allProviders))
	copy(ret, allProviders)
	return ret
}

func (p ProviderID) String() string { return string(p) }

func (p ProviderID) IsValid() bool {
	_, ok := slugs[p]
	return ok
}

// Slug is the short lowercase name used for flags and environment variables.
func (p ProviderID) Slug() string {
	return slugs[p]
}

// ParseProviderID accepts either the display label or the slug, case-insensitively.
func ParseProviderID(s string) (ProviderID, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for _, p := range allProviders {
		if strings.ToLower(string(p)) == needle || slugs[p] == needle {
			return p, nil
		}
	}
	return "", errors.Errorf("unknown provider %q", s)
}
