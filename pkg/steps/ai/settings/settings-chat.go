package settings

import (
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultTemperature  = 0.7
	DefaultGrokBaseURL  = "https://api.x.ai/v1"
)

var defaultModels = map[types.ProviderID]string{
	types.ProviderGemini:           "gemini-pro",
	types.ProviderOpenAI:           "gpt-3.5-turbo",
	types.ProviderOllama:           "llama3.1:latest",
	types.ProviderOpenAICompatible: "gpt-3.5-turbo",
	types.ProviderGrok:             "grok-1",
	types.ProviderClaude:           "claude-3-opus-20240229",
}

// ProviderConfig holds the settings of a single provider. The record is
// passed explicitly into every adapter call.
type ProviderConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url,omitempty"`
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float64 `yaml:"temperature"`
}

// NewProviderConfig returns the default record for a provider.
func NewProviderConfig(id types.ProviderID) *ProviderConfig {
	c := &ProviderConfig{
		Model:        defaultModels[id],
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  DefaultTemperature,
	}
	if id == types.ProviderGrok {
		c.BaseURL = DefaultGrokBaseURL
	}
	return c
}

// DefaultModel returns the model a provider falls back to.
func DefaultModel(id types.ProviderID) string {
	return defaultModels[id]
}

func (c *ProviderConfig) Clone() *ProviderConfig {
	if c == nil {
		return nil
	}
	ret := *c
	return &ret
}

// Validate checks the fields that do not depend on the provider variant.
func (c *ProviderConfig) Validate(id types.ProviderID) error {
	if c == nil {
		return &errdefs.ConfigurationError{Provider: id.String(), Reason: "missing provider settings"}
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return &errdefs.ConfigurationError{Provider: id.String(), Reason: "temperature must be within [0, 1]"}
	}
	return nil
}

// WithAPIKeyFallback returns a copy whose empty API key is filled from
// lookup("<slug>-api-key"). The stored configuration is left untouched so
// fallback keys never end up in config.yaml.
func (c *ProviderConfig) WithAPIKeyFallback(id types.ProviderID, lookup func(string) string) ProviderConfig {
	ret := *c
	if ret.APIKey == "" && lookup != nil {
		ret.APIKey = lookup(id.Slug() + "-api-key")
	}
	return ret
}

// UnmarshalYAML accepts the legacy ollama_model key and keeps the default
// temperature when the key is absent.
func (c *ProviderConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		APIKey       string   `yaml:"api_key"`
		BaseURL      string   `yaml:"base_url"`
		Model        string   `yaml:"model"`
		OllamaModel  string   `yaml:"ollama_model"`
		SystemPrompt string   `yaml:"system_prompt"`
		Temperature  *float64 `yaml:"temperature"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.APIKey = raw.APIKey
	c.BaseURL = raw.BaseURL
	c.Model = raw.Model
	if c.Model == "" {
		c.Model = raw.OllamaModel
	}
	c.SystemPrompt = raw.SystemPrompt
	c.Temperature = DefaultTemperature
	if raw.Temperature != nil {
		c.Temperature = *raw.Temperature
	}
	return nil
}
