package factory

import (
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/steps/ai/claude"
	"github.com/go-go-golems/multichat/pkg/steps/ai/gemini"
	"github.com/go-go-golems/multichat/pkg/steps/ai/grok"
	"github.com/go-go-golems/multichat/pkg/steps/ai/ollama"
	"github.com/go-go-golems/multichat/pkg/steps/ai/openai"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/pkg/errors"
)

// EngineFactory creates inference engines for provider identifiers, so that
// callers never need to know the concrete adapters.
type EngineFactory interface {
	// CreateEngine returns the adapter for id.
	CreateEngine(id types.ProviderID) (engine.Engine, error)

	// ValidateSettings runs the checks that must pass before a provider
	// becomes active.
	ValidateSettings(id types.ProviderID, cfg *settings.ProviderConfig) error

	// SupportedProviders returns the provider identifiers this factory serves.
	SupportedProviders() []types.ProviderID

	// DefaultProvider is the provider used when none is configured.
	DefaultProvider() types.ProviderID
}

// StandardEngineFactory is the default EngineFactory. Its options are passed
// to every engine it creates.
type StandardEngineFactory struct {
	Options []engine.Option
}

var _ EngineFactory = (*StandardEngineFactory)(nil)

func NewStandardEngineFactory(options ...engine.Option) *StandardEngineFactory {
	return &StandardEngineFactory{Options: options}
}

func (f *StandardEngineFactory) CreateEngine(id types.ProviderID) (engine.Engine, error) {
	switch id {
	case types.ProviderOpenAI, types.ProviderOpenAICompatible:
		return openai.NewOpenAIEngine(id, f.Options...)
	case types.ProviderGrok:
		return grok.NewGrokEngine(f.Options...)
	case types.ProviderClaude:
		return claude.NewClaudeEngine(f.Options...)
	case types.ProviderGemini:
		return gemini.NewGeminiEngine(f.Options...)
	case types.ProviderOllama:
		return ollama.NewOllamaEngine(f.Options...)
	default:
		return nil, &errdefs.ConfigurationError{Provider: string(id), Reason: "unsupported provider"}
	}
}

func (f *StandardEngineFactory) SupportedProviders() []types.ProviderID {
	return types.AllProviders()
}

func (f *StandardEngineFactory) DefaultProvider() types.ProviderID {
	return types.DefaultProvider
}

// ValidateSettings checks the provider-independent fields, then the base URL
// rules of the variant. Missing API keys are not an activation error; they
// surface when a reply is requested.
func (f *StandardEngineFactory) ValidateSettings(id types.ProviderID, cfg *settings.ProviderConfig) error {
	if !id.IsValid() {
		return &errdefs.ConfigurationError{Provider: string(id), Reason: "unsupported provider"}
	}
	if err := cfg.Validate(id); err != nil {
		return err
	}

	switch id {
	case types.ProviderGrok:
		return grok.ValidateBaseURL(*cfg)
	case types.ProviderOpenAICompatible:
		return openai.ValidateBaseURL(id, *cfg)
	case types.ProviderClaude:
		return claude.ValidateBaseURL(*cfg)
	case types.ProviderOpenAI, types.ProviderGemini, types.ProviderOllama:
		return nil
	default:
		return errors.Errorf("unknown provider %s", id)
	}
}

// New creates an engine with a StandardEngineFactory.
func New(id types.ProviderID, options ...engine.Option) (engine.Engine, error) {
	return NewStandardEngineFactory(options...).CreateEngine(id)
}

// Validate runs the activation checks of a StandardEngineFactory.
func Validate(id types.ProviderID, cfg *settings.ProviderConfig) error {
	return NewStandardEngineFactory().ValidateSettings(id, cfg)
}
