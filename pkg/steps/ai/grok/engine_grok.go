package grok

import (
	"context"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/security"
	"github.com/go-go-golems/multichat/pkg/steps/ai/openai"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/rs/zerolog/log"
)

// TrustedHost is the only host the bearer key is ever sent to.
const TrustedHost = "api.x.ai"

// GrokEngine calls the xAI chat completion endpoint, which speaks the OpenAI
// wire format.
type GrokEngine struct {
	config *engine.Config
}

var _ engine.Engine = (*GrokEngine)(nil)

func NewGrokEngine(options ...engine.Option) (*GrokEngine, error) {
	config := engine.NewConfig()
	if err := engine.ApplyOptions(config, options...); err != nil {
		return nil, err
	}
	return &GrokEngine{config: config}, nil
}

// BaseURL returns the configured base URL or the xAI default.
func BaseURL(cfg settings.ProviderConfig) string {
	if cfg.BaseURL == "" {
		return settings.DefaultGrokBaseURL
	}
	return cfg.BaseURL
}

// ValidateBaseURL accepts only https URLs whose host is exactly api.x.ai.
func ValidateBaseURL(cfg settings.ProviderConfig) error {
	if err := security.ValidateTrustedHost(BaseURL(cfg), TrustedHost); err != nil {
		return &errdefs.ConfigurationError{
			Provider: types.ProviderGrok.String(),
			Reason:   "untrusted base URL: " + err.Error(),
		}
	}
	return nil
}

func (e *GrokEngine) Send(ctx context.Context, history conversation.History, cfg settings.ProviderConfig) (string, error) {
	if err := ValidateBaseURL(cfg); err != nil {
		log.Warn().Err(err).Str("base_url", cfg.BaseURL).Msg("Refusing to send xAI credentials")
		return "", err
	}
	if err := openai.RequireAPIKey(types.ProviderGrok, cfg); err != nil {
		return "", err
	}

	cfg.BaseURL = BaseURL(cfg)
	req := openai.MakeCompletionRequest(history, cfg)
	log.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).Msg("xAI chat completion")

	client := openai.MakeClient(cfg, e.config.HTTPClientOrDefault())
	resp, err := openai.CreateChatCompletion(ctx, types.ProviderGrok, client, req)
	if err != nil {
		return "", err
	}
	return openai.ReplyText(types.ProviderGrok, resp)
}
