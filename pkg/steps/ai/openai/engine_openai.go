package openai

import (
	"context"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/security"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OpenAIEngine talks to the OpenAI chat completion API, or to any server
// implementing it when the provider is OpenAI Compatible.
type OpenAIEngine struct {
	provider types.ProviderID
	config   *engine.Config
}

var _ engine.Engine = (*OpenAIEngine)(nil)

func NewOpenAIEngine(provider types.ProviderID, options ...engine.Option) (*OpenAIEngine, error) {
	if provider != types.ProviderOpenAI && provider != types.ProviderOpenAICompatible {
		return nil, errors.Errorf("provider %s is not served by the OpenAI engine", provider)
	}
	config := engine.NewConfig()
	if err := engine.ApplyOptions(config, options...); err != nil {
		return nil, err
	}
	return &OpenAIEngine{provider: provider, config: config}, nil
}

func (e *OpenAIEngine) Provider() types.ProviderID { return e.provider }

// ValidateBaseURL checks the base URL of an OpenAI Compatible server. Local
// plain-http servers are allowed, since that is the usual way to run them.
func ValidateBaseURL(provider types.ProviderID, cfg settings.ProviderConfig) error {
	if provider != types.ProviderOpenAICompatible {
		return nil
	}
	if cfg.BaseURL == "" {
		return &errdefs.ConfigurationError{Provider: provider.String(), Reason: "base URL is required"}
	}
	if err := security.ValidateOutboundURL(cfg.BaseURL, security.LocalServerOptions); err != nil {
		return &errdefs.ConfigurationError{Provider: provider.String(), Reason: err.Error()}
	}
	return nil
}

func (e *OpenAIEngine) Send(ctx context.Context, history conversation.History, cfg settings.ProviderConfig) (string, error) {
	if err := RequireAPIKey(e.provider, cfg); err != nil {
		return "", err
	}
	if err := ValidateBaseURL(e.provider, cfg); err != nil {
		return "", err
	}

	req := MakeCompletionRequest(history, cfg)
	log.Debug().
		Str("provider", e.provider.String()).
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Msg("OpenAI chat completion")

	client := MakeClient(cfg, e.config.HTTPClientOrDefault())
	resp, err := CreateChatCompletion(ctx, e.provider, client, req)
	if err != nil {
		return "", err
	}
	return ReplyText(e.provider, resp)
}
