package claude

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/security"
	"github.com/go-go-golems/multichat/pkg/steps/ai/claude/api"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MaxTokensToSample is the completion budget of every request.
const MaxTokensToSample = 10000

// ClaudeEngine uses the Anthropic text completion endpoint with a flattened
// Human/Assistant prompt.
type ClaudeEngine struct {
	config *engine.Config
	// URLOptions relaxes base URL validation, for local test servers.
	URLOptions security.OutboundURLOptions
}

var _ engine.Engine = (*ClaudeEngine)(nil)

func NewClaudeEngine(options ...engine.Option) (*ClaudeEngine, error) {
	config := engine.NewConfig()
	if err := engine.ApplyOptions(config, options...); err != nil {
		return nil, err
	}
	return &ClaudeEngine{config: config}, nil
}

// ValidateBaseURL rejects malformed or local base URLs.
func ValidateBaseURL(cfg settings.ProviderConfig) error {
	if cfg.BaseURL == "" {
		return nil
	}
	if err := security.ValidateOutboundURL(cfg.BaseURL, security.OutboundURLOptions{}); err != nil {
		return &errdefs.ConfigurationError{Provider: types.ProviderClaude.String(), Reason: err.Error()}
	}
	return nil
}

func (e *ClaudeEngine) Send(ctx context.Context, history conversation.History, cfg settings.ProviderConfig) (string, error) {
	if cfg.APIKey == "" {
		return "", &errdefs.ConfigurationError{Provider: types.ProviderClaude.String(), Reason: "API key is not set"}
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = settings.DefaultSystemPrompt
	}
	temperature := cfg.Temperature
	req := &api.Request{
		Model:             cfg.Model,
		Prompt:            conversation.FlattenPrompt(systemPrompt, history, conversation.AnthropicPromptStyle),
		MaxTokensToSample: MaxTokensToSample,
		Temperature:       &temperature,
	}

	client := api.NewClient(cfg.APIKey, cfg.BaseURL, e.config.HTTPClientOrDefault())
	client.URLOptions = e.URLOptions
	log.Debug().Str("model", req.Model).Int("prompt_len", len(req.Prompt)).Msg("Claude completion")

	resp, err := client.Complete(ctx, req)
	if err != nil {
		return "", wrapError(err)
	}
	return strings.TrimSpace(resp.Completion), nil
}

func wrapError(err error) error {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return &errdefs.TransportError{Provider: types.ProviderClaude.String(), StatusCode: statusErr.StatusCode, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &errdefs.TransportError{Provider: types.ProviderClaude.String(), Err: err}
	}
	return errors.Wrap(err, "claude completion")
}
