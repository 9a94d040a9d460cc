package openai

import (
	"context"
	"math"
	"net/http"
	"strings"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

// MakeClient builds a chat client for cfg. An empty base URL keeps the
// library default (api.openai.com).
func MakeClient(cfg settings.ProviderConfig, httpClient *http.Client) *go_openai.Client {
	config := go_openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	return go_openai.NewClientWithConfig(config)
}

// MakeCompletionRequest maps the normalized history onto chat messages,
// preceded by the configured system prompt.
func MakeCompletionRequest(history conversation.History, cfg settings.ProviderConfig) go_openai.ChatCompletionRequest {
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = settings.DefaultSystemPrompt
	}
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, go_openai.ChatCompletionMessage{
		Role:    go_openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range history {
		role := go_openai.ChatMessageRoleAssistant
		if m.IsUser() {
			role = go_openai.ChatMessageRoleUser
		}
		msgs = append(msgs, go_openai.ChatCompletionMessage{Role: role, Content: m.Text()})
	}

	return go_openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    msgs,
		Temperature: requestTemperature(cfg.Temperature),
	}
}

// requestTemperature keeps a configured 0 on the wire. The request field is
// omitempty, so 0 is sent as the smallest positive float32 instead.
func requestTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// CreateChatCompletion sends req and reports both sides of the exchange to
// the DebugTap of ctx, if any.
func CreateChatCompletion(
	ctx context.Context,
	provider types.ProviderID,
	client *go_openai.Client,
	req go_openai.ChatCompletionRequest,
) (go_openai.ChatCompletionResponse, error) {
	engine.TapRequest(ctx, provider.String(), req)
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		err = WrapError(provider, err)
		status := 0
		var te *errdefs.TransportError
		if errors.As(err, &te) {
			status = te.StatusCode
		}
		engine.TapResponse(ctx, provider.String(), status, err.Error())
		return resp, err
	}
	engine.TapResponse(ctx, provider.String(), http.StatusOK, resp)
	return resp, nil
}

// ReplyText returns the trimmed content of the first choice.
func ReplyText(provider types.ProviderID, resp go_openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", &errdefs.TransportError{
			Provider:   provider.String(),
			StatusCode: http.StatusOK,
			Err:        errors.New("response contained no choices"),
		}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// WrapError converts client errors into TransportErrors carrying the HTTP
// status when the server answered.
func WrapError(provider types.ProviderID, err error) error {
	if err == nil {
		return nil
	}
	te := &errdefs.TransportError{Provider: provider.String(), Err: err}

	var apiErr *go_openai.APIError
	var reqErr *go_openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		te.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		te.StatusCode = reqErr.HTTPStatusCode
	}
	return te
}

// RequireAPIKey fails with a ConfigurationError when no key is configured.
func RequireAPIKey(provider types.ProviderID, cfg settings.ProviderConfig) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return &errdefs.ConfigurationError{Provider: provider.String(), Reason: "API key is not set"}
	}
	return nil
}
