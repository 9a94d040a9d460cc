package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/security"
	"github.com/go-go-golems/multichat/pkg/steps/ai/claude/api"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localEngine(t *testing.T) *ClaudeEngine {
	e, err := NewClaudeEngine()
	require.NoError(t, err)
	e.URLOptions = security.OutboundURLOptions{AllowHTTP: true, AllowLocalNetworks: true}
	return e
}

func TestClaudeEngineSend(t *testing.T) {
	var got api.Request
	var headers http.Header
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"completion":" I am well. ","stop_reason":"stop_sequence","model":"claude"}`))
	}))
	defer srv.Close()

	history := conversation.History{
		{Role: conversation.HistoryRoleUser, Parts: []string{"Hello"}},
		{Role: conversation.HistoryRoleModel, Parts: []string{"Hi"}},
		{Role: conversation.HistoryRoleUser, Parts: []string{"How are you?"}},
	}
	cfg := settings.ProviderConfig{APIKey: "ak", BaseURL: srv.URL, Model: "claude-3-opus-20240229", SystemPrompt: "Be nice", Temperature: 0.7}

	reply, err := localEngine(t).Send(context.Background(), history, cfg)
	require.NoError(t, err)
	assert.Equal(t, "I am well.", reply)

	assert.Equal(t, "/v1/complete", path)
	assert.Equal(t, "ak", headers.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", headers.Get("anthropic-version"))
	assert.Equal(t, MaxTokensToSample, got.MaxTokensToSample)
	assert.Equal(t, "claude-3-opus-20240229", got.Model)
	assert.Equal(t, "Be nice\n\nHuman: Hello\nAssistant: Hi\nHuman: How are you?\n", got.Prompt)
}

type exchangeTap struct {
	request  []byte
	status   int
	response []byte
}

func (e *exchangeTap) OnRequest(provider string, body []byte) { e.request = body }

func (e *exchangeTap) OnResponse(provider string, status int, body []byte) {
	e.status = status
	e.response = body
}

func TestClaudeEngineReportsToDebugTap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	tap := &exchangeTap{}
	ctx := engine.WithDebugTap(context.Background(), tap)
	cfg := settings.ProviderConfig{APIKey: "ak", BaseURL: srv.URL, Model: "claude-2", Temperature: 0}
	_, err := localEngine(t).Send(ctx, conversation.History{
		{Role: conversation.HistoryRoleUser, Parts: []string{"Hello"}},
	}, cfg)
	require.Error(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(tap.request, &req))
	assert.Equal(t, "claude-2", req["model"])
	assert.Contains(t, req, "temperature")
	assert.Equal(t, http.StatusTooManyRequests, tap.status)
	assert.Contains(t, string(tap.response), "slow down")
}

func TestClaudeEngineStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	cfg := settings.ProviderConfig{APIKey: "ak", BaseURL: srv.URL, Model: "m"}
	_, err := localEngine(t).Send(context.Background(), nil, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrTransport))
	assert.True(t, errdefs.IsRateLimited(err))
	assert.Contains(t, err.Error(), "slow down")
}

func TestClaudeEngineRejectsLocalURLByDefault(t *testing.T) {
	e, err := NewClaudeEngine()
	require.NoError(t, err)

	cfg := settings.ProviderConfig{APIKey: "ak", BaseURL: "http://127.0.0.1:9", Model: "m"}
	_, err = e.Send(context.Background(), nil, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid claude base URL")

	assert.Error(t, ValidateBaseURL(cfg))
	assert.NoError(t, ValidateBaseURL(settings.ProviderConfig{}))
}

func TestClaudeEngineMissingKey(t *testing.T) {
	_, err := localEngine(t).Send(context.Background(), nil, settings.ProviderConfig{Model: "m"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrConfiguration))
}
