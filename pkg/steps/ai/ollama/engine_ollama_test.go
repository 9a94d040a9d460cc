package ollama

import (
	"context"
	"testing"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var history = conversation.History{
	{Role: conversation.HistoryRoleUser, Parts: []string{"Hello"}},
	{Role: conversation.HistoryRoleModel, Parts: []string{"Hi"}},
	{Role: conversation.HistoryRoleUser, Parts: []string{"Bye"}},
}

func TestOllamaEngineDefaultCommand(t *testing.T) {
	e, err := NewOllamaEngine()
	require.NoError(t, err)
	assert.Equal(t, []string{"ollama", "run", "mistral"}, e.Command(settings.ProviderConfig{Model: "mistral"}))
	assert.Equal(t, []string{"ollama", "run", settings.DefaultModel("Ollama")}, e.Command(settings.ProviderConfig{}))
}

func TestOllamaEngineWritesPromptToStdin(t *testing.T) {
	e, err := NewOllamaEngine(engine.WithCommand("cat"))
	require.NoError(t, err)

	reply, err := e.Send(context.Background(), history, settings.ProviderConfig{SystemPrompt: "Be nice"})
	require.NoError(t, err)
	assert.Equal(t, "Be nice\nUser: Hello\nAssistant: Hi\nUser: Bye", reply)
}

func TestOllamaEngineStderrIsAnError(t *testing.T) {
	e, err := NewOllamaEngine(engine.WithCommand("sh", "-c", "cat >/dev/null; echo boom >&2"))
	require.NoError(t, err)

	_, err = e.Send(context.Background(), history, settings.ProviderConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrSubprocess))
	assert.Contains(t, err.Error(), "boom")
}

func TestOllamaEngineExitStatusIsAnError(t *testing.T) {
	e, err := NewOllamaEngine(engine.WithCommand("sh", "-c", "cat >/dev/null; exit 3"))
	require.NoError(t, err)

	_, err = e.Send(context.Background(), history, settings.ProviderConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrSubprocess))
}

func TestOllamaEngineMissingBinary(t *testing.T) {
	e, err := NewOllamaEngine(engine.WithCommand("multichat-no-such-binary"))
	require.NoError(t, err)

	_, err = e.Send(context.Background(), history, settings.ProviderConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrSubprocess))
}

type exchangeTap struct {
	request  string
	status   int
	response string
}

func (e *exchangeTap) OnRequest(provider string, body []byte) { e.request = string(body) }

func (e *exchangeTap) OnResponse(provider string, status int, body []byte) {
	e.status = status
	e.response = string(body)
}

func TestOllamaEngineReportsToDebugTap(t *testing.T) {
	e, err := NewOllamaEngine(engine.WithCommand("sh", "-c", "cat >/dev/null; echo fail >&2; exit 3"))
	require.NoError(t, err)

	tap := &exchangeTap{}
	ctx := engine.WithDebugTap(context.Background(), tap)
	_, err = e.Send(ctx, history, settings.ProviderConfig{SystemPrompt: "Be nice"})
	require.Error(t, err)

	assert.Equal(t, "Be nice\nUser: Hello\nAssistant: Hi\nUser: Bye\n", tap.request)
	assert.Equal(t, 3, tap.status)
	assert.Equal(t, "fail\n", tap.response)
}
