package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	provider string
	status   int
	body     string
}

type recordingTap struct {
	requests  []recordedCall
	responses []recordedCall
}

func (r *recordingTap) OnRequest(provider string, body []byte) {
	r.requests = append(r.requests, recordedCall{provider: provider, body: string(body)})
}

func (r *recordingTap) OnResponse(provider string, status int, body []byte) {
	r.responses = append(r.responses, recordedCall{provider: provider, status: status, body: string(body)})
}

func TestTapWithoutTapIsNoop(t *testing.T) {
	ctx := context.Background()
	_, ok := DebugTapFrom(ctx)
	assert.False(t, ok)
	TapRequest(ctx, "OpenAI", map[string]string{"a": "b"})
	TapResponse(ctx, "OpenAI", 200, "ok")
}

func TestTapEncodesPayloads(t *testing.T) {
	tap := &recordingTap{}
	ctx := WithDebugTap(context.Background(), tap)

	TapRequest(ctx, "OpenAI", map[string]string{"model": "gpt-4"})
	TapRequest(ctx, "Ollama", "User: hi\n")
	TapResponse(ctx, "Claude", 429, []byte(`{"error":{}}`))
	TapResponse(ctx, "Gemini", 200, func() {})

	require.Len(t, tap.requests, 2)
	assert.JSONEq(t, `{"model":"gpt-4"}`, tap.requests[0].body)
	assert.Equal(t, "User: hi\n", tap.requests[1].body)
	require.Len(t, tap.responses, 1, "unencodable payloads are skipped")
	assert.Equal(t, recordedCall{provider: "Claude", status: 429, body: `{"error":{}}`}, tap.responses[0])
}

func TestDiskTapWritesPairedFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tap")
	tap, err := NewDiskTap(dir)
	require.NoError(t, err)
	ctx := WithDebugTap(context.Background(), tap)

	TapRequest(ctx, "OpenAI Compatible", []byte(`{"model":"llama"}`))
	TapResponse(ctx, "OpenAI Compatible", 200, "plain text")

	req, err := os.ReadFile(filepath.Join(dir, "0001-OpenAI_Compatible-request.json"))
	require.NoError(t, err)
	var reqEnv map[string]any
	require.NoError(t, json.Unmarshal(req, &reqEnv))
	assert.Equal(t, "OpenAI Compatible", reqEnv["provider"])
	assert.Equal(t, map[string]any{"model": "llama"}, reqEnv["body"])

	resp, err := os.ReadFile(filepath.Join(dir, "0001-OpenAI_Compatible-response.json"))
	require.NoError(t, err)
	var respEnv map[string]any
	require.NoError(t, json.Unmarshal(resp, &respEnv))
	assert.Equal(t, float64(200), respEnv["status"])
	assert.Equal(t, "plain text", respEnv["body"])
}
