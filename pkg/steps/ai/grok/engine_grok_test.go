package grok

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redirectTransport sends every request to target, keeping the path.
type redirectTransport struct {
	target *url.URL
	hosts  []string
}

func (rt *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.hosts = append(rt.hosts, req.URL.Host)
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func history() conversation.History {
	return conversation.History{{Role: conversation.HistoryRoleUser, Parts: []string{"Hello"}}}
}

func TestGrokEngineSendsToXAI(t *testing.T) {
	var path, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Hi from grok "}}]}`))
	}))
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	rt := &redirectTransport{target: target}

	e, err := NewGrokEngine(engine.WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	cfg := *settings.NewProviderConfig(types.ProviderGrok)
	cfg.APIKey = "xai-key"
	reply, err := e.Send(context.Background(), history(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "Hi from grok", reply)
	assert.Equal(t, "/v1/chat/completions", path)
	assert.Equal(t, "Bearer xai-key", auth)
	assert.Equal(t, []string{"api.x.ai"}, rt.hosts)
}

func TestGrokEngineRefusesUntrustedHost(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	e, err := NewGrokEngine(engine.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	for _, base := range []string{
		"https://evil.example.com",
		"https://api.x.ai.evil.example.com/v1",
		"http://api.x.ai/v1",
		srv.URL,
	} {
		cfg := settings.ProviderConfig{APIKey: "xai-key", BaseURL: base, Model: "grok-1"}
		_, err := e.Send(context.Background(), history(), cfg)
		require.Error(t, err, base)
		assert.True(t, errors.Is(err, errdefs.ErrConfiguration), base)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestValidateBaseURLDefault(t *testing.T) {
	assert.NoError(t, ValidateBaseURL(settings.ProviderConfig{}))
	assert.Equal(t, "https://api.x.ai/v1", BaseURL(settings.ProviderConfig{}))
}

func TestGrokEngineMissingKey(t *testing.T) {
	e, err := NewGrokEngine()
	require.NoError(t, err)
	_, err = e.Send(context.Background(), history(), settings.ProviderConfig{Model: "grok-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrConfiguration))
}
