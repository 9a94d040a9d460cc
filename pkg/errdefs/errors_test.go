package errdefs

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", &ValidationError{Field: "text", Reason: "empty"}, ErrValidation},
		{"configuration", &ConfigurationError{Provider: "xAI Grok", Reason: "bad host"}, ErrConfiguration},
		{"transport", &TransportError{Provider: "OpenAI", StatusCode: 500, Err: errors.New("boom")}, ErrTransport},
		{"subprocess", &SubprocessError{Command: "ollama", Stderr: "no model"}, ErrSubprocess},
		{"size", &SizeLimitError{Path: "a.bin", Size: 11, Limit: 10}, ErrSizeLimit},
		{"persistence", &PersistenceError{Name: "Session_1", Op: "read", Err: errors.New("eof")}, ErrPersistence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := errors.Wrap(tc.err, "context")
			assert.True(t, errors.Is(wrapped, tc.sentinel))
			assert.False(t, errors.Is(wrapped, ErrValidation) && tc.sentinel != ErrValidation)
		})
	}
}

func TestTransportErrorMessage(t *testing.T) {
	err := &TransportError{Provider: "xAI Grok", StatusCode: 502, Err: errors.New("bad gateway")}
	assert.Equal(t, "API request failed: xAI Grok returned status 502: bad gateway", err.Error())

	err = &TransportError{Provider: "OpenAI", Err: errors.New("dial tcp: refused")}
	assert.Equal(t, "API request failed: OpenAI: dial tcp: refused", err.Error())
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(errors.Wrap(&TransportError{StatusCode: http.StatusTooManyRequests}, "attempt 1")))
	assert.False(t, IsRateLimited(&TransportError{StatusCode: http.StatusInternalServerError}))
	assert.False(t, IsRateLimited(errors.New("plain")))
}
