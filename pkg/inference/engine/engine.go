package engine

import (
	"context"
	"net/http"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
)

// Engine sends a normalized history to one provider and returns the reply
// text. Engines hold no credentials: every call receives the provider
// configuration, so an engine can be reused across configuration changes.
type Engine interface {
	Send(ctx context.Context, history conversation.History, cfg settings.ProviderConfig) (string, error)
}

// Option configures the transport of an engine.
type Option func(*Config) error

// Config holds the transport overrides shared by all engines.
type Config struct {
	// HTTPClient is used by the HTTP based engines. Nil means http.DefaultClient.
	HTTPClient *http.Client
	// Command replaces the subprocess argv of the Ollama engine.
	Command []string
}

func NewConfig() *Config {
	return &Config{}
}

func WithHTTPClient(c *http.Client) Option {
	return func(cfg *Config) error {
		cfg.HTTPClient = c
		return nil
	}
}

func WithCommand(argv ...string) Option {
	return func(cfg *Config) error {
		cfg.Command = append([]string(nil), argv...)
		return nil
	}
}

// ApplyOptions applies options in order and stops at the first error.
func ApplyOptions(cfg *Config, options ...Option) error {
	for _, option := range options {
		if err := option(cfg); err != nil {
			return err
		}
	}
	return nil
}

// HTTPClientOrDefault returns the configured client or http.DefaultClient.
func (c *Config) HTTPClientOrDefault() *http.Client {
	if c == nil || c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}
