package gemini

import (
	"context"
	"net/http"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	genai "github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// GeminiEngine runs a chat session against the Gemini API. A client is built
// per call from the configuration passed in.
type GeminiEngine struct {
	config *engine.Config
}

var _ engine.Engine = (*GeminiEngine)(nil)

func NewGeminiEngine(options ...engine.Option) (*GeminiEngine, error) {
	config := engine.NewConfig()
	if err := engine.ApplyOptions(config, options...); err != nil {
		return nil, err
	}
	return &GeminiEngine{config: config}, nil
}

func (e *GeminiEngine) Send(ctx context.Context, history conversation.History, cfg settings.ProviderConfig) (string, error) {
	if cfg.APIKey == "" {
		return "", &errdefs.ConfigurationError{Provider: types.ProviderGemini.String(), Reason: "API key is not set"}
	}
	if len(history) == 0 {
		return "", &errdefs.ValidationError{Field: "history", Reason: "nothing to send"}
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", errors.Wrap(err, "failed to create gemini client")
	}
	defer func() {
		_ = client.Close()
	}()

	modelName := cfg.Model
	if modelName == "" {
		modelName = settings.DefaultModel(types.ProviderGemini)
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(float32(cfg.Temperature))
	if cfg.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(cfg.SystemPrompt)}}
	}

	cs := model.StartChat()
	prior, last := splitHistory(history)
	cs.History = prior

	log.Debug().Str("model", modelName).Int("history", len(prior)).Msg("Gemini SendMessage")
	engine.TapRequest(ctx, types.ProviderGemini.String(), tapRequest{
		Model:             modelName,
		Temperature:       cfg.Temperature,
		SystemInstruction: cfg.SystemPrompt,
		History:           prior,
		Message:           last,
	})
	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		te := wrapError(err)
		engine.TapResponse(ctx, types.ProviderGemini.String(), te.StatusCode, te.Error())
		return "", te
	}
	engine.TapResponse(ctx, types.ProviderGemini.String(), http.StatusOK, resp)
	return responseText(resp), nil
}

// tapRequest is what a debug tap sees of a Gemini call; the SDK does not
// expose the wire payload.
type tapRequest struct {
	Model             string           `json:"model"`
	Temperature       float64          `json:"temperature"`
	SystemInstruction string           `json:"system_instruction,omitempty"`
	History           []*genai.Content `json:"history"`
	Message           []genai.Part     `json:"message"`
}

func wrapError(err error) *errdefs.TransportError {
	te := &errdefs.TransportError{Provider: types.ProviderGemini.String(), Err: err}
	if ae, ok := apierror.FromError(err); ok {
		if code := ae.HTTPCode(); code > 0 {
			te.StatusCode = code
		} else if st := ae.GRPCStatus(); st != nil && st.Code() == codes.ResourceExhausted {
			te.StatusCode = http.StatusTooManyRequests
		}
	}
	return te
}
