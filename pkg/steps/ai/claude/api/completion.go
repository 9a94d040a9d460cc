package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/security"
	"github.com/pkg/errors"
)

// TapName is the provider name handed to debug taps.
const TapName = "Claude"

// DefaultBaseURL is the Anthropic API root. The completion endpoint lives at
// CompletionPath below it.
const (
	DefaultBaseURL = "https://api.anthropic.com"
	CompletionPath = "/v1/complete"
)

// Request represents the completion request payload.
type Request struct {
	Model             string    `json:"model"`
	Prompt            string    `json:"prompt"`
	MaxTokensToSample int       `json:"max_tokens_to_sample"`
	StopSequences     []string  `json:"stop_sequences,omitempty"`
	Temperature       *float64  `json:"temperature,omitempty"`
	Metadata          *Metadata `json:"metadata,omitempty"`
	Stream            bool      `json:"stream"`
}

// Metadata represents the metadata object for Claude API requests.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// SuccessfulResponse represents the API's successful response.
type SuccessfulResponse struct {
	Completion string `json:"completion"`
	StopReason string `json:"stop_reason"`
	Model      string `json:"model"`
}

// ErrorResponse represents the API's error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StatusError is returned for non-200 answers.
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return e.Message
}

// Client represents the Claude API client.
type Client struct {
	httpClient *http.Client
	apiKey     string
	APIVersion string
	BaseURL    string
	URLOptions security.OutboundURLOptions
}

const defaultAPIVersion = "2023-06-01"

// NewClient initializes and returns a new API client. An empty baseURL
// selects DefaultBaseURL and a nil httpClient selects http.DefaultClient.
func NewClient(apiKey string, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		BaseURL:    baseURL,
		APIVersion: defaultAPIVersion,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.APIVersion)
	req.Header.Set("Content-Type", "application/json")
}

// Endpoint returns the completion URL.
func (c *Client) Endpoint() string {
	return strings.TrimRight(c.BaseURL, "/") + CompletionPath
}

// Complete sends a completion request and returns the response.
func (c *Client) Complete(ctx context.Context, req *Request) (*SuccessfulResponse, error) {
	endpoint := c.Endpoint()
	if err := security.ValidateOutboundURL(endpoint, c.URLOptions); err != nil {
		return nil, errors.Wrap(err, "invalid claude base URL")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	engine.TapRequest(ctx, TapName, body)

	req_, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req_)

	// #nosec G704 -- URL is validated above with ValidateOutboundURL.
	resp, err := c.httpClient.Do(req_)
	if err != nil {
		engine.TapResponse(ctx, TapName, 0, err.Error())
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	engine.TapResponse(ctx, TapName, resp.StatusCode, respBody)

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errorResp ErrorResponse
		if json.Unmarshal(respBody, &errorResp) == nil && errorResp.Error.Message != "" {
			statusErr.Type = errorResp.Error.Type
			statusErr.Message = errorResp.Error.Message
		}
		return nil, statusErr
	}

	var successResp SuccessfulResponse
	if err := json.Unmarshal(respBody, &successResp); err != nil {
		return nil, err
	}

	return &successResp, nil
}
