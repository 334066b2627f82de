// Package client is the consuming half of the generation pipeline: it posts
// prompts to the assistant backend, reconstructs streamed responses from the
// envelope protocol, and reveals text progressively through the typewriter.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const generatePath = "/v1/generate"

// Client talks to the assistant backend's generate endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateParams is one generation submission.
type GenerateParams struct {
	Model     string
	Prompt    string
	SessionID string

	MaxTokens   int
	Temperature float64
	TopP        float64
}

// GenerateResult is the finalized outcome of one generation.
type GenerateResult struct {
	Text string
	// Fallback reports that the server degraded a grounded call.
	Fallback bool
}

type generateBody struct {
	Model     string          `json:"model"`
	Prompt    string          `json:"prompt"`
	SessionID string          `json:"session_id,omitempty"`
	Options   generateOptions `json:"options"`
}

type generateOptions struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type generateReply struct {
	Result   string `json:"result"`
	Fallback bool   `json:"fallback"`
	Error    string `json:"error"`
}

// Generate submits a prompt and returns the finalized text. The server
// decides the delivery mode: a JSON reply resolves immediately, an event
// stream is consumed incrementally with onUpdate called once per envelope
// with the authoritative accumulated text.
func (c *Client) Generate(ctx context.Context, params GenerateParams, onUpdate func(accumulated string)) (*GenerateResult, error) {
	payload, err := json.Marshal(generateBody{
		Model:     params.Model,
		Prompt:    params.Prompt,
		SessionID: params.SessionID,
		Options: generateOptions{
			MaxTokens:   params.MaxTokens,
			Temperature: params.Temperature,
			TopP:        params.TopP,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	//nolint:bodyclose // Streaming bodies are closed by ReadStream; JSON bodies below
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate request failed: %w", err)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		text, streamErr := ReadStream(resp.Body, c.logger, onUpdate)
		if streamErr != nil {
			return nil, streamErr
		}
		return &GenerateResult{Text: text}, nil
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var reply generateReply
	if unmarshalErr := json.Unmarshal(data, &reply); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", unmarshalErr)
	}

	if resp.StatusCode != http.StatusOK {
		if reply.Error != "" {
			return nil, fmt.Errorf("generation failed: %s", reply.Error)
		}
		return nil, fmt.Errorf("generation failed with status %d", resp.StatusCode)
	}

	if onUpdate != nil {
		onUpdate(reply.Result)
	}

	return &GenerateResult{Text: reply.Result, Fallback: reply.Fallback}, nil
}
