// Package mistral provides the vision-capable Mistral provider integration.
// Model identifiers carrying the pixtral prefix route here; when the prompt
// contains an image URL the outbound payload is shaped as a structured
// multi-part content array instead of a plain string.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shaharz/lumen/internal/domain"
	"github.com/shaharz/lumen/internal/observability"
)

const (
	providerName = "mistral"

	// VisionPrefix marks model identifiers the router sends to this provider.
	VisionPrefix = "pixtral"
)

// imageURLPattern matches http(s) URLs ending in a common image extension.
var imageURLPattern = regexp.MustCompile(`(?i)https?://\S+\.(?:png|jpe?g|gif|webp|bmp)`)

// Config contains Mistral provider configuration.
type Config struct {
	APIKey  string `env:"MISTRAL_API_KEY"`
	BaseURL string `env:"MISTRAL_BASE_URL" envDefault:"https://api.mistral.ai/v1"`
	Timeout int    `env:"MISTRAL_TIMEOUT"  envDefault:"60"`
}

// Provider implements the domain.Provider interface for Mistral.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProvider creates a new Mistral provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Mistral API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.mistral.ai/v1"
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Provider{
		name:    providerName,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Generate sends a one-shot chat completion request.
func (p *Provider) Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)

	payload := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "user", Content: BuildContent(req.Prompt)},
		},
		MaxTokens:   req.Options.MaxTokens,
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		logger.Error("Mistral request failed", observability.Error(err))
		return nil, fmt.Errorf("Mistral request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Mistral API returned status %d: %s", resp.StatusCode, string(data))
	}

	var cr chatResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&cr); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	text := ""
	if len(cr.Choices) > 0 {
		text = cr.Choices[0].Message.Content
	}

	return &domain.GenerationResult{
		Text:     text,
		Model:    req.Model,
		Provider: p.name,
	}, nil
}

// BuildContent shapes the outbound message content. A prompt with no image
// URL stays a plain string; otherwise a multi-part array is built with one
// text part and one image part per detected URL.
func BuildContent(prompt string) any {
	urls := imageURLPattern.FindAllString(prompt, -1)
	if len(urls) == 0 {
		return prompt
	}

	parts := make([]contentPart, 0, len(urls)+1)
	parts = append(parts, contentPart{Type: "text", Text: prompt})
	for _, url := range urls {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageRef{URL: url}})
	}
	return parts
}

// Mistral API request/response structures (OpenAI-compatible surface).

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
