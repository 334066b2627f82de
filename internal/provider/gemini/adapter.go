// Package gemini provides the Gemini provider integration. It backs two
// routing paths: the free long-context streaming model, and the grounded
// variant that augments generation with live web search and degrades to a
// plain call when the grounded one fails.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaharz/lumen/internal/domain"
	"github.com/shaharz/lumen/internal/observability"
)

const (
	providerName = "gemini"

	// FreeStreamingModel is the designated free long-context streaming
	// identifier; the router sends it down the streaming path regardless of
	// any other rule it would match.
	FreeStreamingModel = "gemini-2.0-flash"

	// GroundedModel enables web-search grounding on the same model family.
	GroundedModel = "gemini-2.0-flash-grounded"

	groundedSuffix = "-grounded"

	initialScanBuffer = 64 * 1024
	maxScanBuffer     = 1024 * 1024
)

// Provider implements the domain.StreamProvider interface for Gemini.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProvider creates a new Gemini provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Gemini API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 120 * time.Second
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

// Generate sends a plain (ungrounded) one-shot request.
func (p *Provider) Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	text, err := p.generate(ctx, apiModel(req.Model), req, false)
	if err != nil {
		return nil, err
	}

	return &domain.GenerationResult{
		Text:     text,
		Model:    req.Model,
		Provider: p.name,
	}, nil
}

// GenerateGrounded sends a web-search-grounded request. If the grounded call
// fails, exactly one plain call against the same model family is attempted
// before giving up; a result obtained that way carries Fallback=true.
func (p *Provider) GenerateGrounded(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	model := apiModel(req.Model)

	text, err := p.generate(ctx, model, req, true)
	if err == nil {
		return &domain.GenerationResult{
			Text:     text,
			Model:    req.Model,
			Provider: p.name,
		}, nil
	}

	logger.Warn("grounded generation failed, retrying without grounding",
		observability.Error(err))

	text, fallbackErr := p.generate(ctx, model, req, false)
	if fallbackErr != nil {
		return nil, fmt.Errorf("grounded generation failed: %w", fallbackErr)
	}

	return &domain.GenerationResult{
		Text:     text,
		Model:    req.Model,
		Provider: p.name,
		Fallback: true,
	}, nil
}

// Stream sends a streaming request and returns a channel of partial-text
// chunks. The channel is closed after the final chunk.
func (p *Provider) Stream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	body, err := json.Marshal(buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, apiModel(req.Model))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	//nolint:bodyclose // Response body is closed in the relay goroutine
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Gemini stream request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("Gemini API returned status %d: %s", resp.StatusCode, string(payload))
	}

	chunks := make(chan domain.StreamChunk)
	go p.relayStream(ctx, resp.Body, chunks)

	return chunks, nil
}

// relayStream parses the upstream SSE body into domain chunks.
func (p *Provider) relayStream(ctx context.Context, body io.ReadCloser, chunks chan<- domain.StreamChunk) {
	defer close(chunks)
	defer body.Close()

	logger := observability.FromContext(ctx)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, initialScanBuffer), maxScanBuffer)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var gr genResponse
		if unmarshalErr := json.Unmarshal([]byte(payload), &gr); unmarshalErr != nil {
			logger.Warn("skipping unreadable stream event",
				observability.Error(unmarshalErr))
			continue
		}

		if delta := gr.text(); delta != "" {
			select {
			case chunks <- domain.StreamChunk{Delta: delta}:
			case <-ctx.Done():
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case chunks <- domain.StreamChunk{Err: fmt.Errorf("Gemini stream error: %w", err)}:
		case <-ctx.Done():
		}
		return
	}

	select {
	case chunks <- domain.StreamChunk{Done: true}:
	case <-ctx.Done():
	}
}

// generate performs one generateContent call and extracts the text payload.
func (p *Provider) generate(ctx context.Context, model string, req *domain.GenerationRequest, grounded bool) (string, error) {
	body, err := json.Marshal(buildRequest(req, grounded))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("Gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Gemini API returned status %d: %s", resp.StatusCode, string(payload))
	}

	var gr genResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&gr); decodeErr != nil {
		return "", fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	return gr.text(), nil
}

// apiModel strips the grounded marker; grounding is a request option on the
// same upstream model, not a distinct one.
func apiModel(model string) string {
	return strings.TrimSuffix(model, groundedSuffix)
}

// Gemini API request/response structures.

type genRequest struct {
	Contents         []content  `json:"contents"`
	GenerationConfig genConfig  `json:"generationConfig"`
	Tools            []toolSpec `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type genConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
}

type toolSpec struct {
	GoogleSearch struct{} `json:"google_search"`
}

type genResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r *genResponse) text() string {
	var sb strings.Builder
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
		break
	}
	return sb.String()
}

func buildRequest(req *domain.GenerationRequest, grounded bool) genRequest {
	gr := genRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: req.Prompt}}},
		},
		GenerationConfig: genConfig{
			MaxOutputTokens: req.Options.MaxTokens,
			Temperature:     req.Options.Temperature,
			TopP:            req.Options.TopP,
		},
	}
	if grounded {
		gr.Tools = []toolSpec{{}}
	}
	return gr
}
