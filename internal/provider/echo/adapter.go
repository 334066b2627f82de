// Package echo provides a testing provider that echoes back the prompt.
// It implements the domain provider interfaces without making external API
// calls, providing deterministic responses for testing and development.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shaharz/lumen/internal/domain"
	"github.com/shaharz/lumen/internal/observability"
)

const (
	providerName = "echo"

	// Model is the single model identifier this provider serves.
	Model = "echo-1"

	chunkDelay = 10 * time.Millisecond
)

// Provider implements the domain.StreamProvider interface for echo testing.
type Provider struct {
	name string
}

// NewProvider creates a new echo provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{name: providerName}
}

// Generate returns the prompt echoed back.
func (p *Provider) Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if req.Model != Model {
		return nil, fmt.Errorf("model %s is not supported by echo provider", req.Model)
	}

	observability.FromContext(ctx).Debug("echoing request")

	return &domain.GenerationResult{
		Text:     req.Prompt,
		Model:    req.Model,
		Provider: p.name,
	}, nil
}

// Stream returns the prompt echoed back word by word.
func (p *Provider) Stream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if req.Model != Model {
		return nil, fmt.Errorf("model %s is not supported by echo provider", req.Model)
	}

	observability.FromContext(ctx).Debug("streaming echo request")

	chunks := make(chan domain.StreamChunk)

	go func() {
		defer close(chunks)

		words := strings.Fields(req.Prompt)
		for i, word := range words {
			delta := word
			if i < len(words)-1 {
				delta += " "
			}

			select {
			case <-ctx.Done():
				return
			case chunks <- domain.StreamChunk{Delta: delta}:
				time.Sleep(chunkDelay)
			}
		}

		select {
		case chunks <- domain.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}
