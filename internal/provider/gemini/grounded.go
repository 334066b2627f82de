package gemini

import (
	"context"

	"github.com/shaharz/lumen/internal/domain"
)

// Grounded exposes the grounded generation path as a regular one-shot
// provider so it can sit in the router's direct-model directory.
type Grounded struct {
	provider *Provider
}

// NewGrounded wraps a Gemini provider's grounded path.
func NewGrounded(provider *Provider) *Grounded {
	return &Grounded{provider: provider}
}

// Name returns the provider identifier.
func (g *Grounded) Name() string {
	return g.provider.Name() + "-grounded"
}

// Generate runs a grounded generation with automatic single-shot fallback to
// the plain variant.
func (g *Grounded) Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	return g.provider.GenerateGrounded(ctx, req)
}
