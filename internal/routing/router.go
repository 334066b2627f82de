// Package routing decides which upstream provider integration serves a
// generation request, and in which delivery mode. Matching is an ordered set
// of predicate rules; the first match wins. The order encodes product intent:
// the free streaming model outranks everything, the vision prefix outranks
// the namespace separator, and only identifiers nothing else claimed fall
// through to the direct-provider directory.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shaharz/lumen/internal/domain"
	"github.com/shaharz/lumen/internal/observability"
)

// ErrProviderNotConfigured means a rule matched but its provider integration
// was not constructed (typically a missing API key).
var ErrProviderNotConfigured = errors.New("provider is not configured")

// Options carries the model-identifier markers the rule table matches on.
type Options struct {
	// FreeStreamingModel is the exact identifier of the free long-context
	// streaming model; it always takes the streaming path.
	FreeStreamingModel string

	// VisionPrefix marks identifiers served by the vision provider.
	VisionPrefix string

	// BulkNamespace marks identifiers served by the bulk text provider.
	BulkNamespace string
}

// Router routes a normalized request to one provider integration. It holds
// no per-request state: every request is independently matched and bound.
type Router struct {
	opts       Options
	streaming  domain.StreamProvider
	vision     domain.Provider
	bulk       domain.Provider
	aggregator domain.Provider
	directory  *Directory
	overrides  *RuleSet
	rules      []rule
}

// rule is one predicate → binding pair of the ordered table.
type rule struct {
	name  string
	match func(model string) bool
	bind  func(req *domain.GenerationRequest) (*domain.Dispatch, error)
}

// NewRouter creates a router over the given provider integrations. Any
// provider slot may be nil; a rule matching a nil slot fails with
// ErrProviderNotConfigured rather than falling through to later rules.
func NewRouter(
	opts Options,
	streaming domain.StreamProvider,
	vision domain.Provider,
	bulk domain.Provider,
	aggregator domain.Provider,
	directory *Directory,
	overrides *RuleSet,
) *Router {
	if directory == nil {
		directory = NewDirectory()
	}

	r := &Router{
		opts:       opts,
		streaming:  streaming,
		vision:     vision,
		bulk:       bulk,
		aggregator: aggregator,
		directory:  directory,
		overrides:  overrides,
	}

	r.rules = []rule{
		{
			name:  "free-streaming",
			match: func(model string) bool { return model == opts.FreeStreamingModel },
			bind:  r.bindStreaming,
		},
		{
			name:  "vision-prefix",
			match: func(model string) bool { return opts.VisionPrefix != "" && strings.HasPrefix(model, opts.VisionPrefix) },
			bind:  func(req *domain.GenerationRequest) (*domain.Dispatch, error) { return r.bindOneShot("vision", r.vision, req) },
		},
		{
			name:  "bulk-namespace",
			match: func(model string) bool { return opts.BulkNamespace != "" && strings.HasPrefix(model, opts.BulkNamespace) },
			bind:  func(req *domain.GenerationRequest) (*domain.Dispatch, error) { return r.bindOneShot("bulk", r.bulk, req) },
		},
		{
			name:  "aggregator",
			match: func(model string) bool { return strings.Contains(model, "/") },
			bind: func(req *domain.GenerationRequest) (*domain.Dispatch, error) {
				return r.bindOneShot("aggregator", r.aggregator, req)
			},
		},
		{
			name: "direct",
			match: func(model string) bool {
				_, ok := r.directory.Lookup(model)
				return ok
			},
			bind: func(req *domain.GenerationRequest) (*domain.Dispatch, error) {
				provider, _ := r.directory.Lookup(req.Model)
				return r.bindOneShot("direct", provider, req)
			},
		},
	}

	return r
}

// Dispatch matches the request's model against the rule table and returns a
// bound dispatch. No outbound call is made here.
func (r *Router) Dispatch(ctx context.Context, req *domain.GenerationRequest) (*domain.Dispatch, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if req.Model == "" {
		return nil, domain.ErrUnknownModel
	}

	normalized := *req
	normalized.Options = req.Options.WithDefaults()

	logger := observability.FromContext(ctx)

	for _, rl := range r.rules {
		if !rl.match(normalized.Model) {
			continue
		}

		logger.Info("model routed",
			observability.String("rule", rl.name))

		return rl.bind(&normalized)
	}

	if r.overrides != nil {
		if providerName, ok := r.overrides.Match(normalized.Model, normalized.Prompt); ok {
			logger.Info("model routed by override rule",
				observability.String("override_provider", providerName))
			return r.bindOneShot("override", r.providerByName(providerName), &normalized)
		}
	}

	return nil, domain.ErrUnknownModel
}

// bindStreaming binds the streaming delivery path.
func (r *Router) bindStreaming(req *domain.GenerationRequest) (*domain.Dispatch, error) {
	if r.streaming == nil {
		return nil, fmt.Errorf("streaming %w", ErrProviderNotConfigured)
	}

	bound := *req
	return &domain.Dispatch{
		Mode:     domain.ModeStreaming,
		Provider: r.streaming.Name(),
		Stream: func(ctx context.Context) (<-chan domain.StreamChunk, error) {
			chunks, err := r.streaming.Stream(ctx, &bound)
			if err != nil {
				return nil, fmt.Errorf("generation failed: %w", err)
			}
			return chunks, nil
		},
	}, nil
}

// bindOneShot binds the one-shot delivery path with uniform result
// normalization: a successful call with empty text fails with ErrNoContent,
// regardless of which provider produced it.
func (r *Router) bindOneShot(slot string, provider domain.Provider, req *domain.GenerationRequest) (*domain.Dispatch, error) {
	if provider == nil {
		return nil, fmt.Errorf("%s %w", slot, ErrProviderNotConfigured)
	}

	bound := *req
	return &domain.Dispatch{
		Mode:     domain.ModeOneShot,
		Provider: provider.Name(),
		Complete: func(ctx context.Context) (*domain.GenerationResult, error) {
			result, err := provider.Generate(ctx, &bound)
			if err != nil {
				return nil, fmt.Errorf("generation failed: %w", err)
			}
			if result == nil || strings.TrimSpace(result.Text) == "" {
				return nil, domain.ErrNoContent
			}
			return result, nil
		},
	}, nil
}

// providerByName resolves an override rule's target among every provider the
// router knows about.
func (r *Router) providerByName(name string) domain.Provider {
	candidates := []domain.Provider{r.vision, r.bulk, r.aggregator}
	if r.streaming != nil {
		candidates = append(candidates, r.streaming)
	}
	candidates = append(candidates, r.directory.Providers()...)

	for _, candidate := range candidates {
		if candidate != nil && candidate.Name() == name {
			return candidate
		}
	}
	return nil
}
