package domain

import "context"

// DeliveryMode is how a matched provider returns its answer.
type DeliveryMode string

const (
	// ModeOneShot returns one complete answer as a JSON payload.
	ModeOneShot DeliveryMode = "one-shot"

	// ModeStreaming returns an ordered sequence of partial-text increments.
	ModeStreaming DeliveryMode = "streaming"
)

// Provider is any upstream integration that can produce a complete answer.
type Provider interface {
	// Generate sends a request and returns the full normalized response.
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error)

	// Name returns the provider identifier.
	Name() string
}

// StreamProvider is an upstream integration that emits partial-text chunks.
type StreamProvider interface {
	Provider

	// Stream sends a request and returns an ordered sequence of chunks.
	// The implementation closes the channel after the final chunk.
	Stream(ctx context.Context, req *GenerationRequest) (<-chan StreamChunk, error)
}

// Dispatch is the router's decision for one request: the delivery mode and a
// bound call for exactly one of the two modes. Complete is non-nil iff Mode
// is ModeOneShot; Stream is non-nil iff Mode is ModeStreaming.
type Dispatch struct {
	Mode     DeliveryMode
	Provider string

	Complete func(ctx context.Context) (*GenerationResult, error)
	Stream   func(ctx context.Context) (<-chan StreamChunk, error)
}

// Dispatcher routes a normalized request to one provider integration.
type Dispatcher interface {
	// Dispatch selects a provider and delivery mode for the request's model.
	// It makes no outbound call itself.
	Dispatch(ctx context.Context, req *GenerationRequest) (*Dispatch, error)
}

// ContextBuilder layers recent conversation turns on top of a raw prompt.
type ContextBuilder interface {
	// Build returns the augmented prompt. It never fails: when history is
	// unavailable the raw prompt is returned unchanged.
	Build(ctx context.Context, sessionID, prompt string) string
}

// HistoryStore is the conversation-history collaborator.
type HistoryStore interface {
	// Append stores one (prompt, response) pair under a session.
	Append(ctx context.Context, sessionID string, exchange Exchange) error

	// Recent loads up to n most recent messages for a session, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]ChatMessage, error)
}

// Notifier broadcasts a payload-free "something changed" signal for a session
// after a save completes, so sibling consumers can refresh.
type Notifier interface {
	Broadcast(sessionID string)
}
