package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shaharz/lumen/internal/observability"
)

// GenerateService orchestrates one generation: validate, layer conversation
// context on top of the raw prompt, route, and (after delivery) persist.
type GenerateService struct {
	dispatcher Dispatcher
	contexts   ContextBuilder
	history    HistoryStore
	notifier   Notifier
}

// NewGenerateService creates a new generate service (DI constructor).
func NewGenerateService(
	dispatcher Dispatcher,
	contexts ContextBuilder,
	history HistoryStore,
	notifier Notifier,
) *GenerateService {
	return &GenerateService{
		dispatcher: dispatcher,
		contexts:   contexts,
		history:    history,
		notifier:   notifier,
	}
}

// Prepare validates the request, augments the prompt with session context and
// routes it. No outbound provider call is made; the caller invokes the
// returned dispatch according to its delivery mode.
func (s *GenerateService) Prepare(
	ctx context.Context,
	sessionID string,
	req *GenerationRequest,
) (*Dispatch, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	augmented := *req
	if s.contexts != nil {
		augmented.Prompt = s.contexts.Build(ctx, sessionID, req.Prompt)
	}

	dispatch, err := s.dispatcher.Dispatch(ctx, &augmented)
	if err != nil {
		return nil, fmt.Errorf("provider routing failed: %w", err)
	}

	return dispatch, nil
}

// SaveExchange appends one finalized (prompt, response) pair to the session's
// history and broadcasts the session-scoped change signal. The raw user
// prompt is persisted, not the context-augmented one.
func (s *GenerateService) SaveExchange(ctx context.Context, sessionID, prompt, response string) error {
	if s.history == nil || sessionID == "" {
		return nil
	}

	logger := observability.FromContext(ctx)

	err := s.history.Append(ctx, sessionID, Exchange{Prompt: prompt, Response: response})
	if err != nil {
		logger.Error("failed to persist exchange",
			observability.String("session_id", sessionID),
			observability.Error(err))
		return fmt.Errorf("failed to persist exchange: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Broadcast(sessionID)
	}

	logger.Info("exchange persisted", observability.String("session_id", sessionID))
	return nil
}
