package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shaharz/lumen/internal/domain"
)

// MemoryStore is an in-process history store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.ChatMessage
	keepLast int
}

// NewMemoryStore creates an in-memory history store retaining at most
// keepLast messages per session.
func NewMemoryStore(keepLast int) *MemoryStore {
	if keepLast <= 0 {
		keepLast = 100
	}
	return &MemoryStore{
		sessions: make(map[string][]domain.ChatMessage),
		keepLast: keepLast,
	}
}

// Append stores one (prompt, response) pair under a session.
func (s *MemoryStore) Append(_ context.Context, sessionID string, exchange domain.Exchange) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	messages := append(s.sessions[sessionID],
		domain.ChatMessage{Role: domain.RoleUser, Content: exchange.Prompt, Timestamp: now},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: exchange.Response, Timestamp: now},
	)

	if len(messages) > s.keepLast {
		messages = messages[len(messages)-s.keepLast:]
	}

	s.sessions[sessionID] = messages
	return nil
}

// Recent loads up to n most recent messages for a session, oldest first.
func (s *MemoryStore) Recent(_ context.Context, sessionID string, n int) ([]domain.ChatMessage, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.sessions[sessionID]
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}

	out := make([]domain.ChatMessage, len(messages))
	copy(out, messages)
	return out, nil
}
