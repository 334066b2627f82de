package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one turn of a conversation as the client renders it.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session owns one conversation's message list. The finalized list is
// immutable; a streaming or typing response lives in a separate ephemeral
// draft that is merged into the list exactly once, on completion. Rapid
// redraws while streaming can therefore never duplicate the trailing
// assistant message.
type Session struct {
	// ID identifies the session to the history collaborator.
	ID string

	mu       sync.Mutex
	messages []Message
	draft    *Message
}

// NewSession creates a session; an empty id gets a fresh UUID.
func NewSession(id string) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	return &Session{ID: id}
}

// AppendUser adds a finalized user message.
func (s *Session) AppendUser(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{
		Role:      "user",
		Content:   content,
		Timestamp: time.Now(),
	})
}

// BeginDraft starts the ephemeral in-progress assistant message. Any
// previous draft is discarded.
func (s *Session) BeginDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft = &Message{Role: "assistant", Timestamp: time.Now()}
}

// UpdateDraft replaces the draft's content with the latest revealed text.
func (s *Session) UpdateDraft(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil {
		s.draft = &Message{Role: "assistant", Timestamp: time.Now()}
	}
	s.draft.Content = content
}

// CommitDraft merges the draft into the finalized list and clears it.
func (s *Session) CommitDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil {
		return
	}

	s.messages = append(s.messages, *s.draft)
	s.draft = nil
}

// DiscardDraft drops the in-progress message, leaving the finalized list
// untouched. Used when generation fails.
func (s *Session) DiscardDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft = nil
}

// Messages returns a snapshot of the conversation: the finalized list plus
// the draft, if one is in progress, as the trailing assistant message.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages), len(s.messages)+1)
	copy(out, s.messages)
	if s.draft != nil {
		out = append(out, *s.draft)
	}
	return out
}
