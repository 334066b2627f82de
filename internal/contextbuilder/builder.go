// Package contextbuilder assembles a bounded conversational context window
// from a session's recent turns into a single augmented prompt string.
// Context is a best-effort enhancement: any failure to load history degrades
// to the raw prompt, never to an error.
package contextbuilder

import (
	"context"
	"strings"

	"github.com/shaharz/lumen/internal/domain"
	"github.com/shaharz/lumen/internal/observability"
)

// DefaultTurns is how many recent messages are layered onto the prompt.
const DefaultTurns = 5

const instructions = "Use the previous conversation above only if it is relevant to the current request. " +
	"If the request is ambiguous, favor the current request over past context. " +
	"If the topic has changed, ignore the previous conversation entirely and answer the current request on its own."

// Builder layers recent session history onto raw prompts.
type Builder struct {
	history domain.HistoryStore
	turns   int
}

// NewBuilder creates a context builder reading at most turns recent messages.
func NewBuilder(history domain.HistoryStore, turns int) *Builder {
	if turns <= 0 {
		turns = DefaultTurns
	}
	return &Builder{
		history: history,
		turns:   turns,
	}
}

// Build returns the augmented prompt for a session. With no prior turns the
// prompt is returned unchanged, with no wrapping artifacts.
func (b *Builder) Build(ctx context.Context, sessionID, prompt string) string {
	if b.history == nil || sessionID == "" {
		return prompt
	}

	messages, err := b.history.Recent(ctx, sessionID, b.turns)
	if err != nil {
		observability.FromContext(ctx).Warn("history unavailable, continuing without context",
			observability.Error(err))
		return prompt
	}

	if len(messages) == 0 {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, msg := range messages {
		sb.WriteString(roleLabel(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\nCurrent request: ")
	sb.WriteString(prompt)
	sb.WriteString("\n\nInstructions: ")
	sb.WriteString(instructions)

	return sb.String()
}

func roleLabel(role domain.Role) string {
	if role == domain.RoleAssistant {
		return "Assistant"
	}
	return "User"
}
