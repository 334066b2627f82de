package domain

import "time"

// Default generation tunables injected when the caller omits them.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7
	DefaultTopP        = 0.4
)

// GenerationOptions carries the three tunables forwarded to every provider,
// irrespective of each upstream's native parameter names.
type GenerationOptions struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// WithDefaults returns a copy with unset fields replaced by the defaults.
func (o GenerationOptions) WithDefaults() GenerationOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	if o.TopP <= 0 {
		o.TopP = DefaultTopP
	}
	return o
}

// GenerationRequest is a normalized request to any provider. Model is opaque
// to everything except the router; Prompt may already carry conversational
// context layered on top of the raw user input.
type GenerationRequest struct {
	Model   string            `json:"model"`
	Prompt  string            `json:"prompt"`
	Options GenerationOptions `json:"options"`
}

// GenerationResult is the single normalized shape every one-shot provider
// response collapses to.
type GenerationResult struct {
	Text     string `json:"text"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	// Fallback reports that the grounded path degraded to a plain call.
	Fallback bool `json:"fallback,omitempty"`
}

// StreamChunk is a single provider-native increment before it is wrapped in
// a wire envelope. A chunk with Err set aborts the stream.
type StreamChunk struct {
	Delta string
	Done  bool
	Err   error
}

// StreamEnvelope is the fixed wire record sent per streaming increment.
// Accumulated is the running concatenation of all deltas so far, so a client
// can resume from the latest snapshot even if intermediate envelopes are
// dropped or coalesced.
type StreamEnvelope struct {
	Delta       string `json:"delta"`
	Accumulated string `json:"accumulated"`
	Done        bool   `json:"done"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Exchange is one (prompt, response) pair appended to a session's history.
type Exchange struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}
