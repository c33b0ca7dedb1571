// Package llm defines the generation provider contract: blocking and
// streaming completion, embedding, and structured summarization.
package llm

import (
	"time"

	"dev.helix.chat/internal/models"
)

// ChatMessage is one turn handed to a provider.
type ChatMessage struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

// CompletionOptions tune a single completion call.
type CompletionOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// CompletionRequest is the input to Complete and CompleteStream.
type CompletionRequest struct {
	Messages []ChatMessage     `json:"messages"`
	Options  CompletionOptions `json:"options"`
}

// CompletionResponse is the result of a blocking completion.
type CompletionResponse struct {
	Content      string    `json:"content"`
	Model        string    `json:"model"`
	TokensUsed   int       `json:"tokens_used"`
	FinishReason string    `json:"finish_reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// StreamEvent is one element of a streaming completion. Non-terminal
// events carry a Delta. The terminal event has Done set and carries
// either the accumulated Content or the stream error.
type StreamEvent struct {
	Delta   string `json:"delta,omitempty"`
	Done    bool   `json:"done"`
	Content string `json:"content,omitempty"`
	Model   string `json:"model,omitempty"`
	Err     error  `json:"-"`
}

// StructuredSummary is the validated shape of a summarization result:
// four required fields, three of them string arrays.
type StructuredSummary struct {
	Summary   string   `json:"summary"`
	Actions   []string `json:"actions"`
	Artifacts []string `json:"artifacts"`
	Keywords  []string `json:"keywords"`
}

// SummaryOutcome carries the raw model output together with the result
// of schema validation. Structured is nil exactly when ParseErr is
// non-nil; callers choose the degrade branch on that variant instead of
// a blanket catch-all.
type SummaryOutcome struct {
	Raw        string
	Structured *StructuredSummary
	ParseErr   error
}
