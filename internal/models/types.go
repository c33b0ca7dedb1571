// Package models defines the core domain types shared across the
// conversation, memory, streaming and merge packages.
package models

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single entry in a conversation's append-only log.
// Messages are strictly ordered by CreatedAt within one conversation.
// Embedding is populated asynchronously after creation and may be nil
// at read time.
type Message struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	Role           Role               `json:"role"`
	Content        string             `json:"content"`
	Embedding      []float32          `json:"embedding,omitempty"`
	Metadata       *MessageMetadata   `json:"metadata,omitempty"`
	Annotation     *SummaryAnnotation `json:"annotation,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// IsMarker reports whether the message carries a sub-chat summary
// annotation. Marker messages are internal carriers and are excluded
// from the recency tier during context assembly.
func (m *Message) IsMarker() bool {
	return m.Annotation != nil
}

// MessageMetadata holds optional per-message generation details.
type MessageMetadata struct {
	Tokens           int    `json:"tokens,omitempty"`
	Model            string `json:"model,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
	SubChatID        string `json:"sub_chat_id,omitempty"`
}

// SummaryAnnotation is the typed payload attached to a marker message
// when a sub-chat is merged into its parent. It replaces re-parsing of
// the rendered summary prose: the structured fields travel alongside
// the message instead of being regex-extracted from its body.
type SummaryAnnotation struct {
	SubChatID string    `json:"sub_chat_id"`
	Summary   string    `json:"summary"`
	Actions   []string  `json:"actions,omitempty"`
	Artifacts []string  `json:"artifacts,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	MergedAt  time.Time `json:"merged_at"`
}

// MemoryEntry is a long-term memory record derived from one merged
// sub-chat. Exactly one entry exists per sub-chat id; the entry is
// immutable after creation except for explicit delete.
type MemoryEntry struct {
	ID             string    `json:"id"` // sub-chat id
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Summary        string    `json:"summary"`
	Keywords       []string  `json:"keywords,omitempty"`
	Actions        []string  `json:"actions,omitempty"`
	Artifacts      []string  `json:"artifacts,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	MergedAt       time.Time `json:"merged_at"`
}

// Conversation is a top-level chat thread owned by a user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubChatStatus tracks the lifecycle of a sub-chat.
type SubChatStatus string

const (
	SubChatStatusOpen      SubChatStatus = "open"
	SubChatStatusResolved  SubChatStatus = "resolved"
	SubChatStatusCancelled SubChatStatus = "cancelled"
)

// SubChat is a bounded exploration thread branched off a parent
// conversation. Its message log lives under its own id; merging folds
// a summary back into the parent.
type SubChat struct {
	ID                   string        `json:"id"`
	ParentConversationID string        `json:"parent_conversation_id"`
	UserID               string        `json:"user_id"`
	Title                string        `json:"title,omitempty"`
	Status               SubChatStatus `json:"status"`
	Summary              string        `json:"summary,omitempty"`
	StoreMemory          bool          `json:"store_memory"`
	CreatedAt            time.Time     `json:"created_at"`
	MergedAt             *time.Time    `json:"merged_at,omitempty"`
}

// User carries the per-user settings the pipeline consults. Account
// management itself is an external concern.
type User struct {
	ID            string `json:"id"`
	MemoryEnabled bool   `json:"memory_enabled"`
}
