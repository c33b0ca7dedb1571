// Package storage defines the persistence contracts the context
// service consumes. Raw persistence of conversations, messages and
// users is an external collaborator; the interfaces here are the
// boundary, and the in-memory implementations back tests and the
// default single-process wiring.
package storage

import (
	"context"

	"dev.helix.chat/internal/models"
)

// MessageStore is the append-only per-conversation message log.
type MessageStore interface {
	// Append persists a message and returns it with id and timestamp
	// assigned. Ordering within a conversation is a monotonic append
	// sequence.
	Append(ctx context.Context, msg *models.Message) (*models.Message, error)

	// FindRecent returns the last limit messages of a conversation in
	// chronological order. limit <= 0 returns the full log.
	FindRecent(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)

	// FindSimilar returns up to topK messages whose stored embeddings
	// score at or above threshold against the query embedding, best
	// match first. Messages without embeddings are skipped.
	FindSimilar(ctx context.Context, conversationID string, embedding []float32, topK int, threshold float64) ([]*models.Message, error)

	// FindAnnotated returns the most recent marker messages of a
	// conversation, newest first.
	FindAnnotated(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)

	// UpdateEmbedding attaches an asynchronously computed embedding to
	// an existing message.
	UpdateEmbedding(ctx context.Context, messageID string, embedding []float32) error
}

// ConversationStore resolves conversations, sub-chats and user
// settings.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListRecentByUser(ctx context.Context, userID string, limit int, excludeID string) ([]*models.Conversation, error)

	GetSubChat(ctx context.Context, id string) (*models.SubChat, error)
	// ResolveSubChat marks a sub-chat resolved and records its summary
	// and merge time.
	ResolveSubChat(ctx context.Context, id string, summary string) (*models.SubChat, error)

	GetUser(ctx context.Context, id string) (*models.User, error)
}
