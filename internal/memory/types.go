// Package memory implements the long-term memory index: a durable
// store of per-sub-chat summaries with vector search where the backing
// store supports it and fuzzy lexical scoring otherwise. Callers see
// the same result shape either way, and no operation panics or errors
// out of an unreachable store during search.
package memory

import (
	"context"
	"time"

	"dev.helix.chat/internal/models"
)

// SearchMode reports which ranking path served a search.
type SearchMode string

const (
	SearchModeVector  SearchMode = "vector"
	SearchModeLexical SearchMode = "lexical"
)

// Store is the persistence backend for memory entries. Exactly one
// entry exists per sub-chat id; Upsert overwrites by id.
type Store interface {
	Upsert(ctx context.Context, entry *models.MemoryEntry) error
	Get(ctx context.Context, id string) (*models.MemoryEntry, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]*models.MemoryEntry, error)

	// VectorCapable reports whether SearchVector is supported.
	VectorCapable() bool
	// SearchVector ranks entries by similarity to the embedding,
	// excluding results below threshold. Only called when
	// VectorCapable returns true.
	SearchVector(ctx context.Context, userID string, embedding []float32, topK int, threshold float64, excludeConversationID string) ([]*SearchResult, error)
}

// SearchOptions narrow a memory search.
type SearchOptions struct {
	TopK                  int
	Embedding             []float32
	Threshold             float64
	ExcludeConversationID string
}

// SearchResult is one ranked hit. The shape is identical for vector
// and lexical searches so callers stay agnostic to the serving mode.
type SearchResult struct {
	Entry *models.MemoryEntry `json:"entry"`
	Score float64             `json:"score"`
	Mode  SearchMode          `json:"mode"`
}

// Stats summarizes a user's stored memories.
type Stats struct {
	TotalEntries int        `json:"total_entries"`
	VectorMode   bool       `json:"vector_mode"`
	OldestEntry  *time.Time `json:"oldest_entry,omitempty"`
	NewestEntry  *time.Time `json:"newest_entry,omitempty"`
}
