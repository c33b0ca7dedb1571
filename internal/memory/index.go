package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"dev.helix.chat/internal/models"
)

// Index is the memory index facade. It owns the search policy: vector
// ranking when the store is capable and an embedding was supplied,
// fuzzy lexical ranking otherwise. Search and Stats degrade to empty
// results when the store is unreachable; Upsert and Delete report the
// failure to the caller, who decides whether it matters.
type Index struct {
	store  Store
	logger *logrus.Logger
}

// NewIndex creates a memory index over a store. A nil store yields an
// index where every operation degrades.
func NewIndex(store Store, logger *logrus.Logger) *Index {
	if logger == nil {
		logger = logrus.New()
	}
	return &Index{store: store, logger: logger}
}

// Upsert stores an entry, overwriting any previous entry with the same
// sub-chat id.
func (ix *Index) Upsert(ctx context.Context, entry *models.MemoryEntry) error {
	if ix.store == nil {
		return fmt.Errorf("memory store unavailable")
	}
	if entry.ID == "" {
		return models.NewValidationError("id", "memory entry id is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := ix.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("memory upsert failed: %w", err)
	}

	ix.logger.WithFields(logrus.Fields{
		"entry_id": entry.ID,
		"user_id":  entry.UserID,
	}).Debug("Memory entry stored")
	return nil
}

// Delete removes an entry by sub-chat id.
func (ix *Index) Delete(ctx context.Context, id string) error {
	if ix.store == nil {
		return fmt.Errorf("memory store unavailable")
	}
	if err := ix.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("memory delete failed: %w", err)
	}
	return nil
}

// Search returns ranked results for a query. It never returns an
// error: store failures are logged and yield an empty slice, so a
// degraded index costs the caller recall, not availability.
func (ix *Index) Search(ctx context.Context, query, userID string, opts SearchOptions) []*SearchResult {
	if ix.store == nil {
		return nil
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	if ix.store.VectorCapable() && len(opts.Embedding) > 0 {
		results, err := ix.store.SearchVector(ctx, userID, opts.Embedding, opts.TopK, opts.Threshold, opts.ExcludeConversationID)
		if err != nil {
			ix.logger.WithError(err).Warn("Vector memory search failed, returning empty results")
			return nil
		}
		return results
	}

	return ix.searchLexical(ctx, query, userID, opts)
}

// Stats reports aggregate numbers for a user. Unreachable stores yield
// zeroed stats.
func (ix *Index) Stats(ctx context.Context, userID string) *Stats {
	stats := &Stats{}
	if ix.store == nil {
		return stats
	}
	stats.VectorMode = ix.store.VectorCapable()

	entries, err := ix.store.ListByUser(ctx, userID)
	if err != nil {
		ix.logger.WithError(err).Warn("Memory stats unavailable")
		return stats
	}

	stats.TotalEntries = len(entries)
	for _, e := range entries {
		created := e.CreatedAt
		if stats.OldestEntry == nil || created.Before(*stats.OldestEntry) {
			t := created
			stats.OldestEntry = &t
		}
		if stats.NewestEntry == nil || created.After(*stats.NewestEntry) {
			t := created
			stats.NewestEntry = &t
		}
	}
	return stats
}

func (ix *Index) searchLexical(ctx context.Context, query, userID string, opts SearchOptions) []*SearchResult {
	entries, err := ix.store.ListByUser(ctx, userID)
	if err != nil {
		ix.logger.WithError(err).Warn("Lexical memory search failed, returning empty results")
		return nil
	}

	var results []*SearchResult
	for _, entry := range entries {
		if opts.ExcludeConversationID != "" && entry.ConversationID == opts.ExcludeConversationID {
			continue
		}
		score := LexicalScore(query, entry)
		if score <= 0 {
			continue
		}
		results = append(results, &SearchResult{Entry: entry, Score: score, Mode: SearchModeLexical})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results
}
