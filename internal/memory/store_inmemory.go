package memory

import (
	"context"
	"sort"
	"sync"

	"dev.helix.chat/internal/models"

	"dev.helix.chat/internal/storage"
)

// InMemoryStore is a vector-capable Store backed by process memory,
// used by tests and single-process deployments.
type InMemoryStore struct {
	entries map[string]*models.MemoryEntry
	mu      sync.RWMutex
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*models.MemoryEntry)}
}

// Upsert overwrites the entry with the same id.
func (s *InMemoryStore) Upsert(ctx context.Context, entry *models.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *entry
	s.entries[entry.ID] = &copied
	return nil
}

// Get looks up an entry by id.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*models.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "memory entry", ID: id}
	}
	copied := *entry
	return &copied, nil
}

// Delete removes an entry by id. Deleting a missing entry is a no-op.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// ListByUser returns all entries for a user, newest first.
func (s *InMemoryStore) ListByUser(ctx context.Context, userID string) ([]*models.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MemoryEntry
	for _, entry := range s.entries {
		if entry.UserID != userID {
			continue
		}
		copied := *entry
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// VectorCapable reports vector support.
func (s *InMemoryStore) VectorCapable() bool { return true }

// SearchVector ranks the user's entries by cosine similarity.
func (s *InMemoryStore) SearchVector(ctx context.Context, userID string, embedding []float32, topK int, threshold float64, excludeConversationID string) ([]*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*SearchResult
	for _, entry := range s.entries {
		if entry.UserID != userID || len(entry.Embedding) == 0 {
			continue
		}
		if excludeConversationID != "" && entry.ConversationID == excludeConversationID {
			continue
		}
		score := storage.CosineSimilarity(embedding, entry.Embedding)
		if score < threshold {
			continue
		}
		copied := *entry
		results = append(results, &SearchResult{Entry: &copied, Score: score, Mode: SearchModeVector})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
