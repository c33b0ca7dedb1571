package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dev.helix.chat/internal/models"
	"dev.helix.chat/internal/vectordb/qdrant"
)

// scrollPageSize bounds one listing page.
const scrollPageSize = 256

// QdrantStore is a vector-capable Store backed by a Qdrant collection.
// The entry payload travels with the point so search hits come back
// fully hydrated.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore wraps a Qdrant client as a memory store and ensures
// the collection exists.
func NewQdrantStore(ctx context.Context, client *qdrant.Client) (*QdrantStore, error) {
	if err := client.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare memory collection: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

// Upsert overwrites the point with the same id.
func (s *QdrantStore) Upsert(ctx context.Context, entry *models.MemoryEntry) error {
	return s.client.UpsertPoint(ctx, qdrant.Point{
		ID:      entry.ID,
		Vector:  entry.Embedding,
		Payload: entryPayload(entry),
	})
}

// Get fetches the point payload directly by id.
func (s *QdrantStore) Get(ctx context.Context, id string) (*models.MemoryEntry, error) {
	point, err := s.client.GetPoint(ctx, id)
	if errors.Is(err, qdrant.ErrNotFound) {
		return nil, &models.NotFoundError{Kind: "memory entry", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return entryFromPayload(point.ID, point.Payload), nil
}

// Delete removes the point by id.
func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	return s.client.DeletePoint(ctx, id)
}

// ListByUser scrolls the user's points. The search API cannot serve a
// listing since it requires a query vector; the count call sizes the
// result up front and bounds the scroll.
func (s *QdrantStore) ListByUser(ctx context.Context, userID string) ([]*models.MemoryEntry, error) {
	filter := userFilter(userID, "")
	total, err := s.client.CountPoints(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]*models.MemoryEntry, 0, total)
	var offset interface{}
	for {
		points, next, err := s.client.ScrollPoints(ctx, filter, scrollPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			out = append(out, entryFromPayload(p.ID, p.Payload))
		}
		if next == nil || len(points) == 0 || len(out) >= int(total) {
			return out, nil
		}
		offset = next
	}
}

// VectorCapable reports vector support.
func (s *QdrantStore) VectorCapable() bool { return true }

// SearchVector runs a filtered similarity search.
func (s *QdrantStore) SearchVector(ctx context.Context, userID string, embedding []float32, topK int, threshold float64, excludeConversationID string) ([]*SearchResult, error) {
	points, err := s.client.Search(ctx, embedding, qdrant.SearchParams{
		Limit:          topK,
		ScoreThreshold: threshold,
		Filter:         userFilter(userID, excludeConversationID),
	})
	if err != nil {
		return nil, err
	}

	results := make([]*SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, &SearchResult{
			Entry: entryFromPayload(p.ID, p.Payload),
			Score: p.Score,
			Mode:  SearchModeVector,
		})
	}
	return results, nil
}

func userFilter(userID, excludeConversationID string) map[string]interface{} {
	filter := map[string]interface{}{
		"must": []map[string]interface{}{
			{"key": "user_id", "match": map[string]interface{}{"value": userID}},
		},
	}
	if excludeConversationID != "" {
		filter["must_not"] = []map[string]interface{}{
			{"key": "conversation_id", "match": map[string]interface{}{"value": excludeConversationID}},
		}
	}
	return filter
}

func entryPayload(entry *models.MemoryEntry) map[string]interface{} {
	return map[string]interface{}{
		"conversation_id": entry.ConversationID,
		"user_id":         entry.UserID,
		"summary":         entry.Summary,
		"keywords":        entry.Keywords,
		"actions":         entry.Actions,
		"artifacts":       entry.Artifacts,
		"created_at":      entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		"merged_at":       entry.MergedAt.UTC().Format(time.RFC3339Nano),
	}
}

func entryFromPayload(id string, payload map[string]interface{}) *models.MemoryEntry {
	entry := &models.MemoryEntry{ID: id}
	if payload == nil {
		return entry
	}
	entry.ConversationID, _ = payload["conversation_id"].(string)
	entry.UserID, _ = payload["user_id"].(string)
	entry.Summary, _ = payload["summary"].(string)
	entry.Keywords = stringSlice(payload["keywords"])
	entry.Actions = stringSlice(payload["actions"])
	entry.Artifacts = stringSlice(payload["artifacts"])
	if raw, ok := payload["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			entry.CreatedAt = t
		}
	}
	if raw, ok := payload["merged_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			entry.MergedAt = t
		}
	}
	return entry
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
