package storage

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dev.helix.chat/internal/models"
)

// InMemoryMessageStore is a mutex-guarded MessageStore for tests and
// single-process deployments.
type InMemoryMessageStore struct {
	byConversation map[string][]*models.Message
	byID           map[string]*models.Message
	mu             sync.RWMutex
}

// NewInMemoryMessageStore creates an empty message store.
func NewInMemoryMessageStore() *InMemoryMessageStore {
	return &InMemoryMessageStore{
		byConversation: make(map[string][]*models.Message),
		byID:           make(map[string]*models.Message),
	}
}

// Append persists a message at the end of its conversation's log.
func (s *InMemoryMessageStore) Append(ctx context.Context, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *msg
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	// Keep CreatedAt strictly increasing within the conversation.
	log := s.byConversation[stored.ConversationID]
	if n := len(log); n > 0 && !stored.CreatedAt.After(log[n-1].CreatedAt) {
		stored.CreatedAt = log[n-1].CreatedAt.Add(time.Microsecond)
	}

	s.byConversation[stored.ConversationID] = append(log, &stored)
	s.byID[stored.ID] = &stored

	out := stored
	return &out, nil
}

// FindRecent returns the tail of the conversation log in chronological
// order.
func (s *InMemoryMessageStore) FindRecent(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.byConversation[conversationID]
	start := 0
	if limit > 0 && len(log) > limit {
		start = len(log) - limit
	}

	out := make([]*models.Message, 0, len(log)-start)
	for _, m := range log[start:] {
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

// FindSimilar ranks messages with embeddings by cosine similarity.
func (s *InMemoryMessageStore) FindSimilar(ctx context.Context, conversationID string, embedding []float32, topK int, threshold float64) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		msg   *models.Message
		score float64
	}

	var candidates []scored
	for _, m := range s.byConversation[conversationID] {
		if len(m.Embedding) == 0 {
			continue
		}
		score := CosineSimilarity(embedding, m.Embedding)
		if score >= threshold {
			copied := *m
			candidates = append(candidates, scored{msg: &copied, score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]*models.Message, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.msg)
	}
	return out, nil
}

// FindAnnotated returns marker messages, newest first.
func (s *InMemoryMessageStore) FindAnnotated(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var markers []*models.Message
	log := s.byConversation[conversationID]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].IsMarker() {
			copied := *log[i]
			markers = append(markers, &copied)
			if limit > 0 && len(markers) >= limit {
				break
			}
		}
	}
	return markers, nil
}

// UpdateEmbedding attaches an embedding to a stored message.
func (s *InMemoryMessageStore) UpdateEmbedding(ctx context.Context, messageID string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.byID[messageID]
	if !ok {
		return &models.NotFoundError{Kind: "message", ID: messageID}
	}
	msg.Embedding = embedding
	return nil
}

// InMemoryConversationStore is a mutex-guarded ConversationStore.
type InMemoryConversationStore struct {
	conversations map[string]*models.Conversation
	subChats      map[string]*models.SubChat
	users         map[string]*models.User
	mu            sync.RWMutex
}

// NewInMemoryConversationStore creates an empty conversation store.
func NewInMemoryConversationStore() *InMemoryConversationStore {
	return &InMemoryConversationStore{
		conversations: make(map[string]*models.Conversation),
		subChats:      make(map[string]*models.SubChat),
		users:         make(map[string]*models.User),
	}
}

// PutConversation inserts or replaces a conversation.
func (s *InMemoryConversationStore) PutConversation(conv *models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *conv
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.conversations[copied.ID] = &copied
}

// PutSubChat inserts or replaces a sub-chat.
func (s *InMemoryConversationStore) PutSubChat(sc *models.SubChat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sc
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	if copied.Status == "" {
		copied.Status = models.SubChatStatusOpen
	}
	s.subChats[copied.ID] = &copied
}

// PutUser inserts or replaces a user.
func (s *InMemoryConversationStore) PutUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *u
	s.users[copied.ID] = &copied
}

// GetConversation looks up a conversation by id.
func (s *InMemoryConversationStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "conversation", ID: id}
	}
	copied := *conv
	return &copied, nil
}

// ListRecentByUser returns the user's conversations, most recently
// updated first, excluding excludeID.
func (s *InMemoryConversationStore) ListRecentByUser(ctx context.Context, userID string, limit int, excludeID string) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Conversation
	for _, conv := range s.conversations {
		if conv.UserID != userID || conv.ID == excludeID {
			continue
		}
		copied := *conv
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetSubChat looks up a sub-chat by id.
func (s *InMemoryConversationStore) GetSubChat(ctx context.Context, id string) (*models.SubChat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.subChats[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "sub-chat", ID: id}
	}
	copied := *sc
	return &copied, nil
}

// ResolveSubChat marks a sub-chat resolved and stores its summary.
func (s *InMemoryConversationStore) ResolveSubChat(ctx context.Context, id string, summary string) (*models.SubChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.subChats[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "sub-chat", ID: id}
	}
	now := time.Now()
	sc.Status = models.SubChatStatusResolved
	sc.Summary = summary
	sc.MergedAt = &now

	copied := *sc
	return &copied, nil
}

// GetUser looks up a user by id.
func (s *InMemoryConversationStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "user", ID: id}
	}
	copied := *u
	return &copied, nil
}

// CosineSimilarity computes the cosine similarity of two vectors.
// Mismatched or zero-length vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
