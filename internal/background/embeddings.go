package background

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"dev.helix.chat/internal/llm"
	"dev.helix.chat/internal/models"
	"dev.helix.chat/internal/storage"
)

// EmbeddingScheduler batches freshly appended messages and computes
// their embeddings off the request path. Messages become searchable by
// the semantic tier once the batch lands; until then they simply rank
// by recency.
type EmbeddingScheduler struct {
	queue     *Queue
	provider  llm.Provider
	messages  storage.MessageStore
	batchSize int
	logger    *logrus.Logger

	mu      sync.Mutex
	pending []embedJob
}

type embedJob struct {
	messageID string
	text      string
}

// NewEmbeddingScheduler creates a scheduler flushing every batchSize
// messages.
func NewEmbeddingScheduler(queue *Queue, provider llm.Provider, messages storage.MessageStore, batchSize int, logger *logrus.Logger) *EmbeddingScheduler {
	if logger == nil {
		logger = logrus.New()
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &EmbeddingScheduler{
		queue:     queue,
		provider:  provider,
		messages:  messages,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Schedule registers a message for embedding. A full batch is handed
// to the queue immediately. Scheduling failures are logged, never
// surfaced: embedding is a side channel.
func (s *EmbeddingScheduler) Schedule(msg *models.Message) {
	if msg == nil || msg.Content == "" {
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, embedJob{messageID: msg.ID, text: msg.Content})
	var batch []embedJob
	if len(s.pending) >= s.batchSize {
		batch = s.pending
		s.pending = nil
	}
	s.mu.Unlock()

	if batch != nil {
		s.submit(batch)
	}
}

// Flush submits any partial batch, for shutdown or idle timers.
func (s *EmbeddingScheduler) Flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) > 0 {
		s.submit(batch)
	}
}

func (s *EmbeddingScheduler) submit(batch []embedJob) {
	err := s.queue.Enqueue(Task{
		Name: "embed-messages",
		Run: func(ctx context.Context) error {
			return s.embedBatch(ctx, batch)
		},
	})
	if err != nil {
		s.logger.WithError(err).WithField("batch_size", len(batch)).Warn("Embedding batch dropped")
	}
}

func (s *EmbeddingScheduler) embedBatch(ctx context.Context, batch []embedJob) error {
	texts := make([]string, len(batch))
	for i, job := range batch {
		texts[i] = job.text
	}

	embeddings, err := s.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed batch: %w", err)
	}
	if len(embeddings) != len(batch) {
		return fmt.Errorf("embedding count mismatch: got %d for %d texts", len(embeddings), len(batch))
	}

	for i, job := range batch {
		if err := s.messages.UpdateEmbedding(ctx, job.messageID, embeddings[i]); err != nil {
			s.logger.WithError(err).WithField("message_id", job.messageID).Debug("Embedding attach failed")
		}
	}
	return nil
}
