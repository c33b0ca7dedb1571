// Package cache provides a Redis-backed embedding cache in front of a
// generation provider. Cache failures degrade to a direct provider
// call; they never fail the request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"dev.helix.chat/internal/llm"
	"dev.helix.chat/internal/observability/metrics"
)

const (
	embeddingKeyPrefix = "helixchat:embedding:"
	cacheType          = "embedding"
)

// EmbeddingCache wraps a provider and serves repeated embedding
// requests from Redis. Completion and summarization calls pass
// through untouched.
type EmbeddingCache struct {
	llm.Provider

	client    *redis.Client
	ttl       time.Duration
	collector *metrics.Collector
	logger    *logrus.Logger
}

// Option configures an EmbeddingCache.
type Option func(*EmbeddingCache)

// WithCollector instruments cache hits and misses.
func WithCollector(collector *metrics.Collector) Option {
	return func(c *EmbeddingCache) { c.collector = collector }
}

// NewEmbeddingCache creates an embedding cache around the provider.
// A zero ttl keeps entries until Redis evicts them.
func NewEmbeddingCache(provider llm.Provider, client *redis.Client, ttl time.Duration, logger *logrus.Logger, opts ...Option) *EmbeddingCache {
	if logger == nil {
		logger = logrus.New()
	}
	c := &EmbeddingCache{
		Provider: provider,
		client:   client,
		ttl:      ttl,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns a cached vector when available, otherwise calls the
// provider and stores the result.
func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embeddingKey(text)

	if vector, ok := c.lookup(ctx, key); ok {
		return vector, nil
	}

	vector, err := c.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, vector)
	return vector, nil
}

// EmbedBatch serves cached vectors where possible and fetches only the
// misses from the provider.
func (c *EmbeddingCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if vector, ok := c.lookup(ctx, embeddingKey(text)); ok {
			vectors[i] = vector
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fetched, err := c.Provider.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		vectors[i] = fetched[j]
		c.store(ctx, embeddingKey(texts[i]), fetched[j])
	}
	return vectors, nil
}

func (c *EmbeddingCache) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.countMiss()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Debug("Embedding cache lookup failed")
		c.countMiss()
		return nil, false
	}

	var vector []float32
	if err := json.Unmarshal([]byte(data), &vector); err != nil {
		c.logger.WithError(err).Warn("Corrupt embedding cache entry")
		c.countMiss()
		return nil, false
	}

	if c.collector != nil {
		c.collector.CacheHits.WithLabelValues(cacheType).Inc()
	}
	return vector, true
}

func (c *EmbeddingCache) countMiss() {
	if c.collector != nil {
		c.collector.CacheMisses.WithLabelValues(cacheType).Inc()
	}
}

func (c *EmbeddingCache) store(ctx context.Context, key string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode embedding for cache")
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("Embedding cache store failed")
	}
}

func embeddingKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return embeddingKeyPrefix + hex.EncodeToString(sum[:])
}
