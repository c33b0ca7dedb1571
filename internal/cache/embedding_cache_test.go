package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.chat/internal/llm"
	"dev.helix.chat/internal/observability/metrics"
)

type countingProvider struct {
	llm.Provider
	embedCalls      int
	embedBatchCalls int
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.embedCalls++
	return []float32{float32(len(text)), 1}, nil
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.embedBatchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func newCacheFixture(t *testing.T) (*EmbeddingCache, *countingProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	provider := &countingProvider{}
	return NewEmbeddingCache(provider, client, time.Minute, logger), provider, mr
}

func TestEmbedCachesRepeatedCalls(t *testing.T) {
	cache, provider, _ := newCacheFixture(t)
	ctx := context.Background()

	first, err := cache.Embed(ctx, "hello world")
	require.NoError(t, err)
	second, err := cache.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.embedCalls, "second call must be served from cache")
}

func TestEmbedBatchFetchesOnlyMisses(t *testing.T) {
	cache, provider, _ := newCacheFixture(t)
	ctx := context.Background()

	_, err := cache.Embed(ctx, "cached")
	require.NoError(t, err)

	vectors, err := cache.EmbedBatch(ctx, []string{"cached", "fresh"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.NotNil(t, vectors[0])
	assert.NotNil(t, vectors[1])
	assert.Equal(t, 1, provider.embedBatchCalls)
}

func TestEmbedCountsHitsAndMisses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	collector := metrics.NewCollector()
	cache := NewEmbeddingCache(&countingProvider{}, client, time.Minute, logger, WithCollector(collector))
	ctx := context.Background()

	_, err := cache.Embed(ctx, "hello world")
	require.NoError(t, err)
	_, err = cache.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.CacheMisses.WithLabelValues("embedding")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.CacheHits.WithLabelValues("embedding")))
}

func TestEmbedDegradesWhenRedisDown(t *testing.T) {
	cache, provider, mr := newCacheFixture(t)
	ctx := context.Background()

	mr.Close()

	vector, err := cache.Embed(ctx, "still works")
	require.NoError(t, err, "cache outage must not fail the request")
	assert.NotEmpty(t, vector)
	assert.Equal(t, 1, provider.embedCalls)
}
