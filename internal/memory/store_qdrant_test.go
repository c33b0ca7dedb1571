package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.chat/internal/models"
	"dev.helix.chat/internal/vectordb/qdrant"
)

// fakeQdrant serves the subset of the HTTP API the store uses. Like
// the real server it rejects a search body whose vector is null, so
// any listing mistakenly routed through search fails loudly here.
func fakeQdrant(t *testing.T) *QdrantStore {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/test_memories":
			_, _ = w.Write([]byte(`{"result":{}}`))

		case strings.HasSuffix(r.URL.Path, "/points/search"):
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["vector"] == nil {
				http.Error(w, `{"status":{"error":"expected a vector"}}`, http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"result":[]}`))

		case strings.HasSuffix(r.URL.Path, "/points/count"):
			_, _ = w.Write([]byte(`{"result":{"count":2}}`))

		case strings.HasSuffix(r.URL.Path, "/points/scroll"):
			_, _ = w.Write([]byte(`{"result":{"points":[` +
				`{"id":"sub-1","payload":{"user_id":"user-1","summary":"database migration plan","keywords":["database","migration"],"created_at":"2026-08-01T10:00:00Z"}},` +
				`{"id":"sub-2","payload":{"user_id":"user-1","summary":"holiday schedule","keywords":["holiday"],"created_at":"2026-08-02T10:00:00Z"}}` +
				`],"next_page_offset":null}}`))

		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/points/"):
			if strings.HasSuffix(r.URL.Path, "/sub-1") {
				_, _ = w.Write([]byte(`{"result":{"id":"sub-1","payload":{"user_id":"user-1","summary":"database migration plan"}}}`))
				return
			}
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)

		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	client, err := qdrant.NewClient(&qdrant.Config{
		URL:        server.URL,
		Collection: "test_memories",
		VectorSize: 3,
		Distance:   "Cosine",
	}, logger)
	require.NoError(t, err)

	store, err := NewQdrantStore(context.Background(), client)
	require.NoError(t, err)
	return store
}

func TestQdrantLexicalSearchListsViaScroll(t *testing.T) {
	store := fakeQdrant(t)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	ix := NewIndex(store, logger)

	results := ix.Search(context.Background(), "database migration", "user-1", SearchOptions{TopK: 5})
	require.NotEmpty(t, results, "no-embedding search must list entries, not degrade")
	assert.Equal(t, "sub-1", results[0].Entry.ID)
	assert.Equal(t, SearchModeLexical, results[0].Mode)
}

func TestQdrantStatsCountsEntries(t *testing.T) {
	store := fakeQdrant(t)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	ix := NewIndex(store, logger)

	stats := ix.Stats(context.Background(), "user-1")
	assert.Equal(t, 2, stats.TotalEntries)
	assert.True(t, stats.VectorMode)
	require.NotNil(t, stats.OldestEntry)
	require.NotNil(t, stats.NewestEntry)
	assert.True(t, stats.OldestEntry.Before(*stats.NewestEntry))
}

func TestQdrantGetMapsMissingPoint(t *testing.T) {
	store := fakeQdrant(t)
	ctx := context.Background()

	entry, err := store.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "database migration plan", entry.Summary)

	_, err = store.Get(ctx, "ghost")
	var notFound *models.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
