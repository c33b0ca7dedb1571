package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	client, err := NewClient(&Config{
		URL:        server.URL,
		Collection: "test_memories",
		VectorSize: 3,
		Distance:   "Cosine",
	}, logger)
	require.NoError(t, err)
	return client
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{Collection: "c", VectorSize: 3}).Validate())
	assert.Error(t, (&Config{URL: "http://x", VectorSize: 3}).Validate())
	assert.Error(t, (&Config{URL: "http://x", Collection: "c"}).Validate())
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var createdBody map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/test_memories":
			http.Error(w, `{"status":{"error":"not found"}}`, http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/test_memories":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createdBody))
			_, _ = w.Write([]byte(`{"result":true}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	require.NoError(t, client.EnsureCollection(context.Background()))
	vectors := createdBody["vectors"].(map[string]interface{})
	assert.Equal(t, float64(3), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestSearchParsesScoredPoints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/test_memories/points/search", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(5), body["limit"])
		assert.Equal(t, 0.7, body["score_threshold"])

		_, _ = w.Write([]byte(`{"result":[{"id":"sub-1","score":0.91,"payload":{"summary":"s"}}]}`))
	})

	points, err := client.Search(context.Background(), []float32{1, 0, 0}, SearchParams{Limit: 5, ScoreThreshold: 0.7})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "sub-1", points[0].ID)
	assert.InDelta(t, 0.91, points[0].Score, 1e-9)
}

func TestUpsertAndDeletePoint(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		_, _ = w.Write([]byte(`{"result":{}}`))
	})

	ctx := context.Background()
	require.NoError(t, client.UpsertPoint(ctx, Point{ID: "sub-1", Vector: []float32{1, 0, 0}}))
	require.NoError(t, client.DeletePoint(ctx, "sub-1"))

	assert.Equal(t, []string{
		"PUT /collections/test_memories/points",
		"POST /collections/test_memories/points/delete",
	}, paths)
}

func TestGetPointRetrievesById(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/collections/test_memories/points/sub-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":{"id":"sub-1","payload":{"summary":"s"}}}`))
	})

	point, err := client.GetPoint(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", point.ID)
	assert.Equal(t, "s", point.Payload["summary"])
}

func TestGetPointMissingReturnsErrNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
	})

	_, err := client.GetPoint(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScrollPointsPagesThroughListing(t *testing.T) {
	var bodies []map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/test_memories/points/scroll", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)

		if body["offset"] == nil {
			_, _ = w.Write([]byte(`{"result":{"points":[{"id":"sub-1","payload":{}}],"next_page_offset":"sub-2"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[{"id":"sub-2","payload":{}}],"next_page_offset":null}}`))
	})

	ctx := context.Background()
	points, next, err := client.ScrollPoints(ctx, nil, 1, nil)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "sub-1", points[0].ID)
	require.NotNil(t, next)

	points, next, err = client.ScrollPoints(ctx, nil, 1, next)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "sub-2", points[0].ID)
	assert.Nil(t, next)

	require.Len(t, bodies, 2)
	assert.Equal(t, "sub-2", bodies[1]["offset"])
}

func TestSearchSurfacesServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Search(context.Background(), []float32{1, 0, 0}, SearchParams{Limit: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
