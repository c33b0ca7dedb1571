package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewOpenAIProvider("test-key", server.URL, "test-model", logger,
		WithRetryConfig(RetryConfig{MaxRetries: 0}))
}

func TestCompleteParsesResponse(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 1)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "cmpl-1",
			"model": "test-model",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "pong"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"total_tokens": 7},
		})
	})

	resp, err := provider.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "ping"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, 7, resp.TokensUsed)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestCompleteSurfacesAPIError(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	})

	_, err := provider.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "ping"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCompleteStreamRelaysDeltas(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, delta := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"s1\",\"model\":\"test-model\",\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})

	ch, err := provider.CompleteStream(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "greet"}},
	})
	require.NoError(t, err)

	var deltas []string
	var final *StreamEvent
	for event := range ch {
		if event.Done {
			final = event
			continue
		}
		deltas = append(deltas, event.Delta)
	}

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.NotNil(t, final)
	require.NoError(t, final.Err)
	assert.Equal(t, "Hello", final.Content)
}

func TestEmbedBatchOrdersByIndex(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		// Return vectors out of order to exercise index mapping.
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float32{0, 1}},
				{"index": 0, "embedding": []float32{1, 0}},
			},
		})
	})

	vectors, err := provider.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1}, vectors[1])
}

func TestSummarizeStructuredMalformedTakesDegradeVariant(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "test-model",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "not json at all"}, "finish_reason": "stop"},
			},
		})
	})

	outcome, err := provider.SummarizeStructured(context.Background(), "[t1] User: hi")
	require.NoError(t, err, "schema failure must not be a hard error")
	assert.Nil(t, outcome.Structured)
	assert.Equal(t, "not json at all", outcome.Raw)
	var schemaErr *SummarySchemaError
	require.ErrorAs(t, outcome.ParseErr, &schemaErr)
}

func TestSummarizeStructuredValid(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "test-model",
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"role":    "assistant",
					"content": `{"summary":"Discussed X","actions":[],"artifacts":[],"keywords":["X"]}`,
				}, "finish_reason": "stop"},
			},
		})
	})

	outcome, err := provider.SummarizeStructured(context.Background(), "[t1] User: what is X")
	require.NoError(t, err)
	require.NotNil(t, outcome.Structured)
	assert.Equal(t, "Discussed X", outcome.Structured.Summary)
	assert.NoError(t, outcome.ParseErr)
}
