package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dev.helix.chat/internal/memory"
	"dev.helix.chat/internal/observability/metrics"
)

// QueryEmbedder computes query vectors for vector-capable backends.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MemoryHandler serves long-term memory queries. Searches never fail:
// an unreachable backend or a failed query embedding degrades to the
// lexical path and, at worst, an empty result set.
type MemoryHandler struct {
	index     *memory.Index
	embedder  QueryEmbedder
	collector *metrics.Collector
	logger    *logrus.Logger
}

// NewMemoryHandler creates a memory handler. embedder and collector
// may be nil; without an embedder every search runs lexically.
func NewMemoryHandler(index *memory.Index, embedder QueryEmbedder, collector *metrics.Collector, logger *logrus.Logger) *MemoryHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &MemoryHandler{index: index, embedder: embedder, collector: collector, logger: logger}
}

// SearchResponse wraps ranked memory results.
type SearchResponse struct {
	Results []*memory.SearchResult `json:"results"`
	Count   int                    `json:"count"`
}

// Search runs a memory search for a user.
// GET /v1/memory/search?user_id=...&q=...&top_k=5
func (h *MemoryHandler) Search(c *gin.Context) {
	userID := c.Query("user_id")
	query := c.Query("q")
	if userID == "" || query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "user_id and q are required",
		})
		return
	}

	topK, _ := strconv.Atoi(c.DefaultQuery("top_k", "5"))

	opts := memory.SearchOptions{
		TopK:                  topK,
		ExcludeConversationID: c.Query("exclude_conversation_id"),
	}
	if h.embedder != nil {
		embedding, err := h.embedder.Embed(c.Request.Context(), query)
		if err != nil {
			h.logger.WithError(err).Debug("Query embedding failed, searching lexically")
		} else {
			opts.Embedding = embedding
		}
	}

	results := h.index.Search(c.Request.Context(), query, userID, opts)
	if h.collector != nil {
		mode := string(memory.SearchModeLexical)
		if len(results) > 0 {
			mode = string(results[0].Mode)
		}
		h.collector.MemorySearches.WithLabelValues(mode).Inc()
	}

	c.JSON(http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

// Stats reports the user's memory footprint.
// GET /v1/memory/stats?user_id=...
func (h *MemoryHandler) Stats(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "user_id is required",
		})
		return
	}
	c.JSON(http.StatusOK, h.index.Stats(c.Request.Context(), userID))
}

// Delete removes one memory entry.
// DELETE /v1/memory/:id
func (h *MemoryHandler) Delete(c *gin.Context) {
	if err := h.index.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}
