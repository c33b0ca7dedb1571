package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dev.helix.chat/internal/merge"
	"dev.helix.chat/internal/observability/metrics"
)

// MergeHandler serves sub-chat merges.
type MergeHandler struct {
	pipeline  *merge.Pipeline
	collector *metrics.Collector
	logger    *logrus.Logger
}

// NewMergeHandler creates a merge handler. collector may be nil.
func NewMergeHandler(pipeline *merge.Pipeline, collector *metrics.Collector, logger *logrus.Logger) *MergeHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &MergeHandler{pipeline: pipeline, collector: collector, logger: logger}
}

// Merge folds a sub-chat back into its parent conversation.
// POST /v1/subchats/:id/merge
func (h *MergeHandler) Merge(c *gin.Context) {
	subChatID := c.Param("id")

	result, err := h.pipeline.Merge(c.Request.Context(), subChatID)
	if err != nil {
		h.observe("rejected")
		writeError(c, err)
		return
	}

	outcome := "merged"
	if result.Degraded {
		outcome = "merged_degraded"
	}
	h.observe(outcome)

	h.logger.WithFields(logrus.Fields{
		"sub_chat_id":   subChatID,
		"memory_stored": result.MemoryStored,
		"degraded":      result.Degraded,
	}).Info("Sub-chat merged")

	c.JSON(http.StatusOK, result)
}

func (h *MergeHandler) observe(outcome string) {
	if h.collector != nil {
		h.collector.Merges.WithLabelValues(outcome).Inc()
	}
}
