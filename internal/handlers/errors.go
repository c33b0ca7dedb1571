// Package handlers exposes the HTTP surface: blocking chat turns,
// SSE and WebSocket streaming, sub-chat merges, memory search and
// operational endpoints.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dev.helix.chat/internal/models"
)

// writeError maps domain errors onto HTTP statuses with a stable
// error-code body.
func writeError(c *gin.Context, err error) {
	switch {
	case models.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, models.ErrSubChatResolved), errors.Is(err, models.ErrSubChatCancelled):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": err.Error(),
		})
	case errors.Is(err, models.ErrEmptyTranscript):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "empty_transcript",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}
