package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dev.helix.chat/internal/streaming"
	"dev.helix.chat/internal/usage"
	"dev.helix.chat/internal/version"
)

// OpsHandler serves health, version and usage endpoints.
type OpsHandler struct {
	engine   *streaming.Engine
	usageLog *usage.Log
	started  time.Time
}

// NewOpsHandler creates an ops handler.
func NewOpsHandler(engine *streaming.Engine, usageLog *usage.Log) *OpsHandler {
	return &OpsHandler{engine: engine, usageLog: usageLog, started: time.Now()}
}

// Health reports liveness.
// GET /health
func (h *OpsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"version":         version.Version,
		"uptime_seconds":  int(time.Since(h.started).Seconds()),
		"active_sessions": h.engine.ActiveSessions(),
	})
}

// Usage returns the retained usage window.
// GET /v1/usage?limit=50
func (h *OpsHandler) Usage(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{
		"totals": h.usageLog.Summarize(),
		"recent": h.usageLog.Recent(limit),
	})
}
