// Package router wires the HTTP surface onto a gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dev.helix.chat/internal/handlers"
	"dev.helix.chat/internal/middleware"
	"dev.helix.chat/internal/observability/metrics"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Chat   *handlers.ChatHandler
	Merge  *handlers.MergeHandler
	Memory *handlers.MemoryHandler
	Ops    *handlers.OpsHandler
}

// Setup creates and configures the HTTP router.
func Setup(h Handlers, collector *metrics.Collector, logger *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	if collector != nil {
		r.Use(middleware.Metrics(collector))
	}

	r.GET("/health", h.Ops.Health)
	if collector != nil {
		r.GET("/metrics", gin.WrapH(collector.Handler()))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/conversations/:id/messages", h.Chat.SendMessage)
		v1.POST("/conversations/:id/stream", h.Chat.StreamMessage)
		v1.GET("/ws", h.Chat.StreamWebSocket)

		v1.POST("/subchats/:id/merge", h.Merge.Merge)

		v1.GET("/memory/search", h.Memory.Search)
		v1.GET("/memory/stats", h.Memory.Stats)
		v1.DELETE("/memory/:id", h.Memory.Delete)

		v1.GET("/usage", h.Ops.Usage)
	}

	return r
}
