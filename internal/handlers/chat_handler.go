package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"dev.helix.chat/internal/services"
	"dev.helix.chat/internal/streaming"
)

// ChatHandler serves blocking and streamed chat turns.
type ChatHandler struct {
	chat     *services.ChatService
	engine   *streaming.Engine
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(chat *services.ChatService, engine *streaming.Engine, logger *logrus.Logger) *ChatHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &ChatHandler{
		chat:   chat,
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// SendMessageRequest is the body for a chat turn.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// SendMessage runs one blocking chat turn.
// POST /v1/conversations/:id/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	result, err := h.chat.SendMessage(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// StreamMessage runs one chat turn with SSE delivery.
// POST /v1/conversations/:id/stream
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	conversationID := c.Param("id")
	plan, err := h.chat.PrepareStream(c.Request.Context(), conversationID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}

	sink, err := newSSESink(c.Writer, c.Request.Context().Done())
	if err != nil {
		writeError(c, err)
		return
	}

	clientID := uuid.NewString()
	session, err := h.engine.Initialize(clientID, sink)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to initialize streaming session")
		return
	}

	start := time.Now()
	if err := h.engine.StreamGeneration(c.Request.Context(), clientID, conversationID, plan.Context.Messages, plan.Options); err != nil {
		h.logger.WithError(err).WithField("client_id", clientID).Debug("Streamed generation ended with error")
		return
	}
	h.chat.RecordStreamUsage(conversationID, "", plan.Context.Metadata.EstimatedTokens, session.TokenCount(), time.Since(start))
}

// wsRequest is the first frame a WebSocket client sends after
// connecting.
type wsRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// StreamWebSocket upgrades the connection and runs one streamed turn
// driven by the client's request frame.
// GET /v1/ws
func (h *ChatHandler) StreamWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	var req wsRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.logger.WithError(err).Debug("WebSocket request frame unreadable")
		return
	}

	sink := newWSSink(conn)
	sink.startReadPump()

	clientID := uuid.NewString()
	session, err := h.engine.Initialize(clientID, sink)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to initialize streaming session")
		return
	}

	plan, err := h.chat.PrepareStream(c.Request.Context(), req.ConversationID, req.Content)
	if err != nil {
		_ = conn.WriteJSON(&streaming.Event{
			Type:      streaming.EventError,
			Error:     err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	start := time.Now()
	if err := h.engine.StreamGeneration(c.Request.Context(), clientID, req.ConversationID, plan.Context.Messages, plan.Options); err != nil {
		h.logger.WithError(err).WithField("client_id", clientID).Debug("Streamed generation ended with error")
		return
	}
	h.chat.RecordStreamUsage(req.ConversationID, "", plan.Context.Metadata.EstimatedTokens, session.TokenCount(), time.Since(start))
}
