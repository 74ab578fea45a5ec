package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursecraft-backend/internal/logger"
	"github.com/yungbote/coursecraft-backend/internal/sse"
)

type SSEHandler struct {
	log *logger.Logger
	hub *sse.SSEHub

	mu      sync.RWMutex
	clients map[uuid.UUID]*sse.SSEClient // keyed by client ID
}

func NewSSEHandler(log *logger.Logger, hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{
		log:     log.With("handler", "SSEHandler"),
		hub:     hub,
		clients: make(map[uuid.UUID]*sse.SSEClient),
	}
}

// GET /sse/stream
//
// Streams until the client disconnects. Every stream is subscribed to the
// user's own channel; course channels are added via ?course=<id> or a later
// subscribe call.
func (h *SSEHandler) SSEStream(c *gin.Context) {
	userID := ownerID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	client := h.hub.NewSSEClient(userID)

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	h.hub.AddChannel(client, sse.UserChannel(userID))

	if raw := c.Query("course"); raw != "" {
		if courseID, err := uuid.Parse(raw); err == nil {
			h.hub.AddChannel(client, sse.CourseChannel(courseID))
		}
	}

	h.log.Info("SSEStream open", "user_id", userID.String(), "client_id", client.ID.String())
	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()
	h.hub.CloseClient(client)
}

type sseChannelRequest struct {
	ClientID uuid.UUID `json:"client_id" binding:"required"`
	Channel  string    `json:"channel" binding:"required"`
}

// POST /sse/subscribe
func (h *SSEHandler) SSESubscribe(c *gin.Context) {
	userID := ownerID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req sseChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	h.mu.RLock()
	client, exists := h.clients[req.ClientID]
	h.mu.RUnlock()
	if !exists || client.UserID != userID {
		c.JSON(http.StatusConflict, gin.H{"error": "no active SSE connection for this client"})
		return
	}

	h.hub.AddChannel(client, req.Channel)
	c.JSON(http.StatusOK, gin.H{"message": "subscribed", "channel": req.Channel})
}

// POST /sse/unsubscribe
func (h *SSEHandler) SSEUnsubscribe(c *gin.Context) {
	userID := ownerID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req sseChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	h.mu.RLock()
	client, exists := h.clients[req.ClientID]
	h.mu.RUnlock()
	if !exists || client.UserID != userID {
		c.JSON(http.StatusConflict, gin.H{"error": "no active SSE connection for this client"})
		return
	}

	h.hub.RemoveChannel(client, req.Channel)
	c.JSON(http.StatusOK, gin.H{"message": "unsubscribed", "channel": req.Channel})
}
