package handlers

import (
	"net/http"

	"notify-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	hub *websocket.Hub
}

func NewPresenceHandler(hub *websocket.Hub) *PresenceHandler {
	return &PresenceHandler{hub: hub}
}

// GetStats returns the aggregate connection and queue counters
func (h *PresenceHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

// GetUserPresence returns one user's live session
func (h *PresenceHandler) GetUserPresence(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}
	c.JSON(http.StatusOK, h.hub.Presence(userID))
}
