package handlers

import (
	"notify-service/internal/api/middleware"
	"notify-service/internal/websocket"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

type WSHandler struct {
	hub      *websocket.Hub
	upgrader *gorilla.Upgrader
}

func NewWSHandler(hub *websocket.Hub, upgrader *gorilla.Upgrader) *WSHandler {
	return &WSHandler{hub: hub, upgrader: upgrader}
}

// HandleWebSocket upgrades the request. The principal comes from the auth
// middleware; a request without one is upgraded and then closed by the hub.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	websocket.ServeWS(h.hub, h.upgrader, c.Writer, c.Request, middleware.UserID(c))
}
