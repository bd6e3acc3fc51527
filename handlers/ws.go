package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/meowdiary/cookie-bot/websocket"
)

// WSHandler upgrades admin dashboard connections to the live event feed
type WSHandler struct {
	hub *websocket.Hub
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Serve handles GET /ws
func (h *WSHandler) Serve(c *gin.Context) {
	websocket.ServeWS(h.hub, c.Writer, c.Request)
}
