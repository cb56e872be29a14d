package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Miguel-Alzate/modr/internal/notifier"
)

// LiveHandler upgrades dashboard clients onto the notification hub.
type LiveHandler struct {
	hub *notifier.Hub
}

func NewLiveHandler(hub *notifier.Hub) *LiveHandler {
	return &LiveHandler{hub: hub}
}

func (h *LiveHandler) Subscribe(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live notifications are disabled"})
		return
	}
	h.hub.ServeHTTP(c.Writer, c.Request)
}
