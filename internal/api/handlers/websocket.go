package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"expense-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	gateway  *websocket.Gateway
	stats    StatsSource
	presence PresenceReader
}

// StatsSource is satisfied by *websocket.Registry.
type StatsSource interface {
	Stats() websocket.Stats
}

// PresenceReader is satisfied by *services.PresenceService.
type PresenceReader interface {
	IsUserOnline(ctx context.Context, userID string) (bool, error)
	GetOnlineUsers(ctx context.Context) ([]string, error)
}

// RealtimeStats adds the presence store's view to the registry counts.
type RealtimeStats struct {
	websocket.Stats
	OnlineUsers *int `json:"onlineUsers,omitempty"`
}

type PresenceResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// NewWSHandler accepts a nil presence reader when Redis is disabled.
func NewWSHandler(gateway *websocket.Gateway, stats StatsSource, presence PresenceReader) *WSHandler {
	return &WSHandler{gateway: gateway, stats: stats, presence: presence}
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Establish a realtime connection. A token may be passed as ?token= or a Bearer header; without one the connection is anonymous.
// @Tags realtime
// @Param token query string false "Access token"
// @Success 101 "Switching Protocols - WebSocket connection established"
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	h.gateway.ServeHTTP(c.Writer, c.Request)
}

// GetStats godoc
// @Summary Realtime statistics
// @Tags realtime
// @Produce json
// @Success 200 {object} RealtimeStats
// @Router /realtime/stats [get]
func (h *WSHandler) GetStats(c *gin.Context) {
	out := RealtimeStats{Stats: h.stats.Stats()}
	if h.presence != nil {
		users, err := h.presence.GetOnlineUsers(c.Request.Context())
		if err != nil {
			slog.Warn("Failed to read online users", "error", err)
		} else {
			count := len(users)
			out.OnlineUsers = &count
		}
	}
	c.JSON(http.StatusOK, out)
}

// HasPresence reports whether presence lookups can be served.
func (h *WSHandler) HasPresence() bool {
	return h.presence != nil
}

// GetPresence godoc
// @Summary Whether a user holds a live connection
// @Tags realtime
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} PresenceResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /realtime/presence/{userId} [get]
func (h *WSHandler) GetPresence(c *gin.Context) {
	userID := c.Param("userId")
	online, err := h.presence.IsUserOnline(c.Request.Context(), userID)
	if err != nil {
		slog.Error("Failed to read presence", "userID", userID, "error", err)
		respondError(c, http.StatusServiceUnavailable, "Presence unavailable", "")
		return
	}
	c.JSON(http.StatusOK, PresenceResponse{UserID: userID, Online: online})
}
