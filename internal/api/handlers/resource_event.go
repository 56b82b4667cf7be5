package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"expense-service/internal/models"
	"expense-service/internal/services"
	"expense-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

// ParticipantLister resolves the active participants of a receipt.
type ParticipantLister interface {
	UserIDsForReceipt(ctx context.Context, resourceID string) ([]string, error)
}

type ResourceEventHandler struct {
	broadcaster  *services.ResourceBroadcaster
	participants ParticipantLister
}

// NewResourceEventHandler accepts a nil participants lister; requests asking
// for participant delivery are then rejected.
func NewResourceEventHandler(broadcaster *services.ResourceBroadcaster, participants ParticipantLister) *ResourceEventHandler {
	return &ResourceEventHandler{broadcaster: broadcaster, participants: participants}
}

// PublishEvent godoc
// @Summary Publish a resource event
// @Description Broadcasts to the resource channel, or directly to userIds / all participants when given.
// @Tags realtime
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Resource ID"
// @Param request body models.ResourceEventRequest true "Event"
// @Success 202 {object} models.ResourceEventResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /resources/{id}/events [post]
func (h *ResourceEventHandler) PublishEvent(c *gin.Context) {
	resourceID := c.Param("id")

	var req models.ResourceEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	kind := websocket.ResourceEventKind(req.Event)
	var data interface{}
	if len(req.Data) > 0 {
		data = req.Data
	}

	userIDs := req.UserIDs
	if req.NotifyParticipants {
		if h.participants == nil {
			respondError(c, http.StatusBadRequest, "Participant delivery is not available", "")
			return
		}
		ids, err := h.participants.UserIDsForReceipt(c.Request.Context(), resourceID)
		if err != nil {
			slog.Error("Failed to load participants", "resourceID", resourceID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to load participants", "")
			return
		}
		userIDs = append(userIDs, ids...)
	}

	var (
		delivered int
		err       error
	)
	// Direct delivery stays direct even when nobody is listed.
	if req.NotifyParticipants || len(userIDs) > 0 {
		delivered, err = h.broadcaster.BroadcastToUsers(resourceID, userIDs, kind, data)
	} else {
		delivered, err = h.broadcaster.Broadcast(resourceID, kind, data)
	}
	if errors.Is(err, services.ErrUnknownEventKind) {
		respondError(c, http.StatusBadRequest, "Unknown event", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, models.ResourceEventResponse{Delivered: delivered})
}
