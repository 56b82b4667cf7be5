package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"expense-service/internal/api/middleware"
	"expense-service/internal/models"
	"expense-service/internal/services"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// ListNotifications godoc
// @Summary List the caller's notifications
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum items (default 50, max 200)"
// @Success 200 {object} models.NotificationListResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /notifications [get]
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.service.ListForUser(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		slog.Error("Failed to list notifications", "userID", middleware.UserID(c), "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to list notifications", "")
		return
	}
	c.JSON(http.StatusOK, list)
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags notifications
// @Security BearerAuth
// @Param id path int true "Notification ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /notifications/{id}/read [patch]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid notification ID", err.Error())
		return
	}

	err = h.service.MarkRead(c.Request.Context(), middleware.UserID(c), uint(id))
	switch {
	case errors.Is(err, services.ErrNotificationNotFound):
		respondError(c, http.StatusNotFound, "Notification not found", "")
	case err != nil:
		slog.Error("Failed to mark notification read", "notificationID", id, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to update notification", "")
	default:
		c.Status(http.StatusNoContent)
	}
}

// CreateNotification godoc
// @Summary Create and push a notification
// @Description Used by the domain services. The record is stored first; the realtime push is best effort.
// @Tags notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateNotificationRequest true "Notification"
// @Success 201 {object} models.Notification
// @Failure 400 {object} models.ErrorResponse
// @Router /notifications [post]
func (h *NotificationHandler) CreateNotification(c *gin.Context) {
	var req models.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	n, err := h.service.Create(c.Request.Context(), &req)
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		respondError(c, http.StatusBadRequest, "Invalid notification", err.Error())
	case err != nil:
		slog.Error("Failed to create notification", "userID", req.UserID, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to create notification", "")
	default:
		c.JSON(http.StatusCreated, n)
	}
}

func respondError(c *gin.Context, status int, message, details string) {
	c.JSON(status, models.ErrorResponse{Code: status, Message: message, Details: details})
}
