package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"expense-service/internal/models"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidRequest       = errors.New("invalid request")
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// NotificationRepository is the durable store of notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	CountForUser(ctx context.Context, userID string) (total int64, unread int64, err error)
	MarkRead(ctx context.Context, userID string, id uint) error
}

type NotificationService struct {
	repo        NotificationRepository
	broadcaster *NotificationBroadcaster
}

func NewNotificationService(repo NotificationRepository, broadcaster *NotificationBroadcaster) *NotificationService {
	return &NotificationService{
		repo:        repo,
		broadcaster: broadcaster,
	}
}

// Create stores the notification and then pushes it to the user's live
// connections. A failed or empty push never undoes the stored record.
func (s *NotificationService) Create(ctx context.Context, req *models.CreateNotificationRequest) (*models.Notification, error) {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Title) == "" || req.Type == "" {
		return nil, ErrInvalidRequest
	}

	n := &models.Notification{
		UserID:        req.UserID,
		Type:          req.Type,
		Title:         req.Title,
		Message:       req.Message,
		ReceiptID:     req.ReceiptID,
		RelatedUserID: req.RelatedUserID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.Push(n)
	}

	slog.Info("Notification created", "notificationID", n.ID, "userID", n.UserID, "type", n.Type)
	return n, nil
}

func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) (*models.NotificationListResponse, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	items, err := s.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	total, unread, err := s.repo.CountForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	if items == nil {
		items = []models.Notification{}
	}
	return &models.NotificationListResponse{
		Items:  items,
		Total:  int(total),
		Unread: int(unread),
	}, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID string, id uint) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}
