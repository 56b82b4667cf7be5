package services

import (
	"errors"
	"fmt"
	"log/slog"

	"expense-service/internal/models"
	"expense-service/internal/websocket"

	"github.com/jonboulle/clockwork"
)

var ErrUnknownEventKind = errors.New("unknown resource event kind")

// Fanout is the slice of the connection registry the broadcasters need.
type Fanout interface {
	BroadcastToUser(userID string, msg websocket.Outbound) int
	BroadcastToChannel(key string, msg websocket.Outbound) int
	BroadcastToAll(msg websocket.Outbound) int
}

// NotificationBroadcaster pushes persisted notifications to their owner's
// live connections.
type NotificationBroadcaster struct {
	fanout Fanout
}

func NewNotificationBroadcaster(fanout Fanout) *NotificationBroadcaster {
	return &NotificationBroadcaster{fanout: fanout}
}

// Push returns the number of connections that accepted the message. Zero is
// not an error: the stored record is authoritative.
func (b *NotificationBroadcaster) Push(n *models.Notification) int {
	delivered := b.fanout.BroadcastToUser(n.UserID, websocket.NewNotificationMessage(n))
	slog.Debug("Notification pushed", "userID", n.UserID, "notificationID", n.ID, "delivered", delivered)
	return delivered
}

// ResourceBroadcaster shapes resource_event messages for a shared resource.
type ResourceBroadcaster struct {
	fanout Fanout
	clock  clockwork.Clock
}

func NewResourceBroadcaster(fanout Fanout, clock clockwork.Clock) *ResourceBroadcaster {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ResourceBroadcaster{fanout: fanout, clock: clock}
}

// Broadcast sends the event to every connection subscribed to the resource.
func (b *ResourceBroadcaster) Broadcast(resourceID string, kind websocket.ResourceEventKind, data interface{}) (int, error) {
	if !kind.IsValid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
	}
	msg := websocket.NewResourceEventMessage(resourceID, kind, data, b.clock.Now())
	delivered := b.fanout.BroadcastToChannel(websocket.ResourceChannel(resourceID), msg)

	slog.Debug("Resource event broadcast", "resourceID", resourceID, "event", kind, "delivered", delivered)
	return delivered, nil
}

// BroadcastToUsers sends the event straight to each listed user, whether or
// not they follow the resource channel. Duplicate ids are delivered once.
func (b *ResourceBroadcaster) BroadcastToUsers(resourceID string, userIDs []string, kind websocket.ResourceEventKind, data interface{}) (int, error) {
	if !kind.IsValid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
	}
	msg := websocket.NewResourceEventMessage(resourceID, kind, data, b.clock.Now())

	seen := make(map[string]struct{}, len(userIDs))
	delivered := 0
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup || userID == "" {
			continue
		}
		seen[userID] = struct{}{}
		delivered += b.fanout.BroadcastToUser(userID, msg)
	}

	slog.Debug("Resource event sent to users", "resourceID", resourceID, "event", kind, "users", len(seen), "delivered", delivered)
	return delivered, nil
}
