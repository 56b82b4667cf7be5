package services

import (
	"sync"
	"testing"
	"time"

	"expense-service/internal/models"
	"expense-service/internal/websocket"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSend struct {
	target string
	msg    websocket.Outbound
}

// fakeFanout pretends every user and channel has `perTarget` live connections.
type fakeFanout struct {
	mu        sync.Mutex
	perTarget int
	toUser    []recordedSend
	toChannel []recordedSend
}

func (f *fakeFanout) BroadcastToUser(userID string, msg websocket.Outbound) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toUser = append(f.toUser, recordedSend{userID, msg})
	return f.perTarget
}

func (f *fakeFanout) BroadcastToChannel(key string, msg websocket.Outbound) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toChannel = append(f.toChannel, recordedSend{key, msg})
	return f.perTarget
}

func (f *fakeFanout) BroadcastToAll(websocket.Outbound) int {
	return f.perTarget
}

func TestNotificationBroadcaster_Push(t *testing.T) {
	fanout := &fakeFanout{perTarget: 2}
	b := NewNotificationBroadcaster(fanout)

	n := &models.Notification{ID: 7, UserID: "alice", Type: models.NotificationJoinRequest, Title: "Join request"}
	assert.Equal(t, 2, b.Push(n))

	require.Len(t, fanout.toUser, 1)
	assert.Equal(t, "alice", fanout.toUser[0].target)
	msg, ok := fanout.toUser[0].msg.(websocket.NotificationMessage)
	require.True(t, ok)
	assert.Equal(t, websocket.MessageTypeNotification, msg.MessageType())
	assert.Same(t, n, msg.Data)
}

func TestNotificationBroadcaster_NoConnectionsIsNotAnError(t *testing.T) {
	b := NewNotificationBroadcaster(&fakeFanout{})
	assert.Equal(t, 0, b.Push(&models.Notification{UserID: "offline"}))
}

func TestResourceBroadcaster_Broadcast(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	fanout := &fakeFanout{perTarget: 3}
	b := NewResourceBroadcaster(fanout, clock)

	delivered, err := b.Broadcast("R1", websocket.EventItemAdded, map[string]string{"name": "Pizza"})
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)

	require.Len(t, fanout.toChannel, 1)
	assert.Equal(t, "resource:R1", fanout.toChannel[0].target)
	msg := fanout.toChannel[0].msg.(websocket.ResourceEventMessage)
	assert.Equal(t, "R1", msg.ReceiptID)
	assert.Equal(t, websocket.EventItemAdded, msg.Event)
	assert.Equal(t, clock.Now(), msg.Timestamp)
}

func TestResourceBroadcaster_RejectsUnknownKind(t *testing.T) {
	fanout := &fakeFanout{perTarget: 1}
	b := NewResourceBroadcaster(fanout, nil)

	_, err := b.Broadcast("R1", websocket.ResourceEventKind("exploded"), nil)
	assert.ErrorIs(t, err, ErrUnknownEventKind)

	_, err = b.BroadcastToUsers("R1", []string{"alice"}, "", nil)
	assert.ErrorIs(t, err, ErrUnknownEventKind)

	assert.Empty(t, fanout.toChannel)
	assert.Empty(t, fanout.toUser)
}

func TestResourceBroadcaster_BroadcastToUsers(t *testing.T) {
	fanout := &fakeFanout{perTarget: 1}
	b := NewResourceBroadcaster(fanout, clockwork.NewFakeClock())

	delivered, err := b.BroadcastToUsers("R9", []string{"alice", "bob", "alice", ""}, websocket.EventParticipantApproved, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	require.Len(t, fanout.toUser, 2)
	assert.Equal(t, "alice", fanout.toUser[0].target)
	assert.Equal(t, "bob", fanout.toUser[1].target)
	// one message value shared by every recipient
	assert.Equal(t, fanout.toUser[0].msg, fanout.toUser[1].msg)
	assert.Empty(t, fanout.toChannel)
}
