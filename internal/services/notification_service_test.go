package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"expense-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryNotificationRepo struct {
	mu        sync.Mutex
	nextID    uint
	items     []models.Notification
	createErr error
	lastLimit int
}

func (m *memoryNotificationRepo) Create(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	n.ID = m.nextID
	m.items = append(m.items, *n)
	return nil
}

func (m *memoryNotificationRepo) ListForUser(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []models.Notification
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		if m.items[i].UserID == userID {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *memoryNotificationRepo) CountForUser(_ context.Context, userID string) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, unread int64
	for _, n := range m.items {
		if n.UserID == userID {
			total++
			if !n.Read {
				unread++
			}
		}
	}
	return total, unread, nil
}

func (m *memoryNotificationRepo) MarkRead(_ context.Context, userID string, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].UserID == userID {
			m.items[i].Read = true
			return nil
		}
	}
	return models.ErrNotFound
}

func newNotificationFixture() (*NotificationService, *memoryNotificationRepo, *fakeFanout) {
	repo := &memoryNotificationRepo{}
	fanout := &fakeFanout{perTarget: 1}
	return NewNotificationService(repo, NewNotificationBroadcaster(fanout)), repo, fanout
}

func TestNotificationService_CreatePersistsThenPushes(t *testing.T) {
	svc, repo, fanout := newNotificationFixture()
	receipt := "R1"

	n, err := svc.Create(context.Background(), &models.CreateNotificationRequest{
		UserID:    "alice",
		Type:      models.NotificationReceiptInvite,
		Title:     "You were invited",
		Message:   "Bob invited you to Dinner",
		ReceiptID: &receipt,
	})
	require.NoError(t, err)
	assert.Equal(t, uint(1), n.ID)
	assert.Len(t, repo.items, 1)

	require.Len(t, fanout.toUser, 1)
	assert.Equal(t, "alice", fanout.toUser[0].target)
}

func TestNotificationService_CreateStillSucceedsWithoutListeners(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, NewNotificationBroadcaster(&fakeFanout{}))

	_, err := svc.Create(context.Background(), &models.CreateNotificationRequest{
		UserID: "offline", Type: models.NotificationPaymentReminder, Title: "Pay up", Message: "You owe 5",
	})
	require.NoError(t, err)
	assert.Len(t, repo.items, 1)
}

func TestNotificationService_CreateStoreFailureSkipsPush(t *testing.T) {
	svc, repo, fanout := newNotificationFixture()
	repo.createErr = errors.New("connection refused")

	_, err := svc.Create(context.Background(), &models.CreateNotificationRequest{
		UserID: "alice", Type: models.NotificationJoinApproved, Title: "Approved",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.createErr)
	assert.Empty(t, fanout.toUser)
}

func TestNotificationService_CreateValidates(t *testing.T) {
	svc, _, _ := newNotificationFixture()
	_, err := svc.Create(context.Background(), &models.CreateNotificationRequest{Type: models.NotificationJoinRequest, Title: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNotificationService_ListAndMarkRead(t *testing.T) {
	svc, repo, _ := newNotificationFixture()
	ctx := context.Background()
	for _, user := range []string{"alice", "alice", "bob"} {
		_, err := svc.Create(ctx, &models.CreateNotificationRequest{UserID: user, Type: models.NotificationJoinRequest, Title: "t"})
		require.NoError(t, err)
	}

	list, err := svc.ListForUser(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultListLimit, repo.lastLimit)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 2, list.Unread)
	assert.Len(t, list.Items, 2)

	require.NoError(t, svc.MarkRead(ctx, "alice", list.Items[0].ID))
	list, err = svc.ListForUser(ctx, "alice", 1000)
	require.NoError(t, err)
	assert.Equal(t, maxListLimit, repo.lastLimit)
	assert.Equal(t, 1, list.Unread)

	// bob cannot read alice's notification
	assert.ErrorIs(t, svc.MarkRead(ctx, "bob", list.Items[0].ID), ErrNotificationNotFound)

	empty, err := svc.ListForUser(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}
