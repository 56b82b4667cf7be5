package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"expense-service/internal/database"

	"github.com/jonboulle/clockwork"
)

const (
	onlineUsersKey    = "realtime:online_users"
	onlineStatusTTL   = 5 * time.Minute
	offlineStatusTTL  = 24 * time.Hour
	statusOnline      = "online"
	statusOffline     = "offline"
	presenceKeyFormat = "realtime:user:%s:status"
)

// PresenceService records which users hold at least one live connection.
type PresenceService struct {
	client *database.RedisClient
	clock  clockwork.Clock
}

func NewPresenceService(client *database.RedisClient, clock clockwork.Clock) *PresenceService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PresenceService{client: client, clock: clock}
}

func presenceKey(userID string) string {
	return fmt.Sprintf(presenceKeyFormat, userID)
}

func (p *PresenceService) SetUserOnline(ctx context.Context, userID string) error {
	return p.setStatus(ctx, userID, statusOnline, onlineStatusTTL)
}

func (p *PresenceService) SetUserOffline(ctx context.Context, userID string) error {
	return p.setStatus(ctx, userID, statusOffline, offlineStatusTTL)
}

func (p *PresenceService) setStatus(ctx context.Context, userID, status string, ttl time.Duration) error {
	now := p.clock.Now().Unix()
	key := presenceKey(userID)

	pipe := p.client.GetClient().Pipeline()
	if status == statusOnline {
		pipe.SAdd(ctx, onlineUsersKey, userID)
	} else {
		pipe.SRem(ctx, onlineUsersKey, userID)
	}
	pipe.HSet(ctx, key, map[string]interface{}{
		"status":     status,
		"last_seen":  now,
		"updated_at": now,
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user %s: %w", status, err)
	}

	slog.Debug("User presence updated", "userID", userID, "status", status)
	return nil
}

func (p *PresenceService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return p.client.GetClient().SIsMember(ctx, onlineUsersKey, userID).Result()
}

func (p *PresenceService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return p.client.GetClient().SMembers(ctx, onlineUsersKey).Result()
}
