package services

import (
	"context"
	"fmt"
	"time"

	"expense-service/internal/database"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding-window limiter on a Redis sorted set.
type RateLimiter struct {
	client *database.RedisClient
	clock  clockwork.Clock
}

func NewRateLimiter(client *database.RedisClient, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{client: client, clock: clock}
}

// Allow records one hit on key and reports whether it stays within limit.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.clock.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return card.Val() < int64(limit), nil
}
