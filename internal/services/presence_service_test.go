package services

import (
	"context"
	"os"
	"testing"
	"time"

	"expense-service/internal/database"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisForTest connects to REDIS_ADDR (default localhost:6379) or skips.
func redisForTest(t *testing.T) *database.RedisClient {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skip("Redis is not available, skipping test")
	}
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})
	return database.NewRedisClientFrom(rdb)
}

func TestPresenceService_OnlineOffline(t *testing.T) {
	client := redisForTest(t)
	clock := clockwork.NewFakeClockAt(time.Unix(1700000000, 0))
	p := NewPresenceService(client, clock)
	ctx := context.Background()

	require.NoError(t, p.SetUserOnline(ctx, "alice"))

	online, err := p.IsUserOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)

	status, err := client.GetClient().HGetAll(ctx, presenceKey("alice")).Result()
	require.NoError(t, err)
	assert.Equal(t, "online", status["status"])
	assert.Equal(t, "1700000000", status["last_seen"])

	ttl, err := client.GetClient().TTL(ctx, presenceKey("alice")).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, onlineStatusTTL)

	require.NoError(t, p.SetUserOffline(ctx, "alice"))
	users, err := p.GetOnlineUsers(ctx)
	require.NoError(t, err)
	assert.NotContains(t, users, "alice")

	status, err = client.GetClient().HGetAll(ctx, presenceKey("alice")).Result()
	require.NoError(t, err)
	assert.Equal(t, "offline", status["status"])
}

func TestRateLimiter_Allow(t *testing.T) {
	client := redisForTest(t)
	clock := clockwork.NewFakeClock()
	limiter := NewRateLimiter(client, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		clock.Advance(time.Millisecond)
		ok, err := limiter.Allow(ctx, "rl:test", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i)
	}
	clock.Advance(time.Millisecond)
	ok, err := limiter.Allow(ctx, "rl:test", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(2 * time.Minute)
	ok, err = limiter.Allow(ctx, "rl:test", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
