package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Realtime.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.Realtime.HeartbeatTimeout)
	assert.Equal(t, 60*time.Second, cfg.Realtime.JanitorInterval)
	assert.False(t, cfg.Realtime.RequireResourceAuth)
	assert.Empty(t, cfg.Realtime.AllowedOrigins)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REALTIME_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("REALTIME_HEARTBEAT_TIMEOUT", "2s")
	t.Setenv("REALTIME_ALLOWED_ORIGINS", "http://localhost:3000, https://app.example.com ,")
	t.Setenv("REALTIME_REQUIRE_RESOURCE_AUTH", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, ":9090", cfg.Server.Address())
	assert.Equal(t, 5*time.Second, cfg.Realtime.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, cfg.Realtime.HeartbeatTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.Realtime.AllowedOrigins)
	assert.True(t, cfg.Realtime.RequireResourceAuth)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestValidateHeartbeat(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: "8080"},
			JWT:    JWTConfig{Secret: "s"},
			Realtime: RealtimeConfig{
				HeartbeatInterval: 30 * time.Second,
				HeartbeatTimeout:  10 * time.Second,
				JanitorInterval:   time.Minute,
			},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Realtime.HeartbeatTimeout = 30 * time.Second
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidHeartbeat)

	cfg = valid()
	cfg.Realtime.JanitorInterval = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidHeartbeat)

	cfg = valid()
	cfg.Database = DatabaseConfig{Enabled: true}
	assert.ErrorIs(t, cfg.Validate(), ErrMissingDatabase)
}
