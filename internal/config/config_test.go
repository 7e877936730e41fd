package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "accessly", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Contains(t, cfg.Database.DSN(), "dbname=accessly")
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Ticket.RejectAfterEnd)
	assert.False(t, cfg.IsProduction())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("TICKET_REJECT_AFTER_END", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "cache.internal:6379", cfg.Redis.Addr())
	assert.True(t, cfg.Ticket.RejectAfterEnd)
}

func TestValidate(t *testing.T) {
	t.Run("default secret rejected in production", func(t *testing.T) {
		t.Setenv("APP_ENVIRONMENT", "production")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("bad port rejected", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "-1")
		_, err := Load()
		require.Error(t, err)
	})
}
