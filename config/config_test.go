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
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:8080", cfg.Addr)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat)
	assert.Equal(t, time.Second, cfg.ReconnectBaseDelay)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 10, cfg.ActivityRetention)
	assert.Equal(t, 8*time.Second, cfg.ActivityInterval)
}

func TestValidate(t *testing.T) {
	t.Run("zero config fails", func(t *testing.T) {
		var cfg Config
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive intervals fail", func(t *testing.T) {
		cfg := Config{
			Addr:                 "127.0.0.1:8080",
			Heartbeat:            -time.Second,
			ReconnectBaseDelay:   time.Second,
			MaxReconnectAttempts: 5,
			ActivityRetention:    10,
			ActivityInterval:     8 * time.Second,
		}
		assert.Error(t, cfg.Validate())
	})

	t.Run("validate is cached after success", func(t *testing.T) {
		cfg := Config{
			Addr:                 "127.0.0.1:8080",
			Heartbeat:            30 * time.Second,
			ReconnectBaseDelay:   time.Second,
			MaxReconnectAttempts: 5,
			ActivityRetention:    10,
			ActivityInterval:     8 * time.Second,
		}
		require.NoError(t, cfg.Validate())
		require.NoError(t, cfg.Validate())
	})
}
