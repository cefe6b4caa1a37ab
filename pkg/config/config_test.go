package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8890, cfg.WSPort)
	assert.Equal(t, 8891, cfg.APIPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "static", cfg.AuthProvider)
	assert.Equal(t, 30*time.Second, cfg.SessionIdleWindow)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PLAYSYNC_WS_PORT", "9000")
	t.Setenv("PLAYSYNC_LOG_LEVEL", "debug")
	t.Setenv("PLAYSYNC_REDIS_ADDR", "localhost:6379")
	t.Setenv("PLAYSYNC_SESSION_IDLE_WINDOW", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.WSPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2*time.Minute, cfg.SessionIdleWindow)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("PLAYSYNC_WS_PORT", "not-a-port")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_IdleWindowTooShort(t *testing.T) {
	for _, value := range []string{"0", "1ns", "500ms"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("PLAYSYNC_SESSION_IDLE_WINDOW", value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
