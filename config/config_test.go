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

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 5*time.Minute, cfg.AuthCodeLifetime)
	assert.Equal(t, time.Hour, cfg.AccessTokenLifetime)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenLifetime)
	assert.True(t, cfg.AllowPlainPKCE)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("AUTH_CODE_LIFETIME", "90s")
	t.Setenv("ALLOW_PLAIN_PKCE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, 90*time.Second, cfg.AuthCodeLifetime)
	assert.False(t, cfg.AllowPlainPKCE)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "dynamo")

	_, err := Load()
	assert.Error(t, err)
}
