package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeClientsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clients.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadClientRegistry(t *testing.T) {
	path := writeClientsFile(t, `[
		{
			"client_id": "web",
			"redirect_uris": ["https://web.example.com/cb"],
			"secret_hash": "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
			"allowed_scopes": ["openid"]
		},
		{
			"client_id": "spa",
			"redirect_uris": ["https://app.example.com/callback"],
			"public": true,
			"allowed_scopes": ["openid", "profile"]
		}
	]`)

	registry, err := loadClientRegistry(path)
	require.NoError(t, err)

	web, err := registry.Lookup(context.Background(), "web")
	require.NoError(t, err)
	assert.False(t, web.Public)
	assert.NotEmpty(t, web.SecretHash, "secret hash must survive loading from disk")

	spa, err := registry.Lookup(context.Background(), "spa")
	require.NoError(t, err)
	assert.True(t, spa.Public)
	assert.Empty(t, spa.SecretHash)
}

func TestLoadClientRegistry_Rejections(t *testing.T) {
	t.Run("confidential client without secret hash", func(t *testing.T) {
		path := writeClientsFile(t, `[{"client_id": "web", "redirect_uris": ["https://web.example.com/cb"]}]`)
		_, err := loadClientRegistry(path)
		assert.ErrorContains(t, err, "secret_hash")
	})

	t.Run("missing client_id", func(t *testing.T) {
		path := writeClientsFile(t, `[{"public": true}]`)
		_, err := loadClientRegistry(path)
		assert.ErrorContains(t, err, "client_id")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadClientRegistry(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
}
