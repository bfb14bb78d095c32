package oidc

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/velia-dev/oidc/cache"
	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

const testClientSecret = "s3cret-value"

// mapRegistry is an in-memory ClientRegistry for tests.
type mapRegistry struct {
	clients map[string]*domain.ClientInfo
}

func (r mapRegistry) Lookup(_ context.Context, clientID string) (*domain.ClientInfo, error) {
	cli, ok := r.clients[clientID]
	if !ok {
		return nil, serrors.ErrClientNotFound
	}
	return cli, nil
}

// stubAccounts provisions uuid account ids and remembers them.
type stubAccounts struct {
	mu          sync.Mutex
	provisioned int
}

func (s *stubAccounts) Exists(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (s *stubAccounts) Provision(_ context.Context, _ domain.ExternalUserInfo) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provisioned++
	return uuid.NewString(), nil
}

func testRegistry(t *testing.T) mapRegistry {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testClientSecret), bcrypt.MinCost)
	require.NoError(t, err)

	return mapRegistry{clients: map[string]*domain.ClientInfo{
		"spa": {
			ClientID:      "spa",
			RedirectURIs:  []string{"https://app.example.com/callback"},
			Public:        true,
			AllowedScopes: []string{"openid", "profile", "email", "offline_access"},
		},
		"web": {
			ClientID:      "web",
			RedirectURIs:  []string{"https://web.example.com/cb", "https://web.example.com/cb2"},
			SecretHash:    string(hash),
			AllowedScopes: []string{"openid", "profile"},
		},
	}}
}

type testEnv struct {
	server   *AuthorizationServer
	keys     *KeyProvider
	issuer   *TokenIssuer
	codes    *cache.AuthCodeStore
	refresh  *cache.RefreshTokenStore
	accounts *stubAccounts
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()

	keys, err := GenerateKeyProvider()
	require.NoError(t, err)

	codes := cache.NewAuthCodeStore()
	t.Cleanup(func() { _ = codes.Close() })
	refresh := cache.NewRefreshTokenStore(time.Minute)
	t.Cleanup(func() { _ = refresh.Close() })

	opts := DefaultOptions("https://auth.example.com")
	for _, m := range mutate {
		m(&opts)
	}

	issuer := NewTokenIssuer(keys, refresh, opts.Issuer,
		opts.AccessTokenTTL, opts.RefreshTokenTTL, opts.OnboardingTokenTTL)
	accounts := &stubAccounts{}
	server := NewAuthorizationServer(
		NewClientValidator(testRegistry(t)),
		codes,
		issuer,
		NewRefreshTokenRotator(refresh, issuer),
		NewExternalIdentityLinker(accounts, cache.NewFederatedIdentityStore()),
		opts,
	)

	return &testEnv{
		server:   server,
		keys:     keys,
		issuer:   issuer,
		codes:    codes,
		refresh:  refresh,
		accounts: accounts,
	}
}

func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func requireOAuthCode(t *testing.T, err error, code string) {
	t.Helper()
	var oauthErr *serrors.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, code, oauthErr.Code)
}
