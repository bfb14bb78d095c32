package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oidc "github.com/velia-dev/oidc"
	"github.com/velia-dev/oidc/api"
	"github.com/velia-dev/oidc/cache"
	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

func newTestAPI(t *testing.T) (*echo.Echo, *oidc.KeyProvider) {
	t.Helper()

	keys, err := oidc.GenerateKeyProvider()
	require.NoError(t, err)

	codes := cache.NewAuthCodeStore()
	t.Cleanup(func() { _ = codes.Close() })
	refresh := cache.NewRefreshTokenStore(time.Minute)
	t.Cleanup(func() { _ = refresh.Close() })

	opts := oidc.DefaultOptions("https://auth.example.com")
	issuer := oidc.NewTokenIssuer(keys, refresh, opts.Issuer,
		opts.AccessTokenTTL, opts.RefreshTokenTTL, opts.OnboardingTokenTTL)

	registry := staticRegistry{"spa": {
		ClientID: "spa",
		RedirectURIs: []string{
			"https://app.example.com/callback",
			"https://app.example.com/cb?env=prod#done",
		},
		Public:        true,
		AllowedScopes: []string{"openid", "profile"},
	}}
	server := oidc.NewAuthorizationServer(
		oidc.NewClientValidator(registry),
		codes,
		issuer,
		oidc.NewRefreshTokenRotator(refresh, issuer),
		oidc.NewExternalIdentityLinker(nopAccounts{}, cache.NewFederatedIdentityStore()),
		opts,
	)

	e := echo.New()
	NewOAuth2API(server, keys, opts.Issuer, opts.AllowPlainPKCE).RegisterRoutes(e)
	return e, keys
}

type staticRegistry map[string]*domain.ClientInfo

func (r staticRegistry) Lookup(_ context.Context, clientID string) (*domain.ClientInfo, error) {
	cli, ok := r[clientID]
	if !ok {
		return nil, serrors.ErrClientNotFound
	}
	return cli, nil
}

type nopAccounts struct{}

func (nopAccounts) Exists(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (nopAccounts) Provision(_ context.Context, _ domain.ExternalUserInfo) (string, error) {
	return "acct-new", nil
}

func TestAuthorizeHandler_Redirects(t *testing.T) {
	e, _ := newTestAPI(t)

	q := url.Values{}
	q.Set("client_id", "spa")
	q.Set("redirect_uri", "https://app.example.com/callback")
	q.Set("scope", "openid profile")
	q.Set("state", "abc")
	q.Set("code_challenge", "plain-challenge")
	q.Set("code_challenge_method", "plain")

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+q.Encode(), nil)
	req.Header.Set(AccountHeader, "acct-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.NotEmpty(t, loc.Query().Get("code"))
	assert.Equal(t, "abc", loc.Query().Get("state"))
	assert.Equal(t, "https://auth.example.com", loc.Query().Get("iss"))
}

func TestAuthorizeHandler_PreservesRedirectComponents(t *testing.T) {
	e, _ := newTestAPI(t)

	q := url.Values{}
	q.Set("client_id", "spa")
	q.Set("redirect_uri", "https://app.example.com/cb?env=prod#done")
	q.Set("code_challenge", "plain-challenge")
	q.Set("code_challenge_method", "plain")

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+q.Encode(), nil)
	req.Header.Set(AccountHeader, "acct-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/cb", loc.Path)
	assert.Equal(t, "prod", loc.Query().Get("env"), "pre-existing query parameters must survive")
	assert.NotEmpty(t, loc.Query().Get("code"))
	assert.Equal(t, "done", loc.Fragment)
}

func TestAuthorizeHandler_ErrorIsJSON(t *testing.T) {
	e, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?client_id=spa&redirect_uri=https%3A%2F%2Fevil.example.com", nil)
	req.Header.Set(AccountHeader, "acct-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body serrors.OAuth2Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, serrors.InvalidRequest, body.Code)
}

func TestTokenHandler_FullExchange(t *testing.T) {
	e, _ := newTestAPI(t)

	q := url.Values{}
	q.Set("client_id", "spa")
	q.Set("redirect_uri", "https://app.example.com/callback")
	q.Set("scope", "openid")
	q.Set("code_challenge", "verifier-acts-as-challenge-in-plain-mode-xx")
	q.Set("code_challenge_method", "plain")

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+q.Encode(), nil)
	req.Header.Set(AccountHeader, "acct-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", "spa")
	form.Set("code", code)
	form.Set("redirect_uri", "https://app.example.com/callback")
	form.Set("code_verifier", "verifier-acts-as-challenge-in-plain-mode-xx")

	tokenReq := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	tokenReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	tokenRec := httptest.NewRecorder()
	e.ServeHTTP(tokenRec, tokenReq)

	require.Equal(t, http.StatusOK, tokenRec.Code)
	assert.Equal(t, "no-store", tokenRec.Header().Get("Cache-Control"))

	var resp api.TokenResponse
	require.NoError(t, json.Unmarshal(tokenRec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.NotEmpty(t, resp.IDToken)
	assert.Equal(t, "Bearer", resp.TokenType)
}

func TestTokenHandler_UnsupportedGrant(t *testing.T) {
	e, _ := newTestAPI(t)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", "spa")

	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body serrors.OAuth2Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, serrors.UnsupportedGrantType, body.Code)
}

func TestDiscoveryAndJWKS(t *testing.T) {
	e, keys := newTestAPI(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg api.OpenIDConfiguration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "https://auth.example.com", cfg.Issuer)
	assert.Contains(t, cfg.GrantTypesSupported, "external")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var set api.JSONWebKeySet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, keys.KeyID(), set.Keys[0].Kid)
}
