// Package echoapi exposes the authorization server core over HTTP using the
// Echo framework.
package echoapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	oidc "github.com/velia-dev/oidc"
	"github.com/velia-dev/oidc/api"
	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

// AccountHeader carries the authenticated account id set by the upstream
// authentication layer. The core never authenticates end users itself.
const AccountHeader = "X-Authenticated-Account"

// OAuth2API holds the HTTP handlers for the protocol endpoints.
type OAuth2API struct {
	server *oidc.AuthorizationServer
	keys   *oidc.KeyProvider
	config api.OpenIDConfiguration
}

// NewOAuth2API creates the handler set.
func NewOAuth2API(server *oidc.AuthorizationServer, keys *oidc.KeyProvider, issuer string, allowPlainPKCE bool) *OAuth2API {
	return &OAuth2API{
		server: server,
		keys:   keys,
		config: oidc.DiscoveryDocument(issuer, allowPlainPKCE),
	}
}

// RegisterRoutes attaches the protocol endpoints to the Echo instance.
func (a *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.GET("/oauth2/authorize", a.AuthorizeHandler)
	e.POST("/oauth2/token", a.TokenHandler)
	e.GET("/.well-known/jwks.json", a.JWKSHandler)
	e.GET("/.well-known/openid-configuration", a.DiscoveryHandler)
}

// AuthorizeHandler implements the authorize endpoint. On success it issues a
// 302 to the redirect URI with code, state and iss; on failure it renders the
// protocol error as JSON rather than redirecting, since the redirect URI is
// not trusted until validated.
func (a *OAuth2API) AuthorizeHandler(c echo.Context) error {
	req := oidc.AuthorizeRequest{
		ClientID:            c.QueryParam("client_id"),
		RedirectURI:         c.QueryParam("redirect_uri"),
		Scopes:              splitScopes(c.QueryParam("scope")),
		State:               c.QueryParam("state"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
		Nonce:               c.QueryParam("nonce"),
		AccountID:           c.Request().Header.Get(AccountHeader),
	}

	result, err := a.server.Authorize(c.Request().Context(), req)
	if err != nil {
		return a.renderError(c, err, req.State)
	}

	// The URI passed validation against the registered set, but parse
	// properly anyway so existing query components and fragments survive.
	target, err := url.Parse(result.RedirectURI)
	if err != nil {
		return a.renderError(c, serrors.NewServerError("registered redirect URI is unusable"), req.State)
	}
	q := target.Query()
	q.Set("code", result.Code)
	q.Set("iss", result.Issuer)
	if result.State != "" {
		q.Set("state", result.State)
	}
	target.RawQuery = q.Encode()

	return c.Redirect(http.StatusFound, target.String())
}

// TokenHandler implements the token endpoint. Parameters arrive as form
// values per RFC 6749 §4.1.3.
func (a *OAuth2API) TokenHandler(c echo.Context) error {
	req := oidc.TokenRequest{
		GrantType:    c.FormValue("grant_type"),
		ClientID:     c.FormValue("client_id"),
		ClientSecret: c.FormValue("client_secret"),
		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		CodeVerifier: c.FormValue("code_verifier"),
		RefreshToken: c.FormValue("refresh_token"),
		Scopes:       splitScopes(c.FormValue("scope")),
	}

	if req.GrantType == api.GrantTypeExternal {
		req.External = &domain.ExternalUserInfo{
			Provider:       c.FormValue("provider"),
			ExternalUserID: c.FormValue("external_user_id"),
			Email:          c.FormValue("email"),
			Name:           c.FormValue("name"),
		}
	}

	resp, err := a.server.Token(c.Request().Context(), req)
	if err != nil {
		return a.renderError(c, err, "")
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().Header().Set("Pragma", "no-cache")
	return c.JSON(http.StatusOK, resp)
}

// JWKSHandler serves the published verification keys.
func (a *OAuth2API) JWKSHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, a.keys.JWKS())
}

// DiscoveryHandler serves the OpenID Connect discovery document.
func (a *OAuth2API) DiscoveryHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, a.config)
}

func (a *OAuth2API) renderError(c echo.Context, err error, state string) error {
	oauthErr := &serrors.OAuth2Error{Code: serrors.ServerError, Description: "internal error"}
	if e, ok := err.(*serrors.OAuth2Error); ok { //nolint:errorlint
		oauthErr = e
	}
	if state != "" {
		oauthErr = &serrors.OAuth2Error{
			Code:        oauthErr.Code,
			Description: oauthErr.Description,
			URI:         oauthErr.URI,
			State:       state,
		}
	}

	status := http.StatusBadRequest
	switch oauthErr.Code {
	case serrors.InvalidClient:
		status = http.StatusUnauthorized
	case serrors.AccessDenied:
		status = http.StatusForbidden
	case serrors.ServerError:
		status = http.StatusInternalServerError
	}
	return c.JSON(status, oauthErr)
}

func splitScopes(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}
