package oidc

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/velia-dev/oidc/api"
	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
	"github.com/velia-dev/oidc/internal/metrics"
)

// Options are the tunables of the authorization server. Lifetimes are
// configuration, not protocol requirements.
type Options struct {
	Issuer             string
	CodeLifetime       time.Duration
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	OnboardingTokenTTL time.Duration

	// AllowPlainPKCE permits the plain challenge method. The method is
	// weaker than S256; disabling it is a policy choice left to operators.
	AllowPlainPKCE bool
}

// DefaultOptions mirror the upstream service defaults: 5 minute codes,
// 1 hour access tokens, 30 day refresh tokens.
func DefaultOptions(issuer string) Options {
	return Options{
		Issuer:             issuer,
		CodeLifetime:       5 * time.Minute,
		AccessTokenTTL:     time.Hour,
		RefreshTokenTTL:    30 * 24 * time.Hour,
		OnboardingTokenTTL: 10 * time.Minute,
		AllowPlainPKCE:     true,
	}
}

// AuthorizationServer composes the validators, stores and issuers into the
// two protocol endpoints. Every error returned by Authorize and Token is a
// *errors.OAuth2Error; internal faults never leak to clients.
type AuthorizationServer struct {
	clients *ClientValidator
	codes   domain.AuthorizationCodeStore
	issuer  *TokenIssuer
	rotator *RefreshTokenRotator
	linker  *ExternalIdentityLinker
	opts    Options
}

// NewAuthorizationServer wires the core together.
func NewAuthorizationServer(
	clients *ClientValidator,
	codes domain.AuthorizationCodeStore,
	issuer *TokenIssuer,
	rotator *RefreshTokenRotator,
	linker *ExternalIdentityLinker,
	opts Options,
) *AuthorizationServer {
	return &AuthorizationServer{
		clients: clients,
		codes:   codes,
		issuer:  issuer,
		rotator: rotator,
		linker:  linker,
		opts:    opts,
	}
}

// AuthorizeRequest carries the parameters of the authorize endpoint. The
// authenticated account id is an explicit argument; this core reads no
// ambient request state.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	AccountID           string
}

// AuthorizeResult is the payload of the success redirect.
type AuthorizeResult struct {
	Code        string
	State       string
	RedirectURI string
	Issuer      string
}

// Authorize validates the request and issues a single-use authorization
// code bound to the client, redirect URI, scopes and PKCE challenge.
func (s *AuthorizationServer) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.AccountID == "" {
		return nil, serrors.NewAccessDenied("authorization requires an authenticated account")
	}

	cli, err := s.clients.ValidateAuthorizationRequest(ctx, req.ClientID, req.RedirectURI, req.Scopes)
	if err != nil {
		return nil, asOAuthError(err)
	}

	if req.CodeChallenge == "" {
		if cli.Public {
			return nil, serrors.NewPKCERequired()
		}
	} else {
		switch req.CodeChallengeMethod {
		case PKCEMethodS256:
		case PKCEMethodPlain, "":
			if !s.opts.AllowPlainPKCE {
				return nil, serrors.NewInvalidRequest("plain code_challenge_method is not allowed")
			}
		default:
			return nil, serrors.NewInvalidRequest("unsupported code_challenge_method")
		}
	}

	code, err := newOpaqueToken()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate authorization code")
		return nil, serrors.NewServerError("failed to generate authorization code")
	}

	now := time.Now().UTC()
	record := &domain.AuthorizationCode{
		Code:                code,
		ClientID:            cli.ClientID,
		AccountID:           req.AccountID,
		RedirectURI:         req.RedirectURI,
		Scopes:              req.Scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Nonce:               req.Nonce,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.opts.CodeLifetime),
	}
	if err := s.codes.Save(ctx, record); err != nil {
		log.Error().Err(err).Str("client_id", cli.ClientID).Msg("failed to store authorization code")
		return nil, serrors.NewServerError("failed to store authorization code")
	}

	metrics.CodesIssuedTotal.Inc()

	return &AuthorizeResult{
		Code:        code,
		State:       req.State,
		RedirectURI: req.RedirectURI,
		Issuer:      s.opts.Issuer,
	}, nil
}

// TokenRequest carries the parameters of the token endpoint. Grant-specific
// fields are populated per GrantType.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string

	// authorization_code grant
	Code         string
	RedirectURI  string
	CodeVerifier string

	// refresh_token grant
	RefreshToken string

	// external grant
	External *domain.ExternalUserInfo
	Scopes   []string
}

// Token implements the token endpoint for the authorization_code,
// refresh_token and external grant types.
func (s *AuthorizationServer) Token(ctx context.Context, req TokenRequest) (*api.TokenResponse, error) {
	cli, err := s.clients.ValidateTokenRequest(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, asOAuthError(err)
	}

	switch req.GrantType {
	case api.GrantTypeAuthorizationCode:
		return s.exchangeCode(ctx, cli, req)
	case api.GrantTypeRefreshToken:
		if req.RefreshToken == "" {
			return nil, serrors.NewInvalidRequest("refresh_token is required")
		}
		resp, err := s.rotator.Redeem(ctx, req.RefreshToken, cli.ClientID)
		if err != nil {
			return nil, asOAuthError(err)
		}
		return resp, nil
	case api.GrantTypeExternal:
		return s.externalGrant(ctx, cli, req)
	default:
		return nil, serrors.NewUnsupportedGrantType()
	}
}

func (s *AuthorizationServer) exchangeCode(
	ctx context.Context, cli *domain.ClientInfo, req TokenRequest,
) (*api.TokenResponse, error) {
	if req.Code == "" {
		return nil, serrors.NewInvalidRequest("code is required")
	}

	// The code is consumed here regardless of what happens next; a failure
	// further down must not leave a replayable code behind.
	info, err := s.codes.Redeem(ctx, req.Code)
	if err != nil {
		if errors.Is(err, serrors.ErrCodeNotFound) {
			return nil, serrors.NewInvalidGrant("authorization code is invalid or expired")
		}
		log.Error().Err(err).Msg("authorization code store failure")
		return nil, serrors.NewServerError("failed to redeem authorization code")
	}

	if info.ClientID != cli.ClientID {
		return nil, serrors.NewInvalidGrant("authorization code was issued to another client")
	}
	if info.RedirectURI != req.RedirectURI {
		return nil, serrors.NewInvalidGrant("redirect_uri does not match the authorization request")
	}

	if info.CodeChallenge != "" {
		if !VerifyPKCE(info.CodeChallenge, info.CodeChallengeMethod, req.CodeVerifier) {
			return nil, serrors.NewInvalidGrant("PKCE verification failed")
		}
	} else if cli.Public {
		return nil, serrors.NewInvalidGrant("authorization code was issued without PKCE")
	}

	resp, err := s.issuer.IssueTokenSet(ctx, info.AccountID, info.ClientID, info.Scopes, info.Nonce, "")
	if err != nil {
		log.Error().Err(err).Str("client_id", info.ClientID).Msg("token issuance failed; code already consumed")
		return nil, serrors.NewServerError("failed to issue tokens")
	}

	metrics.CodesRedeemedTotal.Inc()
	return resp, nil
}

func (s *AuthorizationServer) externalGrant(
	ctx context.Context, cli *domain.ClientInfo, req TokenRequest,
) (*api.TokenResponse, error) {
	if req.External == nil {
		return nil, serrors.NewInvalidRequest("external identity payload is required")
	}
	if err := s.clients.ValidateScopes(cli, req.Scopes); err != nil {
		return nil, asOAuthError(err)
	}

	accountID, provisioned, err := s.linker.ResolveAccount(ctx, *req.External)
	if err != nil {
		var oauthErr *serrors.OAuth2Error
		if errors.As(err, &oauthErr) {
			return nil, oauthErr
		}
		log.Error().Err(err).Str("provider", req.External.Provider).Msg("federated account resolution failed")
		return nil, serrors.NewServerError("failed to resolve external identity")
	}

	resp, err := s.issuer.IssueTokenSet(ctx, accountID, cli.ClientID, req.Scopes, "", "")
	if err != nil {
		log.Error().Err(err).Str("client_id", cli.ClientID).Msg("token issuance failed for external grant")
		return nil, serrors.NewServerError("failed to issue tokens")
	}

	if provisioned {
		onboarding, err := s.issuer.IssueOnboardingToken(accountID)
		if err != nil {
			log.Error().Err(err).Str("account_id", accountID).Msg("failed to sign onboarding token")
			return nil, serrors.NewServerError("failed to issue tokens")
		}
		resp.OnboardingToken = onboarding
	}

	return resp, nil
}

// asOAuthError guarantees the orchestrator boundary only surfaces protocol
// errors; anything else becomes server_error.
func asOAuthError(err error) *serrors.OAuth2Error {
	var oauthErr *serrors.OAuth2Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return serrors.NewServerError("internal error")
}
