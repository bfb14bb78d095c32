package oidc

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/velia-dev/oidc/api"
	"github.com/velia-dev/oidc/domain"
	"github.com/velia-dev/oidc/internal/metrics"
)

// ScopeOpenID triggers ID token issuance.
const ScopeOpenID = "openid"

// TokenIssuer builds and signs access and ID tokens and creates the opaque
// refresh-token record backing each grant.
type TokenIssuer struct {
	keys          *KeyProvider
	refreshTokens domain.RefreshTokenStore
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	onboardingTTL time.Duration
}

// NewTokenIssuer creates a TokenIssuer. The lifetimes are tunables, not
// protocol constants; see config.Config for the defaults.
func NewTokenIssuer(
	keys *KeyProvider,
	refreshTokens domain.RefreshTokenStore,
	issuer string,
	accessTTL, refreshTTL, onboardingTTL time.Duration,
) *TokenIssuer {
	return &TokenIssuer{
		keys:          keys,
		refreshTokens: refreshTokens,
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		onboardingTTL: onboardingTTL,
	}
}

// IssueTokenSet creates a signed access token, an ID token when the grant
// carries the openid scope, and a fresh opaque refresh token. An empty
// familyID starts a new token family (first issuance of a grant); the
// rotator passes the existing familyID through on rotation.
func (t *TokenIssuer) IssueTokenSet(
	ctx context.Context,
	accountID, clientID string,
	scopes []string,
	nonce, familyID string,
) (*api.TokenResponse, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(t.accessTTL)

	accessClaims := jwt.MapClaims{
		"iss":   t.issuer,
		"sub":   accountID,
		"aud":   jwt.ClaimStrings{clientID},
		"scope": strings.Join(scopes, " "),
		"iat":   jwt.NewNumericDate(now).Unix(),
		"nbf":   jwt.NewNumericDate(now).Unix(),
		"exp":   jwt.NewNumericDate(expiresAt).Unix(),
		"jti":   uuid.NewString(),
	}
	accessToken, err := t.keys.Sign(accessClaims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	var idToken string
	if slices.Contains(scopes, ScopeOpenID) {
		idClaims := jwt.MapClaims{
			"iss": t.issuer,
			"sub": accountID,
			"aud": jwt.ClaimStrings{clientID},
			"iat": jwt.NewNumericDate(now).Unix(),
			"exp": jwt.NewNumericDate(expiresAt).Unix(),
		}
		if nonce != "" {
			idClaims["nonce"] = nonce
		}
		idToken, err = t.keys.Sign(idClaims)
		if err != nil {
			return nil, fmt.Errorf("failed to sign ID token: %w", err)
		}
	}

	refreshValue, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	if familyID == "" {
		familyID = uuid.NewString()
	}
	record := &domain.RefreshToken{
		ID:        refreshValue,
		FamilyID:  familyID,
		AccountID: accountID,
		ClientID:  clientID,
		Scopes:    scopes,
		CreatedAt: now,
		ExpiresAt: now.Add(t.refreshTTL),
	}
	if err := t.refreshTokens.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	metrics.TokenSetsIssuedTotal.Inc()

	return &api.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(t.accessTTL.Seconds()),
		RefreshToken: refreshValue,
		Scope:        strings.Join(scopes, " "),
		IDToken:      idToken,
	}, nil
}

// IssueOnboardingToken signs a short-lived token handed out when a federated
// login provisioned a brand-new account, signaling the caller to route the
// user into profile completion.
func (t *TokenIssuer) IssueOnboardingToken(accountID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss":     t.issuer,
		"sub":     accountID,
		"purpose": "onboarding",
		"iat":     jwt.NewNumericDate(now).Unix(),
		"exp":     jwt.NewNumericDate(now.Add(t.onboardingTTL)).Unix(),
		"jti":     uuid.NewString(),
	}
	signed, err := t.keys.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign onboarding token: %w", err)
	}
	return signed, nil
}
