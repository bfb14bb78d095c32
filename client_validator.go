package oidc

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

// ClientValidator checks authorization and token requests against the
// external client registry.
type ClientValidator struct {
	registry domain.ClientRegistry
}

// NewClientValidator creates a validator over the given registry.
func NewClientValidator(registry domain.ClientRegistry) *ClientValidator {
	return &ClientValidator{registry: registry}
}

func (v *ClientValidator) lookup(ctx context.Context, clientID string) (*domain.ClientInfo, error) {
	if clientID == "" {
		return nil, serrors.NewInvalidRequest("client_id is required")
	}

	cli, err := v.registry.Lookup(ctx, clientID)
	if err != nil {
		if errors.Is(err, serrors.ErrClientNotFound) {
			return nil, serrors.NewInvalidClient("unknown client")
		}
		log.Error().Err(err).Str("client_id", clientID).Msg("client registry lookup failed")
		return nil, serrors.NewServerError("client registry unavailable")
	}
	return cli, nil
}

// ValidateAuthorizationRequest validates the front-channel request: the
// client must exist, the redirect URI must be an exact member of the
// registered set (no prefix or normalization matching, which would open a
// redirect hole), and every requested scope must be allowed.
func (v *ClientValidator) ValidateAuthorizationRequest(
	ctx context.Context, clientID, redirectURI string, scopes []string,
) (*domain.ClientInfo, error) {
	cli, err := v.lookup(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if redirectURI == "" || !slices.Contains(cli.RedirectURIs, redirectURI) {
		return nil, serrors.NewInvalidRequest("redirect_uri is not registered for this client")
	}

	for _, scope := range scopes {
		if !slices.Contains(cli.AllowedScopes, scope) {
			return nil, serrors.NewInvalidScope("scope " + scope + " is not allowed for this client")
		}
	}

	return cli, nil
}

// ValidateTokenRequest authenticates the client on the token endpoint.
// Confidential clients must present a secret matching the registered hash;
// public clients present none and rely on PKCE, which is enforced at code
// redemption.
func (v *ClientValidator) ValidateTokenRequest(
	ctx context.Context, clientID, clientSecret string,
) (*domain.ClientInfo, error) {
	cli, err := v.lookup(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if cli.Public {
		return cli, nil
	}

	if clientSecret == "" {
		return nil, serrors.NewInvalidClient("client secret is required")
	}
	if bcrypt.CompareHashAndPassword([]byte(cli.SecretHash), []byte(clientSecret)) != nil {
		return nil, serrors.NewInvalidClient("invalid client credentials")
	}

	return cli, nil
}

// ValidateScopes checks a scope list against the client's allow-list.
func (v *ClientValidator) ValidateScopes(cli *domain.ClientInfo, scopes []string) error {
	for _, scope := range scopes {
		if !slices.Contains(cli.AllowedScopes, scope) {
			return serrors.NewInvalidScope("scope " + scope + " is not allowed for this client")
		}
	}
	return nil
}
