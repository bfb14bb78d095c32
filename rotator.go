package oidc

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/velia-dev/oidc/api"
	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
	"github.com/velia-dev/oidc/internal/metrics"
)

// RefreshTokenRotator implements one-time-use refresh token rotation with
// family revocation on detected reuse.
type RefreshTokenRotator struct {
	store  domain.RefreshTokenStore
	issuer *TokenIssuer
}

// NewRefreshTokenRotator creates a rotator over the given store and issuer.
func NewRefreshTokenRotator(store domain.RefreshTokenStore, issuer *TokenIssuer) *RefreshTokenRotator {
	return &RefreshTokenRotator{store: store, issuer: issuer}
}

// Redeem exchanges a refresh token for a new token set in the same family,
// marking the presented token used. The token must have been issued to
// clientID; RFC 6749 §6 forbids honoring it for any other client. Presenting
// an already-used token is a replay signal: the whole family is revoked and
// the caller gets invalid_grant. Reuse is not an error to fix, it is the
// theft-detection mechanism working as intended.
func (r *RefreshTokenRotator) Redeem(ctx context.Context, refreshToken, clientID string) (*api.TokenResponse, error) {
	record, err := r.store.Consume(ctx, refreshToken)
	switch {
	case err == nil:
		// fall through to issuance
	case errors.Is(err, serrors.ErrRefreshTokenUsed):
		log.Warn().
			Str("family_id", record.FamilyID).
			Str("client_id", record.ClientID).
			Msg("refresh token reuse detected, revoking token family")
		if revokeErr := r.store.RevokeFamily(ctx, record.FamilyID); revokeErr != nil {
			log.Error().Err(revokeErr).
				Str("family_id", record.FamilyID).
				Msg("failed to revoke refresh token family")
		}
		metrics.FamiliesRevokedTotal.Inc()
		return nil, serrors.NewInvalidGrant("refresh token is no longer valid")
	case errors.Is(err, serrors.ErrRefreshTokenNotFound),
		errors.Is(err, serrors.ErrRefreshTokenRevoked):
		return nil, serrors.NewInvalidGrant("refresh token is no longer valid")
	default:
		log.Error().Err(err).Msg("refresh token store failure")
		return nil, serrors.NewServerError("failed to redeem refresh token")
	}

	if record.ClientID != clientID {
		// The token is already consumed; like the code path, a failed
		// exchange must not leave it replayable.
		log.Warn().
			Str("client_id", clientID).
			Str("owner_client_id", record.ClientID).
			Msg("refresh token presented by a different client")
		return nil, serrors.NewInvalidGrant("refresh token was issued to another client")
	}

	resp, err := r.issuer.IssueTokenSet(ctx, record.AccountID, record.ClientID, record.Scopes, "", record.FamilyID)
	if err != nil {
		// The presented token is already consumed; the client must
		// re-authorize rather than retry with it.
		log.Error().Err(err).Str("family_id", record.FamilyID).Msg("token issuance failed after rotation")
		return nil, serrors.NewServerError("failed to issue tokens")
	}

	metrics.TokensRotatedTotal.Inc()
	return resp, nil
}
