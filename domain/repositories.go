package domain

import "context"

// AuthorizationCodeStore holds pending authorization codes.
//
// Redeem is the safety-critical operation: it must be linearizable per code.
// Under concurrent redemption of the same code exactly one caller receives
// the record; every other caller receives errors.ErrCodeNotFound. Expiry is
// checked before the delete, and expired entries behave as absent regardless
// of when they are physically removed.
type AuthorizationCodeStore interface {
	Save(ctx context.Context, code *AuthorizationCode) error
	Redeem(ctx context.Context, code string) (*AuthorizationCode, error)
}

// RefreshTokenStore holds refresh-token records.
//
// Consume atomically marks a record used. Exactly one concurrent caller wins;
// losers receive errors.ErrRefreshTokenUsed together with the record, so the
// rotator can revoke the family. Absent or expired records yield
// errors.ErrRefreshTokenNotFound, records of an already revoked family yield
// errors.ErrRefreshTokenRevoked.
type RefreshTokenStore interface {
	Save(ctx context.Context, token *RefreshToken) error
	Consume(ctx context.Context, id string) (*RefreshToken, error)
	RevokeFamily(ctx context.Context, familyID string) error
}
