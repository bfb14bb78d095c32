package domain

import "time"

// RefreshToken is the server-side record behind an opaque refresh token.
// The token value itself is the record key; it is never a signed JWT so that
// revocation stays a pure server-side operation.
type RefreshToken struct {
	ID        string    `bson:"_id"        json:"id"`
	FamilyID  string    `bson:"family_id"  json:"family_id"`
	AccountID string    `bson:"account_id" json:"account_id"`
	ClientID  string    `bson:"client_id"  json:"client_id"`
	Scopes    []string  `bson:"scopes"     json:"scopes"`
	Used      bool      `bson:"used"       json:"used"`
	Revoked   bool      `bson:"revoked"    json:"revoked"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}

// Expired reports whether the record is past its lifetime at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
