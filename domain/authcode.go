package domain

import "time"

// AuthorizationCode is the ephemeral record behind an OAuth 2.0 authorization
// code. It exists from the authorization decision until first redemption or
// expiry, whichever comes first.
type AuthorizationCode struct {
	Code        string    `bson:"_id"          json:"code"`
	ClientID    string    `bson:"client_id"    json:"client_id"`
	AccountID   string    `bson:"account_id"   json:"account_id"`
	RedirectURI string    `bson:"redirect_uri" json:"redirect_uri"`
	Scopes      []string  `bson:"scopes"       json:"scopes"`
	CreatedAt   time.Time `bson:"created_at"   json:"created_at"`
	ExpiresAt   time.Time `bson:"expires_at"   json:"expires_at"`

	// PKCE binding, absent for confidential clients on the legacy flow.
	CodeChallenge       string `bson:"code_challenge,omitempty"        json:"code_challenge,omitempty"`
	CodeChallengeMethod string `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`

	// Nonce is echoed into the ID token when present.
	Nonce string `bson:"nonce,omitempty" json:"nonce,omitempty"`
}

// Expired reports whether the code is past its lifetime at the given instant.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
