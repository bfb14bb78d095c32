package oidc

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE code challenge methods per RFC 7636.
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// VerifyPKCE checks a code verifier against a stored challenge. The method
// must be the one declared at authorization time; an empty method means
// plain, per RFC 7636 §4.3. Comparisons are constant-time. The caller maps
// a false result to invalid_grant.
func VerifyPKCE(challenge, method, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}

	switch method {
	case PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
	case PKCEMethodPlain, "":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	default:
		return false
	}
}
