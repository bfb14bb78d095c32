package oidc

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// newOpaqueToken returns a URL-safe random string with 256 bits of entropy,
// used for authorization codes and refresh-token values.
func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
