package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/velia-dev/oidc/api"
)

// KeyProvider owns the process-lifetime RSA signing key pair. It is
// immutable after construction: load once, never reload. Rotation is a
// deliberate non-feature; the kid header keeps room for it.
type KeyProvider struct {
	key   *rsa.PrivateKey
	keyID string
}

// NewKeyProvider parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
// It fails fast on missing or unusable key material so a misconfigured
// server never starts issuing tokens.
func NewKeyProvider(pemBytes []byte) (*KeyProvider, error) {
	if len(pemBytes) == 0 {
		return nil, errors.New("no signing key material configured")
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("signing key is not valid PEM")
	}

	var key *rsa.PrivateKey
	if parsed, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = parsed
	} else {
		parsedAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}
		rsaKey, ok := parsedAny.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("signing key is not an RSA key")
		}
		key = rsaKey
	}

	return &KeyProvider{key: key, keyID: uuid.NewString()}, nil
}

// GenerateKeyProvider creates a fresh 2048-bit key pair. Intended for
// development and tests; production deployments load a persistent key via
// NewKeyProvider so issued tokens survive restarts.
func GenerateKeyProvider() (*KeyProvider, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &KeyProvider{key: key, keyID: uuid.NewString()}, nil
}

// Sign produces a compact RS256 JWT carrying the given claims. Pure CPU
// work, no I/O.
func (p *KeyProvider) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.keyID

	signed, err := token.SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// KeyID returns the identifier placed in the kid header of signed tokens.
func (p *KeyProvider) KeyID() string {
	return p.keyID
}

// PublicKey returns the verification half of the key pair.
func (p *KeyProvider) PublicKey() *rsa.PublicKey {
	return &p.key.PublicKey
}

// JWKS returns the published key set for downstream resource servers.
func (p *KeyProvider) JWKS() api.JSONWebKeySet {
	pub := &p.key.PublicKey
	return api.JSONWebKeySet{
		Keys: []api.JSONWebKey{
			{
				Kid: p.keyID,
				Kty: "RSA",
				Alg: "RS256",
				Use: "sig",
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
}
