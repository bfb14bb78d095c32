package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyPKCE_S256(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	assert.True(t, VerifyPKCE(s256Challenge(verifier), PKCEMethodS256, verifier))
	assert.False(t, VerifyPKCE(s256Challenge(verifier), PKCEMethodS256, "wrong-verifier"))
	assert.False(t, VerifyPKCE(s256Challenge(verifier), PKCEMethodS256, ""))
}

func TestVerifyPKCE_Plain(t *testing.T) {
	assert.True(t, VerifyPKCE("some-verifier", PKCEMethodPlain, "some-verifier"))
	assert.False(t, VerifyPKCE("some-verifier", PKCEMethodPlain, "other-verifier"))

	// Empty method defaults to plain per RFC 7636 §4.3.
	assert.True(t, VerifyPKCE("some-verifier", "", "some-verifier"))
}

func TestVerifyPKCE_Rejections(t *testing.T) {
	assert.False(t, VerifyPKCE("", PKCEMethodS256, "verifier"), "empty challenge never verifies")
	assert.False(t, VerifyPKCE("challenge", "S512", "challenge"), "unknown method never verifies")

	// A plain match must not satisfy an S256 challenge.
	assert.False(t, VerifyPKCE("challenge", PKCEMethodS256, "challenge"))
}
