package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

// AuthCodeStore is the in-memory AuthorizationCodeStore, backed by ttlcache.
// GetAndDelete gives the atomic check-and-delete the redeem contract needs;
// the cache's own TTL handling covers expiry cleanup.
type AuthCodeStore struct {
	codes *ttlcache.Cache[string, *domain.AuthorizationCode]
}

// NewAuthCodeStore creates a store with background expiry cleanup running.
func NewAuthCodeStore() *AuthCodeStore {
	codes := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *domain.AuthorizationCode](),
	)
	go codes.Start()

	return &AuthCodeStore{codes: codes}
}

// Save implements domain.AuthorizationCodeStore.
func (s *AuthCodeStore) Save(_ context.Context, code *domain.AuthorizationCode) error {
	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		return errors.New("authorization code is already expired")
	}
	s.codes.Set(code.Code, code, ttl)
	return nil
}

// Redeem implements domain.AuthorizationCodeStore. Exactly one concurrent
// caller observes the record; ttlcache treats expired items as absent, and
// the explicit expiry check covers the window between expiry and cleanup.
func (s *AuthCodeStore) Redeem(_ context.Context, code string) (*domain.AuthorizationCode, error) {
	item, present := s.codes.GetAndDelete(code)
	if !present || item == nil {
		return nil, serrors.ErrCodeNotFound
	}

	info := item.Value()
	if info.Expired(time.Now().UTC()) {
		return nil, serrors.ErrCodeNotFound
	}
	return info, nil
}

// Count reports the number of pending codes, for tests and introspection.
func (s *AuthCodeStore) Count() int {
	return s.codes.Len()
}

// Close stops the cleanup goroutine.
func (s *AuthCodeStore) Close() error {
	s.codes.Stop()
	return nil
}
