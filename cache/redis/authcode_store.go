package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

// AuthCodeStore is the Redis-backed AuthorizationCodeStore. Redemption uses
// GETDEL, so the check-and-delete is a single server-side operation and the
// at-most-once guarantee holds across replicas of this service.
type AuthCodeStore struct {
	client *redis.Client
	prefix string
}

// NewAuthCodeStore creates a store using the given client. The prefix keeps
// keys of co-hosted deployments apart.
func NewAuthCodeStore(client *redis.Client, prefix string) *AuthCodeStore {
	return &AuthCodeStore{client: client, prefix: prefix}
}

func (s *AuthCodeStore) key(code string) string {
	return fmt.Sprintf("%s:authcode:%s", s.prefix, code)
}

// Save implements domain.AuthorizationCodeStore. NX guards against the
// (astronomically unlikely) duplicate code value.
func (s *AuthCodeStore) Save(ctx context.Context, code *domain.AuthorizationCode) error {
	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		return errors.New("authorization code is already expired")
	}

	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(code.Code), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store authorization code: %w", err)
	}
	if !ok {
		return errors.New("authorization code collision")
	}
	return nil
}

// Redeem implements domain.AuthorizationCodeStore.
func (s *AuthCodeStore) Redeem(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	raw, err := s.client.GetDel(ctx, s.key(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, serrors.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to redeem authorization code: %w", err)
	}

	var info domain.AuthorizationCode
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}
	if info.Expired(time.Now().UTC()) {
		return nil, serrors.ErrCodeNotFound
	}
	return &info, nil
}
