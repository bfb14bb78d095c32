package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

// consumeScript atomically reads a refresh-token record and marks it used.
// Return shape: {status, payload} where status is 0 on success, 1 when the
// record was already used, 2 when revoked. Running server-side keeps Consume
// linearizable per key even with many service replicas.
var consumeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return false
end
local rec = cjson.decode(raw)
if rec['revoked'] then
  return {2, raw}
end
if rec['used'] then
  return {1, raw}
end
rec['used'] = true
redis.call('SET', KEYS[1], cjson.encode(rec), 'KEEPTTL')
return {0, raw}
`)

// RefreshTokenStore is the Redis-backed RefreshTokenStore.
type RefreshTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRefreshTokenStore creates a store using the given client.
func NewRefreshTokenStore(client *redis.Client, prefix string) *RefreshTokenStore {
	return &RefreshTokenStore{client: client, prefix: prefix}
}

func (s *RefreshTokenStore) key(id string) string {
	return fmt.Sprintf("%s:refresh:%s", s.prefix, id)
}

func (s *RefreshTokenStore) familyKey(familyID string) string {
	return fmt.Sprintf("%s:refresh-family:%s", s.prefix, familyID)
}

// Save implements domain.RefreshTokenStore. The family set shares the
// record TTL so revocation can always find its members while any of them is
// still live.
func (s *RefreshTokenStore) Save(ctx context.Context, token *domain.RefreshToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return errors.New("refresh token is already expired")
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(token.ID), payload, ttl)
	pipe.SAdd(ctx, s.familyKey(token.FamilyID), token.ID)
	pipe.Expire(ctx, s.familyKey(token.FamilyID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// Consume implements domain.RefreshTokenStore.
func (s *RefreshTokenStore) Consume(ctx context.Context, id string) (*domain.RefreshToken, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(id)}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, serrors.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, fmt.Errorf("unexpected consume script result: %v", res)
	}
	status, _ := parts[0].(int64)
	raw, _ := parts[1].(string)

	var token domain.RefreshToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}
	if token.Expired(time.Now().UTC()) {
		return nil, serrors.ErrRefreshTokenNotFound
	}

	switch status {
	case 0:
		token.Used = true
		return &token, nil
	case 1:
		return &token, serrors.ErrRefreshTokenUsed
	default:
		return &token, serrors.ErrRefreshTokenRevoked
	}
}

// RevokeFamily implements domain.RefreshTokenStore. Per-member updates are
// not atomic as a group; only per-key atomicity is required, and a member
// consumed mid-revocation is caught by its own reuse check.
func (s *RefreshTokenStore) RevokeFamily(ctx context.Context, familyID string) error {
	ids, err := s.client.SMembers(ctx, s.familyKey(familyID)).Result()
	if err != nil {
		return fmt.Errorf("failed to load refresh token family: %w", err)
	}

	for _, id := range ids {
		raw, err := s.client.Get(ctx, s.key(id)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("failed to load family member: %w", err)
		}

		var token domain.RefreshToken
		if err := json.Unmarshal([]byte(raw), &token); err != nil {
			log.Warn().Err(err).Str("token_id", id).Msg("skipping undecodable refresh token during family revocation")
			continue
		}
		token.Revoked = true

		payload, err := json.Marshal(&token)
		if err != nil {
			return fmt.Errorf("failed to marshal refresh token: %w", err)
		}
		if err := s.client.Set(ctx, s.key(id), payload, redis.KeepTTL).Err(); err != nil {
			return fmt.Errorf("failed to mark family member revoked: %w", err)
		}
	}
	return nil
}
