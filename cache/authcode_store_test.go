package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

func newCode(code string, ttl time.Duration) *domain.AuthorizationCode {
	now := time.Now().UTC()
	return &domain.AuthorizationCode{
		Code:      code,
		ClientID:  "spa",
		AccountID: "acct-1",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestAuthCodeStore_SaveAndRedeem(t *testing.T) {
	store := NewAuthCodeStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newCode("code-1", time.Minute)))
	assert.Equal(t, 1, store.Count())

	info, err := store.Redeem(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", info.AccountID)

	_, err = store.Redeem(ctx, "code-1")
	assert.ErrorIs(t, err, serrors.ErrCodeNotFound)
}

func TestAuthCodeStore_UnknownCode(t *testing.T) {
	store := NewAuthCodeStore()
	t.Cleanup(func() { _ = store.Close() })

	_, err := store.Redeem(context.Background(), "never-saved")
	assert.ErrorIs(t, err, serrors.ErrCodeNotFound)
}

func TestAuthCodeStore_RejectsExpiredOnSave(t *testing.T) {
	store := NewAuthCodeStore()
	t.Cleanup(func() { _ = store.Close() })

	err := store.Save(context.Background(), newCode("stale", -time.Second))
	assert.Error(t, err)
}

func TestAuthCodeStore_ExpiredCodeIsAbsent(t *testing.T) {
	store := NewAuthCodeStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newCode("short", 20*time.Millisecond)))
	time.Sleep(50 * time.Millisecond)

	_, err := store.Redeem(ctx, "short")
	assert.ErrorIs(t, err, serrors.ErrCodeNotFound)
}

func TestAuthCodeStore_ConcurrentRedeemSingleWinner(t *testing.T) {
	store := NewAuthCodeStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newCode("contested", time.Minute)))

	const workers = 32
	var wg sync.WaitGroup
	var winners atomic.Int32

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Redeem(ctx, "contested"); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load(), "exactly one redeemer may win")
}
