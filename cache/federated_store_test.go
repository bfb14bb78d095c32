package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

func TestFederatedIdentityStore(t *testing.T) {
	store := NewFederatedIdentityStore()
	ctx := context.Background()

	_, err := store.FindByProviderUser(ctx, "google", "goog-1")
	assert.ErrorIs(t, err, serrors.ErrFederatedIdentityNotFound)

	link := &domain.FederatedIdentity{
		ID:             "link-1",
		AccountID:      "acct-1",
		Provider:       "google",
		ProviderUserID: "goog-1",
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, link))

	found, err := store.FindByProviderUser(ctx, "google", "goog-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", found.AccountID)

	// Provider is part of the key.
	_, err = store.FindByProviderUser(ctx, "github", "goog-1")
	assert.ErrorIs(t, err, serrors.ErrFederatedIdentityNotFound)
}
