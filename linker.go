package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
	"github.com/velia-dev/oidc/internal/metrics"
)

// ExternalIdentityLinker maps (provider, external user id) pairs to local
// account ids, provisioning a new account through the AccountStore
// collaborator when no link exists yet.
type ExternalIdentityLinker struct {
	accounts domain.AccountStore
	links    domain.FederatedIdentityRepository
}

// NewExternalIdentityLinker creates a linker over the given collaborators.
func NewExternalIdentityLinker(
	accounts domain.AccountStore,
	links domain.FederatedIdentityRepository,
) *ExternalIdentityLinker {
	return &ExternalIdentityLinker{accounts: accounts, links: links}
}

// ResolveAccount returns the local account id for an external identity,
// provisioning one on first contact. The second return value reports whether
// provisioning happened, which drives the onboarding_token in the response.
func (l *ExternalIdentityLinker) ResolveAccount(
	ctx context.Context, info domain.ExternalUserInfo,
) (accountID string, provisioned bool, err error) {
	if info.Provider == "" || info.ExternalUserID == "" {
		return "", false, serrors.NewInvalidRequest("provider and external user id are required")
	}

	link, err := l.links.FindByProviderUser(ctx, info.Provider, info.ExternalUserID)
	if err == nil {
		return link.AccountID, false, nil
	}
	if !errors.Is(err, serrors.ErrFederatedIdentityNotFound) {
		return "", false, fmt.Errorf("federated identity lookup failed: %w", err)
	}

	accountID, err = l.accounts.Provision(ctx, info)
	if err != nil {
		return "", false, fmt.Errorf("account provisioning failed: %w", err)
	}

	now := time.Now().UTC()
	link = &domain.FederatedIdentity{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Provider:       info.Provider,
		ProviderUserID: info.ExternalUserID,
		Email:          info.Email,
		CreatedAt:      now,
	}
	if err := l.links.Save(ctx, link); err != nil {
		// The account exists but the link does not; a retry will provision
		// again unless the AccountStore honors its idempotency contract.
		return "", false, fmt.Errorf("failed to record federated identity link: %w", err)
	}

	log.Info().
		Str("provider", info.Provider).
		Str("account_id", accountID).
		Msg("provisioned local account for federated identity")
	metrics.AccountsProvisionedTotal.Inc()

	return accountID, true, nil
}
