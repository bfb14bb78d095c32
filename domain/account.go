package domain

import (
	"context"
	"time"
)

// ExternalUserInfo describes an identity asserted by an upstream provider.
// It is passed through to the linker and never persisted by this core.
type ExternalUserInfo struct {
	Provider       string `json:"provider"`
	ExternalUserID string `json:"external_user_id"`
	Email          string `json:"email,omitempty"`
	Name           string `json:"name,omitempty"`
}

// FederatedIdentity links a local account to an external provider identity.
type FederatedIdentity struct {
	ID             string    `bson:"_id"              json:"id"`
	AccountID      string    `bson:"account_id"       json:"account_id"`
	Provider       string    `bson:"provider"         json:"provider"`
	ProviderUserID string    `bson:"provider_user_id" json:"provider_user_id"`
	Email          string    `bson:"email,omitempty"  json:"email,omitempty"`
	CreatedAt      time.Time `bson:"created_at"       json:"created_at"`
}

// AccountStore is the external account subsystem, consumed as a collaborator.
// Provision must be idempotent on the collaborator side; the linker re-checks
// the link store before calling it but cannot retry safely without that
// guarantee.
type AccountStore interface {
	Exists(ctx context.Context, accountID string) (bool, error)
	Provision(ctx context.Context, info ExternalUserInfo) (accountID string, err error)
}

// FederatedIdentityRepository persists provider→account links.
// FindByProviderUser returns errors.ErrFederatedIdentityNotFound when no link
// exists.
type FederatedIdentityRepository interface {
	FindByProviderUser(ctx context.Context, provider, providerUserID string) (*FederatedIdentity, error)
	Save(ctx context.Context, identity *FederatedIdentity) error
}
