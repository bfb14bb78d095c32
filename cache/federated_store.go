package cache

import (
	"context"
	"sync"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

// FederatedIdentityStore is the in-memory FederatedIdentityRepository.
// Links are tiny and unbounded growth is the collaborator's problem in
// production; the persistent backends cover that.
type FederatedIdentityStore struct {
	mu    sync.RWMutex
	links map[string]*domain.FederatedIdentity // provider "\x00" providerUserID
}

// NewFederatedIdentityStore creates an empty link store.
func NewFederatedIdentityStore() *FederatedIdentityStore {
	return &FederatedIdentityStore{links: make(map[string]*domain.FederatedIdentity)}
}

func linkKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

// FindByProviderUser implements domain.FederatedIdentityRepository.
func (s *FederatedIdentityStore) FindByProviderUser(
	_ context.Context, provider, providerUserID string,
) (*domain.FederatedIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[linkKey(provider, providerUserID)]
	if !ok {
		return nil, serrors.ErrFederatedIdentityNotFound
	}
	copied := *link
	return &copied, nil
}

// Save implements domain.FederatedIdentityRepository.
func (s *FederatedIdentityStore) Save(_ context.Context, identity *domain.FederatedIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *identity
	s.links[linkKey(identity.Provider, identity.ProviderUserID)] = &copied
	return nil
}
