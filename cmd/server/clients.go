package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

// clientRecord is the on-disk shape of a registered client. It exists
// because domain.ClientInfo hides the secret hash from JSON output; the file
// format needs to carry it in.
type clientRecord struct {
	ClientID      string   `json:"client_id"`
	RedirectURIs  []string `json:"redirect_uris"`
	Public        bool     `json:"public"`
	SecretHash    string   `json:"secret_hash,omitempty"`
	AllowedScopes []string `json:"allowed_scopes"`
}

// fileClientRegistry serves client metadata loaded once from a JSON file.
// Dynamic client registration is out of scope; restarts pick up edits.
type fileClientRegistry struct {
	clients map[string]*domain.ClientInfo
}

func loadClientRegistry(path string) (*fileClientRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clients file: %w", err)
	}

	var list []clientRecord
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to parse clients file: %w", err)
	}

	clients := make(map[string]*domain.ClientInfo, len(list))
	for i, rec := range list {
		if rec.ClientID == "" {
			return nil, fmt.Errorf("client entry %d has no client_id", i)
		}
		if !rec.Public && rec.SecretHash == "" {
			return nil, fmt.Errorf("confidential client %q has no secret_hash", rec.ClientID)
		}
		clients[rec.ClientID] = &domain.ClientInfo{
			ClientID:      rec.ClientID,
			RedirectURIs:  rec.RedirectURIs,
			Public:        rec.Public,
			SecretHash:    rec.SecretHash,
			AllowedScopes: rec.AllowedScopes,
		}
	}
	return &fileClientRegistry{clients: clients}, nil
}

func (r *fileClientRegistry) Lookup(_ context.Context, clientID string) (*domain.ClientInfo, error) {
	cli, ok := r.clients[clientID]
	if !ok {
		return nil, serrors.ErrClientNotFound
	}
	return cli, nil
}

// memoryAccountStore is a development account directory. Provision mints a
// fresh account id; Exists answers for anything it minted.
type memoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.ExternalUserInfo
}

func newMemoryAccountStore() *memoryAccountStore {
	return &memoryAccountStore{accounts: make(map[string]domain.ExternalUserInfo)}
}

func (s *memoryAccountStore) Exists(_ context.Context, accountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[accountID]
	return ok, nil
}

func (s *memoryAccountStore) Provision(_ context.Context, info domain.ExternalUserInfo) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.accounts[id] = info
	return id, nil
}
