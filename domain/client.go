package domain

import "context"

// ClientInfo is the read-only view of a registered client application.
// The registry owning this data is an external collaborator; this core never
// writes to it.
type ClientInfo struct {
	ClientID      string   `json:"client_id"`
	RedirectURIs  []string `json:"redirect_uris"`
	Public        bool     `json:"public"`
	SecretHash    string   `json:"-"`
	AllowedScopes []string `json:"allowed_scopes"`
}

// ClientRegistry resolves client identifiers. Implementations return
// errors.ErrClientNotFound for unknown clients; any other error is treated as
// a collaborator outage.
type ClientRegistry interface {
	Lookup(ctx context.Context, clientID string) (*ClientInfo, error)
}
