package errors

import (
	"errors"
	"fmt"
)

// OAuth2Error is the wire shape of a protocol-level failure, per RFC 6749 §5.2.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes.
const (
	InvalidRequest       = "invalid_request"
	InvalidClient        = "invalid_client"
	InvalidGrant         = "invalid_grant"
	UnauthorizedClient   = "unauthorized_client"
	UnsupportedGrantType = "unsupported_grant_type"
	InvalidScope         = "invalid_scope"
	AccessDenied         = "access_denied"
	ServerError          = "server_error"
)

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: UnauthorizedClient, Description: description}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "the authorization grant type is not supported",
	}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidScope, Description: description}
}

func NewAccessDenied(description string) *OAuth2Error {
	return &OAuth2Error{Code: AccessDenied, Description: description}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

// NewPKCERequired is returned when a public client starts the code flow
// without a code challenge.
func NewPKCERequired() *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: "PKCE is required for this client",
	}
}

// Sentinel errors used by stores and collaborators to signal well-known
// conditions. The orchestrator maps them to the codes above; they never
// reach a client verbatim.
var (
	ErrClientNotFound            = errors.New("client not found")
	ErrCodeNotFound              = errors.New("authorization code not found or expired")
	ErrRefreshTokenNotFound      = errors.New("refresh token not found or expired")
	ErrRefreshTokenUsed          = errors.New("refresh token already used")
	ErrRefreshTokenRevoked       = errors.New("refresh token revoked")
	ErrFederatedIdentityNotFound = errors.New("federated identity not found")
)
