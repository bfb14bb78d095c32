package oidc

import "github.com/velia-dev/oidc/api"

// DiscoveryDocument builds the OpenID Provider configuration advertising the
// endpoints and capabilities of this server.
func DiscoveryDocument(issuer string, allowPlainPKCE bool) api.OpenIDConfiguration {
	methods := []string{PKCEMethodS256}
	if allowPlainPKCE {
		methods = append(methods, PKCEMethodPlain)
	}

	return api.OpenIDConfiguration{
		Issuer:                issuer,
		AuthorizationEndpoint: issuer + "/oauth2/authorize",
		TokenEndpoint:         issuer + "/oauth2/token",
		JwksURI:               issuer + "/.well-known/jwks.json",
		ScopesSupported:       []string{"openid", "profile", "email", "offline_access"},
		ResponseTypesSupported: []string{
			"code",
		},
		GrantTypesSupported: []string{
			api.GrantTypeAuthorizationCode,
			api.GrantTypeRefreshToken,
			api.GrantTypeExternal,
		},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "none"},
		CodeChallengeMethodsSupported:     methods,
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
	}
}
