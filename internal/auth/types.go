// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

// Package auth holds the OAuth 2.1 wire types used by MCP clients.
package auth

import "net/http"

// OAuthClientMetadata is RFC 7591 dynamic client registration metadata.
type OAuthClientMetadata struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              *string  `json:"client_name,omitempty"`
	ClientURI               *string  `json:"client_uri,omitempty"`
	Scope                   *string  `json:"scope,omitempty"` // space separated
	Contacts                []string `json:"contacts,omitempty"`
	SoftwareID              *string  `json:"software_id,omitempty"`
	SoftwareVersion         *string  `json:"software_version,omitempty"`
}

// OAuthClientInformation is the credential part of an RFC 7591 registration response.
type OAuthClientInformation struct {
	ClientID              string `json:"client_id"`
	ClientSecret          string `json:"client_secret,omitempty"`
	ClientIDIssuedAt      *int64 `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt *int64 `json:"client_secret_expires_at,omitempty"`
}

// OAuthClientInformationFull is the full registration response.
type OAuthClientInformationFull struct {
	OAuthClientMetadata
	OAuthClientInformation
}

// OAuthProtectedResourceMetadata is RFC 9728 protected resource metadata.
type OAuthProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	JWKSURI                *string  `json:"jwks_uri,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           *string  `json:"resource_name,omitempty"`
	ResourceDocumentation  *string  `json:"resource_documentation,omitempty"`
}

// OAuthTokens is an OAuth 2.1 token response.
type OAuthTokens struct {
	AccessToken  string  `json:"access_token"`
	IDToken      *string `json:"id_token,omitempty"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    *int64  `json:"expires_in,omitempty"` // seconds
	Scope        *string `json:"scope,omitempty"`
	RefreshToken *string `json:"refresh_token,omitempty"`
}

// AuthorizationServerMetadata is implemented by both RFC 8414 and OIDC discovery documents.
type AuthorizationServerMetadata interface {
	GetIssuer() string
	GetAuthorizationEndpoint() string
	GetTokenEndpoint() string
	GetRegistrationEndpoint() string
	GetResponseTypesSupported() []string
	GetGrantTypesSupported() []string
	GetTokenEndpointAuthMethodsSupported() []string
	GetCodeChallengeMethodsSupported() []string
}

// OAuthMetadata is RFC 8414 authorization server metadata.
type OAuthMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
}

func (m *OAuthMetadata) GetIssuer() string                { return m.Issuer }
func (m *OAuthMetadata) GetAuthorizationEndpoint() string { return m.AuthorizationEndpoint }
func (m *OAuthMetadata) GetTokenEndpoint() string         { return m.TokenEndpoint }
func (m *OAuthMetadata) GetRegistrationEndpoint() string  { return m.RegistrationEndpoint }
func (m *OAuthMetadata) GetResponseTypesSupported() []string {
	return m.ResponseTypesSupported
}
func (m *OAuthMetadata) GetGrantTypesSupported() []string { return m.GrantTypesSupported }
func (m *OAuthMetadata) GetTokenEndpointAuthMethodsSupported() []string {
	return m.TokenEndpointAuthMethodsSupported
}
func (m *OAuthMetadata) GetCodeChallengeMethodsSupported() []string {
	return m.CodeChallengeMethodsSupported
}

// OpenIDProviderMetadata is the subset of OpenID Connect Discovery 1.0 metadata the client reads.
type OpenIDProviderMetadata struct {
	OAuthMetadata
	JWKSURI                          string   `json:"jwks_uri"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint,omitempty"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
}

// AuthOptions configures one run of the OAuth flow.
type AuthOptions struct {
	ServerURL           string       // MCP server URL the token is for
	ResourceMetadataURL string       // RFC 9728 metadata URL from WWW-Authenticate, optional
	AuthorizationCode   string       // code to exchange, optional
	Scope               string       // space separated, optional
	ProtocolVersion     string       // MCP-Protocol-Version header value, optional
	HTTPClient          *http.Client // client used for OAuth endpoints, optional
}

// Client returns the configured HTTP client or http.DefaultClient.
func (o AuthOptions) Client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}
