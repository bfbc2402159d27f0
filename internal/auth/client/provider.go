// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

// Package client implements the client side of MCP authorization: credential providers and
// the OAuth 2.1 discovery, registration, authorization and refresh flow.
package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth"
)

// OAuthClientProvider defines core OAuth 2.0 client operations.
// It supplies client configuration, stores tokens and drives the authorization redirect.
type OAuthClientProvider interface {
	// RedirectURL returns the client redirect URL for authorization
	RedirectURL() string

	// ClientMetadata returns static client metadata such as redirect URIs
	ClientMetadata() auth.OAuthClientMetadata

	// ClientInformation returns current client credentials if available
	ClientInformation() *auth.OAuthClientInformation

	// Tokens returns the current access and refresh tokens, or nil when none are stored
	Tokens() (*auth.OAuthTokens, error)

	// SaveTokens persists the given OAuth tokens
	SaveTokens(tokens auth.OAuthTokens) error

	// RedirectToAuthorization hands the authorization URL to the user agent
	RedirectToAuthorization(authorizationURL *url.URL) error

	// SaveCodeVerifier persists the PKCE code verifier for later token exchange
	SaveCodeVerifier(codeVerifier string) error

	// CodeVerifier retrieves the stored PKCE code verifier
	CodeVerifier() (string, error)
}

// OAuthStateProvider adds state parameter management for CSRF protection.
type OAuthStateProvider interface {
	State() (string, error)
}

// OAuthClientInfoProvider handles dynamic client credential storage.
type OAuthClientInfoProvider interface {
	SaveClientInformation(clientInformation auth.OAuthClientInformationFull) error
}

// OAuthClientAuthProvider enables custom client authentication at the token endpoint.
type OAuthClientAuthProvider interface {
	AddClientAuthentication(headers http.Header, params url.Values, tokenURL string) error
}

// OAuthResourceValidator picks the resource indicator for a server.
type OAuthResourceValidator interface {
	ValidateResourceURL(serverURL *url.URL, resourceMetadata *auth.OAuthProtectedResourceMetadata) (*url.URL, error)
}

// InvalidationScope names the credentials dropped by InvalidateCredentials.
type InvalidationScope string

// Invalidation scopes.
const (
	InvalidateAll      InvalidationScope = "all"
	InvalidateClient   InvalidationScope = "client"
	InvalidateTokens   InvalidationScope = "tokens"
	InvalidateVerifier InvalidationScope = "verifier"
)

// OAuthCredentialInvalidator drops credentials the authorization server rejected.
type OAuthCredentialInvalidator interface {
	InvalidateCredentials(scope InvalidationScope) error
}

// TokenRefresher is implemented by providers that can obtain a new access token on their own,
// without the discovery and redirect flow.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context) (*auth.OAuthTokens, error)
}

// TokenExpiryProvider reports when the stored access token expires. ok is false when unknown.
type TokenExpiryProvider interface {
	TokensExpireAt() (expiry time.Time, ok bool)
}
