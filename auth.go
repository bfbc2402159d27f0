// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth/client"
)

// OAuth types shared with the internal auth packages.
type (
	OAuthClientProvider         = client.OAuthClientProvider
	TokenRefresher              = client.TokenRefresher
	TokenExpiryProvider         = client.TokenExpiryProvider
	InMemoryOAuthClientProvider = client.InMemoryOAuthClientProvider
	InMemoryOption              = client.InMemoryOption
	TokenSourceProvider         = client.TokenSourceProvider
	AuthResult                  = client.AuthResult

	OAuthTokens            = auth.OAuthTokens
	OAuthClientMetadata    = auth.OAuthClientMetadata
	OAuthClientInformation = auth.OAuthClientInformation
)

// Outcomes of the OAuth flow.
const (
	AuthResultAuthorized = client.AuthResultAuthorized
	AuthResultRedirect   = client.AuthResultRedirect
)

// ErrInteractionRequired is returned by providers that cannot send the user to a browser.
var ErrInteractionRequired = client.ErrInteractionRequired

// NewInMemoryOAuthClientProvider returns a provider that keeps credentials in memory.
// onRedirect receives the authorization URL when the user must log in; nil ignores it.
func NewInMemoryOAuthClientProvider(
	redirectURL string,
	metadata OAuthClientMetadata,
	onRedirect func(*url.URL) error,
	opts ...InMemoryOption,
) *InMemoryOAuthClientProvider {
	return client.NewInMemoryOAuthClientProvider(redirectURL, metadata, onRedirect, opts...)
}

// WithClientInformation preloads statically registered client credentials.
func WithClientInformation(info OAuthClientInformation) InMemoryOption {
	return client.WithClientInformation(info)
}

// WithInitialTokens preloads tokens obtained elsewhere.
func WithInitialTokens(tokens OAuthTokens) InMemoryOption {
	return client.WithInitialTokens(tokens)
}

// NewClientCredentialsProvider returns a non-interactive provider using the client credentials grant.
func NewClientCredentialsProvider(cfg clientcredentials.Config, httpClient *http.Client) *TokenSourceProvider {
	return client.NewClientCredentialsProvider(cfg, httpClient)
}

// NewRefreshTokenProvider returns a non-interactive provider that renews initial with the refresh grant.
func NewRefreshTokenProvider(cfg *oauth2.Config, initial *oauth2.Token, httpClient *http.Client) *TokenSourceProvider {
	return client.NewRefreshTokenProvider(cfg, initial, httpClient)
}

// CompleteAuthorization finishes an authorization code flow. Call it with the code delivered to
// the redirect URL after a request failed with AuthReasonInteractionNeeded; the tokens are saved
// in provider and used by the next request.
func CompleteAuthorization(ctx context.Context, provider OAuthClientProvider, serverURL, authorizationCode string, httpClient *http.Client) error {
	if isNilProvider(provider) {
		return fmt.Errorf("%w: credential provider is nil", ErrInvalidArgument)
	}
	if authorizationCode == "" {
		return fmt.Errorf("%w: authorization code is empty", ErrInvalidArgument)
	}
	result, err := client.Auth(ctx, provider, auth.AuthOptions{
		ServerURL:         serverURL,
		AuthorizationCode: authorizationCode,
		HTTPClient:        httpClient,
	})
	if err != nil {
		return fmt.Errorf("complete authorization: %w", err)
	}
	if result != AuthResultAuthorized {
		return fmt.Errorf("%w: authorization did not complete", ErrAuthentication)
	}
	return nil
}
