// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/errors"
)

// AuthResult describes the outcome of an OAuth flow.
type AuthResult string

const (
	// AuthResultAuthorized means usable tokens were saved to the provider.
	AuthResultAuthorized AuthResult = "AUTHORIZED"
	// AuthResultRedirect means the user agent was sent to the authorization endpoint.
	AuthResultRedirect AuthResult = "REDIRECT"
)

// Auth runs the OAuth flow for opts.ServerURL. When the authorization server rejects the
// client or the grant, the matching credentials are invalidated and the flow runs once more.
func Auth(ctx context.Context, provider OAuthClientProvider, opts auth.AuthOptions) (AuthResult, error) {
	result, err := authInternal(ctx, provider, opts)
	if err == nil {
		return result, nil
	}

	var scope InvalidationScope
	switch {
	case stderrors.Is(err, errors.ErrInvalidClient), stderrors.Is(err, errors.ErrUnauthorizedClient):
		scope = InvalidateAll
	case stderrors.Is(err, errors.ErrInvalidGrant):
		scope = InvalidateTokens
	default:
		return "", err
	}

	if invalidator, ok := provider.(OAuthCredentialInvalidator); ok {
		if invErr := invalidator.InvalidateCredentials(scope); invErr != nil {
			return "", invErr
		}
	}
	return authInternal(ctx, provider, opts)
}

func authInternal(ctx context.Context, provider OAuthClientProvider, opts auth.AuthOptions) (AuthResult, error) {
	httpClient := opts.Client()

	// Servers without RFC 9728 metadata act as their own authorization server.
	var resourceMetadata *auth.OAuthProtectedResourceMetadata
	authServerURL := opts.ServerURL
	if md, err := DiscoverOAuthProtectedResourceMetadata(ctx, opts); err == nil {
		resourceMetadata = md
		if len(md.AuthorizationServers) > 0 {
			authServerURL = md.AuthorizationServers[0]
		}
	}

	resource, err := selectResourceURL(opts.ServerURL, provider, resourceMetadata)
	if err != nil {
		return "", fmt.Errorf("failed to select resource URL: %w", err)
	}

	serverMetadata, err := DiscoverAuthorizationServerMetadata(ctx, httpClient, authServerURL)
	if err != nil {
		return "", fmt.Errorf("failed to discover authorization server metadata: %w", err)
	}

	clientInfo := provider.ClientInformation()
	if clientInfo == nil {
		if opts.AuthorizationCode != "" {
			return "", stderrors.New("existing OAuth client information is required when exchanging an authorization code")
		}
		saver, ok := provider.(OAuthClientInfoProvider)
		if !ok {
			return "", stderrors.New("OAuth client information must be saveable for dynamic registration")
		}
		full, err := RegisterClient(ctx, authServerURL, RegisterClientOptions{
			Metadata:       serverMetadata,
			ClientMetadata: provider.ClientMetadata(),
			HTTPClient:     httpClient,
		})
		if err != nil {
			return "", fmt.Errorf("failed to register client: %w", err)
		}
		if err := saver.SaveClientInformation(*full); err != nil {
			return "", fmt.Errorf("failed to save client information: %w", err)
		}
		clientInfo = &full.OAuthClientInformation
	}

	tokenOpts := TokenRequestOptions{
		Metadata:          serverMetadata,
		ClientInformation: *clientInfo,
		Resource:          resource,
		HTTPClient:        httpClient,
	}
	if p, ok := provider.(OAuthClientAuthProvider); ok {
		tokenOpts.AddClientAuthentication = p.AddClientAuthentication
	}

	if opts.AuthorizationCode != "" {
		verifier, err := provider.CodeVerifier()
		if err != nil {
			return "", fmt.Errorf("failed to load code verifier: %w", err)
		}
		tokens, err := ExchangeAuthorization(ctx, authServerURL, opts.AuthorizationCode, verifier, provider.RedirectURL(), tokenOpts)
		if err != nil {
			return "", err
		}
		if err := provider.SaveTokens(*tokens); err != nil {
			return "", fmt.Errorf("failed to save tokens: %w", err)
		}
		return AuthResultAuthorized, nil
	}

	tokens, err := provider.Tokens()
	if err != nil {
		return "", fmt.Errorf("failed to get tokens: %w", err)
	}
	if tokens != nil && tokens.RefreshToken != nil && *tokens.RefreshToken != "" {
		refreshed, err := RefreshAuthorization(ctx, authServerURL, *tokens.RefreshToken, tokenOpts)
		switch {
		case err == nil:
			if err := provider.SaveTokens(*refreshed); err != nil {
				return "", fmt.Errorf("failed to save refreshed tokens: %w", err)
			}
			return AuthResultAuthorized, nil
		case isOAuthError(err):
			return "", err
		}
		// Transport failures fall through to a fresh authorization.
	}

	var state string
	if sp, ok := provider.(OAuthStateProvider); ok {
		if state, err = sp.State(); err != nil {
			return "", fmt.Errorf("failed to get state: %w", err)
		}
	}
	scope := opts.Scope
	if scope == "" {
		if s := provider.ClientMetadata().Scope; s != nil {
			scope = *s
		}
	}

	started, err := StartAuthorization(authServerURL, StartAuthorizationOptions{
		Metadata:          serverMetadata,
		ClientInformation: *clientInfo,
		RedirectURL:       provider.RedirectURL(),
		Scope:             scope,
		State:             state,
		Resource:          resource,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start authorization: %w", err)
	}
	if err := provider.SaveCodeVerifier(started.CodeVerifier); err != nil {
		return "", fmt.Errorf("failed to save code verifier: %w", err)
	}
	if err := provider.RedirectToAuthorization(started.AuthorizationURL); err != nil {
		return "", fmt.Errorf("failed to redirect to authorization: %w", err)
	}
	return AuthResultRedirect, nil
}

func isOAuthError(err error) bool {
	var oauthErr *errors.OAuthError
	return stderrors.As(err, &oauthErr)
}

// selectResourceURL picks the RFC 8707 resource parameter. Without protected resource
// metadata no resource parameter is sent.
func selectResourceURL(serverURL string, provider OAuthClientProvider, md *auth.OAuthProtectedResourceMetadata) (*url.URL, error) {
	defaultResource, err := auth.ResourceURLFromServerURL(serverURL)
	if err != nil {
		return nil, err
	}
	if validator, ok := provider.(OAuthResourceValidator); ok {
		return validator.ValidateResourceURL(defaultResource, md)
	}
	if md == nil {
		return nil, nil
	}

	allowed, err := auth.CheckResourceAllowed(defaultResource.String(), md.Resource)
	if err != nil {
		return nil, fmt.Errorf("failed to validate resource: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("protected resource %s does not match expected %s", md.Resource, defaultResource)
	}
	return url.Parse(md.Resource)
}

// ResourceMetadataURLFromChallenge extracts resource_metadata from a 401 response, if present.
func ResourceMetadataURLFromChallenge(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	return auth.ParseWWWAuthenticate(resp.Header.Get("WWW-Authenticate"))["resource_metadata"]
}
