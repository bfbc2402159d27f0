// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth"
)

// ErrInteractionRequired is returned by providers that cannot send a user to the browser.
var ErrInteractionRequired = errors.New("interactive authorization is not supported by this provider")

// fetchFunc obtains a new token given the current one, which may be nil.
type fetchFunc func(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error)

// TokenSourceProvider is an OAuthClientProvider for non-interactive clients. Tokens come from
// golang.org/x/oauth2: the client credentials grant or the refresh grant of a known token.
type TokenSourceProvider struct {
	fetch      fetchFunc
	clientInfo *auth.OAuthClientInformation
	metadata   auth.OAuthClientMetadata
	httpClient *http.Client

	mu      sync.Mutex
	current *oauth2.Token
}

// NewClientCredentialsProvider returns a provider that runs the client credentials grant
// whenever a new token is needed.
func NewClientCredentialsProvider(cfg clientcredentials.Config, httpClient *http.Client) *TokenSourceProvider {
	return &TokenSourceProvider{
		fetch: func(ctx context.Context, _ *oauth2.Token) (*oauth2.Token, error) {
			return cfg.Token(ctx)
		},
		clientInfo: &auth.OAuthClientInformation{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret},
		metadata: auth.OAuthClientMetadata{
			GrantTypes: []string{"client_credentials"},
			Scope:      scopeString(cfg.Scopes),
		},
		httpClient: httpClient,
	}
}

// NewRefreshTokenProvider returns a provider seeded with initial, which is renewed through the
// refresh grant of cfg. The previous refresh token is kept when the server does not rotate it.
func NewRefreshTokenProvider(cfg *oauth2.Config, initial *oauth2.Token, httpClient *http.Client) *TokenSourceProvider {
	return &TokenSourceProvider{
		fetch: func(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error) {
			if current == nil || current.RefreshToken == "" {
				return nil, errors.New("no refresh token available")
			}
			// An empty access token forces the source to hit the token endpoint.
			return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
		},
		clientInfo: &auth.OAuthClientInformation{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret},
		metadata: auth.OAuthClientMetadata{
			RedirectURIs: nonEmpty(cfg.RedirectURL),
			GrantTypes:   []string{"authorization_code", "refresh_token"},
			Scope:        scopeString(cfg.Scopes),
		},
		httpClient: httpClient,
		current:    initial,
	}
}

// RefreshTokens implements TokenRefresher.
func (p *TokenSourceProvider) RefreshTokens(ctx context.Context) (*auth.OAuthTokens, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	tok, err := p.fetch(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}

	p.mu.Lock()
	p.current = tok
	p.mu.Unlock()
	return TokensFromOAuth2(tok), nil
}

// Tokens returns the cached token. It never performs I/O; nil means no token was fetched yet.
func (p *TokenSourceProvider) Tokens() (*auth.OAuthTokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return TokensFromOAuth2(p.current), nil
}

// SaveTokens replaces the cached token.
func (p *TokenSourceProvider) SaveTokens(tokens auth.OAuthTokens) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = TokensToOAuth2(tokens, time.Now())
	return nil
}

// TokensExpireAt implements TokenExpiryProvider.
func (p *TokenSourceProvider) TokensExpireAt() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return time.Time{}, false
	}
	if !p.current.Expiry.IsZero() {
		return p.current.Expiry, true
	}
	return AccessTokenExpiry(p.current.AccessToken)
}

// RedirectURL returns the first registered redirect URI, if any.
func (p *TokenSourceProvider) RedirectURL() string {
	if len(p.metadata.RedirectURIs) == 0 {
		return ""
	}
	return p.metadata.RedirectURIs[0]
}

// ClientMetadata returns metadata derived from the oauth2 configuration.
func (p *TokenSourceProvider) ClientMetadata() auth.OAuthClientMetadata { return p.metadata }

// ClientInformation returns the configured client credentials.
func (p *TokenSourceProvider) ClientInformation() *auth.OAuthClientInformation { return p.clientInfo }

// RedirectToAuthorization always fails: the provider has no user agent.
func (p *TokenSourceProvider) RedirectToAuthorization(*url.URL) error { return ErrInteractionRequired }

// SaveCodeVerifier is a no-op.
func (p *TokenSourceProvider) SaveCodeVerifier(string) error { return nil }

// CodeVerifier always fails: the provider never starts an authorization code flow.
func (p *TokenSourceProvider) CodeVerifier() (string, error) { return "", ErrInteractionRequired }

// TokensFromOAuth2 converts an oauth2.Token into the wire token shape.
func TokensFromOAuth2(tok *oauth2.Token) *auth.OAuthTokens {
	if tok == nil || tok.AccessToken == "" {
		return nil
	}
	out := &auth.OAuthTokens{
		AccessToken: tok.AccessToken,
		TokenType:   tok.Type(),
	}
	if tok.RefreshToken != "" {
		rt := tok.RefreshToken
		out.RefreshToken = &rt
	}
	if !tok.Expiry.IsZero() {
		secs := int64(time.Until(tok.Expiry).Seconds())
		if secs < 0 {
			secs = 0
		}
		out.ExpiresIn = &secs
	}
	if id, ok := tok.Extra("id_token").(string); ok && id != "" {
		out.IDToken = &id
	}
	return out
}

// TokensToOAuth2 converts wire tokens received at issuedAt into an oauth2.Token.
func TokensToOAuth2(tokens auth.OAuthTokens, issuedAt time.Time) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: tokens.AccessToken,
		TokenType:   tokens.TokenType,
	}
	if tokens.RefreshToken != nil {
		tok.RefreshToken = *tokens.RefreshToken
	}
	if expiry, ok := TokenExpiry(&tokens, issuedAt); ok {
		tok.Expiry = expiry
	}
	return tok
}

func scopeString(scopes []string) *string {
	if len(scopes) == 0 {
		return nil
	}
	s := strings.Join(scopes, " ")
	return &s
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
