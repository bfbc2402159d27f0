// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package client

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth"
)

// InMemoryOAuthClientProvider keeps client information, tokens and the PKCE verifier in memory.
// Nothing survives a process restart, so it suits tests, CLIs and short-lived agents.
type InMemoryOAuthClientProvider struct {
	redirectURL    string
	clientMetadata auth.OAuthClientMetadata
	onRedirect     func(*url.URL) error
	clock          clockwork.Clock

	mu            sync.RWMutex
	clientInfo    *auth.OAuthClientInformation
	tokens        *auth.OAuthTokens
	tokensSavedAt time.Time
	codeVerifier  string
}

// InMemoryOption configures an InMemoryOAuthClientProvider.
type InMemoryOption func(*InMemoryOAuthClientProvider)

// WithClock sets the clock used to timestamp saved tokens.
func WithClock(clock clockwork.Clock) InMemoryOption {
	return func(p *InMemoryOAuthClientProvider) {
		p.clock = clock
	}
}

// WithClientInformation preloads statically registered client credentials.
func WithClientInformation(info auth.OAuthClientInformation) InMemoryOption {
	return func(p *InMemoryOAuthClientProvider) {
		p.clientInfo = &info
	}
}

// WithInitialTokens preloads tokens obtained elsewhere, e.g. from configuration.
func WithInitialTokens(tokens auth.OAuthTokens) InMemoryOption {
	return func(p *InMemoryOAuthClientProvider) {
		p.tokens = &tokens
	}
}

// NewInMemoryOAuthClientProvider creates a new in-memory OAuth client provider.
// A nil onRedirect accepts the redirect without acting on it.
func NewInMemoryOAuthClientProvider(
	redirectURL string,
	clientMetadata auth.OAuthClientMetadata,
	onRedirect func(*url.URL) error,
	opts ...InMemoryOption,
) *InMemoryOAuthClientProvider {
	if onRedirect == nil {
		onRedirect = func(*url.URL) error { return nil }
	}
	p := &InMemoryOAuthClientProvider{
		redirectURL:    redirectURL,
		clientMetadata: clientMetadata,
		onRedirect:     onRedirect,
		clock:          clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tokens != nil {
		p.tokensSavedAt = p.clock.Now()
	}
	return p
}

// RedirectURL returns the registered redirect URL
func (p *InMemoryOAuthClientProvider) RedirectURL() string {
	return p.redirectURL
}

// ClientMetadata returns the client metadata
func (p *InMemoryOAuthClientProvider) ClientMetadata() auth.OAuthClientMetadata {
	return p.clientMetadata
}

// ClientInformation returns stored client credentials if available
func (p *InMemoryOAuthClientProvider) ClientInformation() *auth.OAuthClientInformation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clientInfo
}

// SaveClientInformation stores the credentials from a registration response
func (p *InMemoryOAuthClientProvider) SaveClientInformation(full auth.OAuthClientInformationFull) error {
	info := full.OAuthClientInformation
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientInfo = &info
	return nil
}

// Tokens returns a copy of the stored tokens, or nil
func (p *InMemoryOAuthClientProvider) Tokens() (*auth.OAuthTokens, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.tokens == nil {
		return nil, nil
	}
	tokens := *p.tokens
	return &tokens, nil
}

// SaveTokens stores tokens and remembers when they were received
func (p *InMemoryOAuthClientProvider) SaveTokens(tokens auth.OAuthTokens) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = &tokens
	p.tokensSavedAt = p.clock.Now()
	return nil
}

// TokensExpireAt implements TokenExpiryProvider.
func (p *InMemoryOAuthClientProvider) TokensExpireAt() (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return TokenExpiry(p.tokens, p.tokensSavedAt)
}

// RedirectToAuthorization calls the redirect callback
func (p *InMemoryOAuthClientProvider) RedirectToAuthorization(authorizationURL *url.URL) error {
	return p.onRedirect(authorizationURL)
}

// CodeVerifier returns the stored PKCE code verifier
func (p *InMemoryOAuthClientProvider) CodeVerifier() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.codeVerifier == "" {
		return "", fmt.Errorf("no code verifier saved")
	}
	return p.codeVerifier, nil
}

// SaveCodeVerifier stores the PKCE code verifier
func (p *InMemoryOAuthClientProvider) SaveCodeVerifier(codeVerifier string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codeVerifier = codeVerifier
	return nil
}

// State returns a fresh random state value
func (p *InMemoryOAuthClientProvider) State() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return id.String(), nil
}

// AddClientAuthentication sends stored credentials as client_secret_post
func (p *InMemoryOAuthClientProvider) AddClientAuthentication(_ http.Header, params url.Values, _ string) error {
	p.mu.RLock()
	info := p.clientInfo
	p.mu.RUnlock()

	if info == nil || info.ClientID == "" {
		return nil
	}
	params.Set("client_id", info.ClientID)
	if info.ClientSecret != "" {
		params.Set("client_secret", info.ClientSecret)
	}
	return nil
}

// InvalidateCredentials clears stored credentials according to scope
func (p *InMemoryOAuthClientProvider) InvalidateCredentials(scope InvalidationScope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch scope {
	case InvalidateAll:
		p.clientInfo = nil
		p.tokens = nil
		p.codeVerifier = ""
	case InvalidateClient:
		p.clientInfo = nil
	case InvalidateTokens:
		p.tokens = nil
	case InvalidateVerifier:
		p.codeVerifier = ""
	default:
		return fmt.Errorf("unknown invalidation scope: %s", scope)
	}
	return nil
}
