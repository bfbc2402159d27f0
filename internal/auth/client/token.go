// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth/pkce"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/errors"
)

// ClientAuthMethod lists supported client authentication methods for the token endpoint.
type ClientAuthMethod string

const (
	ClientAuthMethodBasic ClientAuthMethod = "client_secret_basic"
	ClientAuthMethodPost  ClientAuthMethod = "client_secret_post"
	ClientAuthMethodNone  ClientAuthMethod = "none"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
	responseTypeCode       = "code"
)

// maxTokenResponseSize bounds token and registration responses.
const maxTokenResponseSize = 1 << 20

// RegisterClientOptions configures dynamic client registration.
type RegisterClientOptions struct {
	Metadata       auth.AuthorizationServerMetadata // optional; /register is used without it
	ClientMetadata auth.OAuthClientMetadata
	HTTPClient     *http.Client
}

// StartAuthorizationOptions configures the authorization request.
type StartAuthorizationOptions struct {
	Metadata          auth.AuthorizationServerMetadata // optional; /authorize is used without it
	ClientInformation auth.OAuthClientInformation
	RedirectURL       string
	Scope             string
	State             string
	Resource          *url.URL
}

// StartAuthorizationResult holds the URL to send the user to and the verifier to keep.
type StartAuthorizationResult struct {
	AuthorizationURL *url.URL
	CodeVerifier     string
}

// TokenRequestOptions is shared by the code exchange and the refresh grant.
type TokenRequestOptions struct {
	Metadata                auth.AuthorizationServerMetadata // optional; /token is used without it
	ClientInformation       auth.OAuthClientInformation
	Resource                *url.URL
	AddClientAuthentication func(http.Header, url.Values, string) error // overrides method selection
	HTTPClient              *http.Client
}

// selectClientAuthMethod chooses a client auth method based on server support and client secrets.
func selectClientAuthMethod(info auth.OAuthClientInformation, supported []string) ClientAuthMethod {
	hasSecret := info.ClientSecret != ""
	if len(supported) == 0 {
		if hasSecret {
			return ClientAuthMethodPost
		}
		return ClientAuthMethodNone
	}

	if hasSecret && slices.Contains(supported, string(ClientAuthMethodBasic)) {
		return ClientAuthMethodBasic
	}
	if hasSecret && slices.Contains(supported, string(ClientAuthMethodPost)) {
		return ClientAuthMethodPost
	}
	if slices.Contains(supported, string(ClientAuthMethodNone)) {
		return ClientAuthMethodNone
	}
	if hasSecret {
		return ClientAuthMethodPost
	}
	return ClientAuthMethodNone
}

// applyClientAuthentication writes client credentials into headers or form parameters.
func applyClientAuthentication(method ClientAuthMethod, info auth.OAuthClientInformation, headers http.Header, params url.Values) error {
	switch method {
	case ClientAuthMethodBasic:
		if info.ClientSecret == "" {
			return fmt.Errorf("client_secret_basic authentication requires a client_secret")
		}
		req := http.Request{Header: headers}
		req.SetBasicAuth(url.QueryEscape(info.ClientID), url.QueryEscape(info.ClientSecret))
		return nil
	case ClientAuthMethodPost:
		params.Set("client_id", info.ClientID)
		if info.ClientSecret != "" {
			params.Set("client_secret", info.ClientSecret)
		}
		return nil
	case ClientAuthMethodNone:
		params.Set("client_id", info.ClientID)
		return nil
	default:
		return fmt.Errorf("unsupported client authentication method: %s", method)
	}
}

// endpointURL returns the metadata endpoint when present, else fallbackPath on the server root.
func endpointURL(serverURL, endpoint, fallbackPath string) (*url.URL, error) {
	if endpoint != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		return u, nil
	}
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid authorization server URL: %w", err)
	}
	return base.ResolveReference(&url.URL{Path: fallbackPath}), nil
}

// RegisterClient performs RFC 7591 dynamic client registration.
func RegisterClient(ctx context.Context, authServerURL string, opts RegisterClientOptions) (*auth.OAuthClientInformationFull, error) {
	var endpoint string
	if opts.Metadata != nil {
		endpoint = opts.Metadata.GetRegistrationEndpoint()
		if endpoint == "" {
			return nil, fmt.Errorf("incompatible auth server: does not support dynamic client registration")
		}
	}
	registrationURL, err := endpointURL(authServerURL, endpoint, "/register")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(opts.ClientMetadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal client metadata: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var info auth.OAuthClientInformationFull
	if err := doJSON(httpClientOrDefault(opts.HTTPClient), req, "registration", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// StartAuthorization builds the authorization URL with a fresh S256 PKCE challenge.
func StartAuthorization(authServerURL string, opts StartAuthorizationOptions) (*StartAuthorizationResult, error) {
	var endpoint string
	if md := opts.Metadata; md != nil {
		endpoint = md.GetAuthorizationEndpoint()
		if !slices.Contains(md.GetResponseTypesSupported(), responseTypeCode) {
			return nil, fmt.Errorf("incompatible auth server: does not support response type %s", responseTypeCode)
		}
		if methods := md.GetCodeChallengeMethodsSupported(); len(methods) > 0 && !slices.Contains(methods, pkce.MethodS256) {
			return nil, fmt.Errorf("incompatible auth server: does not support code challenge method %s", pkce.MethodS256)
		}
	}
	authorizationURL, err := endpointURL(authServerURL, endpoint, "/authorize")
	if err != nil {
		return nil, err
	}

	challenge := pkce.GeneratePKCEChallenge()

	params := authorizationURL.Query()
	params.Set("response_type", responseTypeCode)
	params.Set("client_id", opts.ClientInformation.ClientID)
	params.Set("redirect_uri", opts.RedirectURL)
	params.Set("code_challenge", challenge.CodeChallenge)
	params.Set("code_challenge_method", pkce.MethodS256)
	if opts.Scope != "" {
		params.Set("scope", opts.Scope)
		// OIDC only issues refresh tokens for offline_access after explicit consent.
		if slices.Contains(strings.Fields(opts.Scope), "offline_access") {
			params.Set("prompt", "consent")
		}
	}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.Resource != nil {
		params.Set("resource", opts.Resource.String())
	}
	authorizationURL.RawQuery = params.Encode()

	return &StartAuthorizationResult{
		AuthorizationURL: authorizationURL,
		CodeVerifier:     challenge.CodeVerifier,
	}, nil
}

// ExchangeAuthorization exchanges an authorization code for tokens.
func ExchangeAuthorization(
	ctx context.Context,
	authServerURL, code, codeVerifier, redirectURI string,
	opts TokenRequestOptions,
) (*auth.OAuthTokens, error) {
	params := url.Values{
		"grant_type":    {grantAuthorizationCode},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {codeVerifier},
	}
	return requestToken(ctx, authServerURL, grantAuthorizationCode, params, opts)
}

// RefreshAuthorization runs the refresh grant. The old refresh token is kept when the
// server does not return a new one.
func RefreshAuthorization(ctx context.Context, authServerURL, refreshToken string, opts TokenRequestOptions) (*auth.OAuthTokens, error) {
	params := url.Values{
		"grant_type":    {grantRefreshToken},
		"refresh_token": {refreshToken},
	}
	tokens, err := requestToken(ctx, authServerURL, grantRefreshToken, params, opts)
	if err != nil {
		return nil, err
	}
	if tokens.RefreshToken == nil || *tokens.RefreshToken == "" {
		tokens.RefreshToken = &refreshToken
	}
	return tokens, nil
}

func requestToken(ctx context.Context, authServerURL, grantType string, params url.Values, opts TokenRequestOptions) (*auth.OAuthTokens, error) {
	var endpoint string
	if md := opts.Metadata; md != nil {
		endpoint = md.GetTokenEndpoint()
		if endpoint == "" {
			return nil, fmt.Errorf("token endpoint not found in metadata")
		}
		if grants := md.GetGrantTypesSupported(); len(grants) > 0 && !slices.Contains(grants, grantType) {
			return nil, fmt.Errorf("incompatible auth server: does not support grant type %s", grantType)
		}
	}
	tokenURL, err := endpointURL(authServerURL, endpoint, "/token")
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if opts.AddClientAuthentication != nil {
		err = opts.AddClientAuthentication(headers, params, tokenURL.String())
	} else {
		var supported []string
		if opts.Metadata != nil {
			supported = opts.Metadata.GetTokenEndpointAuthMethodsSupported()
		}
		method := selectClientAuthMethod(opts.ClientInformation, supported)
		err = applyClientAuthentication(method, opts.ClientInformation, headers, params)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply client authentication: %w", err)
	}
	if opts.Resource != nil {
		params.Set("resource", opts.Resource.String())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL.String(), strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = headers
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tokens auth.OAuthTokens
	if err := doJSON(httpClientOrDefault(opts.HTTPClient), req, grantType, &tokens); err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%s response has no access_token", grantType)
	}
	return &tokens, nil
}

// doJSON sends req and decodes a 2xx body into out. Error bodies in OAuth format come back
// as *errors.OAuthError.
func doJSON(httpClient *http.Client, req *http.Request, what string, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", what, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", what, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if oauthErr, ok := errors.ParseOAuthError(resp.StatusCode, body); ok {
			return oauthErr
		}
		return fmt.Errorf("%s failed with status %d: %s", what, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", what, err)
	}
	return nil
}

func httpClientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
