// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth"
)

// DefaultProtocolVersion is sent in the MCP-Protocol-Version header during discovery.
const DefaultProtocolVersion = "2025-03-26"

const (
	wellKnownProtectedResource = "oauth-protected-resource"
	wellKnownAuthServer        = "oauth-authorization-server"
	wellKnownOpenID            = "openid-configuration"
)

// maxMetadataSize bounds discovery documents.
const maxMetadataSize = 1 << 20

// DiscoverOAuthProtectedResourceMetadata loads RFC 9728 metadata for the MCP server.
// An explicit ResourceMetadataURL wins; otherwise the path-aware well-known URL is tried
// first and the root well-known URL second.
func DiscoverOAuthProtectedResourceMetadata(ctx context.Context, opts auth.AuthOptions) (*auth.OAuthProtectedResourceMetadata, error) {
	server, err := url.Parse(opts.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	var candidates []*url.URL
	if opts.ResourceMetadataURL != "" {
		u, err := url.Parse(opts.ResourceMetadataURL)
		if err != nil {
			return nil, fmt.Errorf("invalid resource metadata URL: %w", err)
		}
		candidates = append(candidates, u)
	} else {
		candidates = append(candidates, wellKnownURL(server, wellKnownProtectedResource, server.Path))
		if p := strings.TrimSuffix(server.Path, "/"); p != "" {
			candidates = append(candidates, wellKnownURL(server, wellKnownProtectedResource, ""))
		}
	}

	protocolVersion := opts.ProtocolVersion
	if protocolVersion == "" {
		protocolVersion = DefaultProtocolVersion
	}

	for _, u := range candidates {
		var metadata auth.OAuthProtectedResourceMetadata
		found, err := getJSON(ctx, opts.Client(), u, protocolVersion, &metadata)
		if err != nil {
			return nil, err
		}
		if found {
			return &metadata, nil
		}
	}
	return nil, fmt.Errorf("resource server %s does not implement OAuth 2.0 protected resource metadata", server.Host)
}

// discoveryURL is one candidate authorization server metadata location.
type discoveryURL struct {
	url  *url.URL
	oidc bool
}

// buildDiscoveryURLs lists RFC 8414 and OIDC metadata locations for an issuer, most specific first.
func buildDiscoveryURLs(issuer *url.URL) []discoveryURL {
	p := strings.TrimSuffix(issuer.Path, "/")
	if p == "" {
		return []discoveryURL{
			{url: wellKnownURL(issuer, wellKnownAuthServer, "")},
			{url: wellKnownURL(issuer, wellKnownOpenID, ""), oidc: true},
		}
	}

	oidcAfterPath := *issuer
	oidcAfterPath.Path = p + "/.well-known/" + wellKnownOpenID
	oidcAfterPath.RawQuery = ""
	return []discoveryURL{
		{url: wellKnownURL(issuer, wellKnownAuthServer, p)},
		{url: wellKnownURL(issuer, wellKnownAuthServer, "")},
		{url: wellKnownURL(issuer, wellKnownOpenID, p), oidc: true},
		{url: &oidcAfterPath, oidc: true},
	}
}

// DiscoverAuthorizationServerMetadata tries RFC 8414 and OpenID Connect discovery for the issuer
// and returns the first usable document.
func DiscoverAuthorizationServerMetadata(ctx context.Context, httpClient *http.Client, authServerURL string) (auth.AuthorizationServerMetadata, error) {
	issuer, err := url.Parse(authServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid authorization server URL: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	for _, candidate := range buildDiscoveryURLs(issuer) {
		var metadata auth.AuthorizationServerMetadata
		if candidate.oidc {
			metadata = &auth.OpenIDProviderMetadata{}
		} else {
			metadata = &auth.OAuthMetadata{}
		}

		found, err := getJSON(ctx, httpClient, candidate.url, "", metadata)
		if err != nil {
			return nil, err
		}
		if !found || metadata.GetAuthorizationEndpoint() == "" || metadata.GetTokenEndpoint() == "" {
			continue
		}
		if candidate.oidc && !slices.Contains(metadata.GetCodeChallengeMethodsSupported(), "S256") {
			return nil, fmt.Errorf("OIDC provider %s does not support S256 PKCE", authServerURL)
		}
		return metadata, nil
	}
	return nil, fmt.Errorf("failed to discover authorization server metadata from %s", authServerURL)
}

// wellKnownURL builds scheme://host/.well-known/<name><suffix>.
func wellKnownURL(base *url.URL, name, suffix string) *url.URL {
	return &url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   "/.well-known/" + name + strings.TrimSuffix(suffix, "/"),
	}
}

// getJSON fetches u into out. found is false for 404 and for bodies that are not JSON objects.
func getJSON(ctx context.Context, httpClient *http.Client, u *url.URL, protocolVersion string, out any) (found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if protocolVersion != "" {
		req.Header.Set("MCP-Protocol-Version", protocolVersion)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("HTTP %d loading %s", resp.StatusCode, u)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return false, fmt.Errorf("read %s: %w", u, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, nil
	}
	return true, nil
}
