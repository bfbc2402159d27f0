// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package auth

import (
	"net/url"
	"strings"
)

// ResourceURLFromServerURL derives the RFC 8707 resource indicator for an MCP server URL by
// dropping its fragment.
func ResourceURLFromServerURL(serverURL string) (*url.URL, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

// CheckResourceAllowed reports whether requested falls under configured: same origin and a
// path equal to or below the configured path.
func CheckResourceAllowed(requested, configured string) (bool, error) {
	req, err := url.Parse(requested)
	if err != nil {
		return false, err
	}
	cfg, err := url.Parse(configured)
	if err != nil {
		return false, err
	}

	if req.Scheme != cfg.Scheme || req.Host != cfg.Host {
		return false, nil
	}
	if len(req.Path) < len(cfg.Path) {
		return false, nil
	}
	return strings.HasPrefix(withTrailingSlash(req.Path), withTrailingSlash(cfg.Path)), nil
}

// ParseWWWAuthenticate extracts the auth-params of a Bearer challenge, e.g.
// `Bearer error="invalid_token", resource_metadata="https://..."`.
func ParseWWWAuthenticate(header string) map[string]string {
	params := make(map[string]string)
	scheme, rest, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return params
	}
	for _, part := range splitParams(rest) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(key))] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return params
}

// splitParams splits on commas outside quoted strings.
func splitParams(s string) []string {
	var (
		parts  []string
		quoted bool
		start  int
	)
	for i, r := range s {
		switch r {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func withTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}
