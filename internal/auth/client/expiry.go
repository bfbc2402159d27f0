// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package client

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth"
)

// ExpirySkew treats tokens this close to expiry as already expired.
const ExpirySkew = 30 * time.Second

// TokenExpiry computes when tokens expire. expires_in counts from issuedAt; without it the
// exp claim of a JWT access token is used. The signature is not checked: the value only
// schedules a refresh, the resource server still validates the token.
func TokenExpiry(tokens *auth.OAuthTokens, issuedAt time.Time) (time.Time, bool) {
	if tokens == nil {
		return time.Time{}, false
	}
	if tokens.ExpiresIn != nil && *tokens.ExpiresIn > 0 {
		return issuedAt.Add(time.Duration(*tokens.ExpiresIn) * time.Second), true
	}
	return AccessTokenExpiry(tokens.AccessToken)
}

// AccessTokenExpiry reads the exp claim of a JWT access token. ok is false for opaque tokens.
func AccessTokenExpiry(accessToken string) (time.Time, bool) {
	if accessToken == "" {
		return time.Time{}, false
	}
	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsExpired reports whether expiry is within ExpirySkew of clock's now.
func IsExpired(clock clockwork.Clock, expiry time.Time) bool {
	if expiry.IsZero() {
		return false
	}
	return !expiry.After(clock.Now().Add(ExpirySkew))
}
