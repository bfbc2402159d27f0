// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package client

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth"
)

func signedJWT(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestTokenExpiry(t *testing.T) {
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("nil tokens", func(t *testing.T) {
		_, ok := TokenExpiry(nil, issued)
		assert.False(t, ok)
	})

	t.Run("expires_in wins", func(t *testing.T) {
		in := int64(120)
		tok := &auth.OAuthTokens{
			AccessToken: signedJWT(t, jwt.MapClaims{"exp": issued.Add(time.Hour).Unix()}),
			ExpiresIn:   &in,
		}
		exp, ok := TokenExpiry(tok, issued)
		require.True(t, ok)
		assert.Equal(t, issued.Add(2*time.Minute), exp)
	})

	t.Run("jwt exp claim", func(t *testing.T) {
		exp := issued.Add(45 * time.Minute)
		tok := &auth.OAuthTokens{AccessToken: signedJWT(t, jwt.MapClaims{"sub": "u", "exp": exp.Unix()})}
		got, ok := TokenExpiry(tok, issued)
		require.True(t, ok)
		assert.True(t, exp.Equal(got))
	})

	t.Run("jwt without exp", func(t *testing.T) {
		tok := &auth.OAuthTokens{AccessToken: signedJWT(t, jwt.MapClaims{"sub": "u"})}
		_, ok := TokenExpiry(tok, issued)
		assert.False(t, ok)
	})

	t.Run("opaque token", func(t *testing.T) {
		_, ok := TokenExpiry(&auth.OAuthTokens{AccessToken: "opaque-value"}, issued)
		assert.False(t, ok)
	})
}

func TestIsExpired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	now := clock.Now()

	assert.False(t, IsExpired(clock, time.Time{}), "unknown expiry never expires")
	assert.False(t, IsExpired(clock, now.Add(time.Hour)))
	assert.True(t, IsExpired(clock, now.Add(ExpirySkew/2)), "inside the skew window")
	assert.True(t, IsExpired(clock, now.Add(-time.Second)))

	expiry := now.Add(5 * time.Minute)
	assert.False(t, IsExpired(clock, expiry))
	clock.Advance(5*time.Minute - ExpirySkew)
	assert.True(t, IsExpired(clock, expiry))
}
