// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/errors"
)

func TestParseOAuthError(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		ok       bool
		sentinel error
	}{
		{name: "known code", body: `{"error":"invalid_grant","error_description":"expired"}`, ok: true, sentinel: errors.ErrInvalidGrant},
		{name: "unknown code maps to server error", body: `{"error":"weird"}`, ok: true, sentinel: errors.ErrServerError},
		{name: "missing error field", body: `{"foo":"bar"}`, ok: false},
		{name: "not json", body: `<html>`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oauthErr, ok := errors.ParseOAuthError(400, []byte(tt.body))
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, 400, oauthErr.StatusCode)
			wrapped := fmt.Errorf("refresh: %w", oauthErr)
			assert.True(t, stderrors.Is(wrapped, tt.sentinel))

			var target *errors.OAuthError
			assert.True(t, stderrors.As(wrapped, &target))
		})
	}
}
