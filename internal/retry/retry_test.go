// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clienterrors "trpc.group/trpc-go/trpc-mcp-authclient-go/internal/errors"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "connection refused", err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, expected: true},
		{name: "connection reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), expected: true},
		{name: "unexpected EOF", err: fmt.Errorf("decode: %w", io.ErrUnexpectedEOF), expected: true},
		{name: "HTTP 500", err: &StatusError{StatusCode: 500, Method: "tools/list"}, expected: true},
		{name: "HTTP 429", err: &StatusError{StatusCode: 429}, expected: true},
		{name: "HTTP 501 not implemented", err: &StatusError{StatusCode: 501}, expected: false},
		{name: "HTTP 404", err: &StatusError{StatusCode: 404}, expected: false},
		{name: "HTTP 401", err: &StatusError{StatusCode: 401}, expected: false},
		{name: "context canceled", err: context.Canceled, expected: false},
		{name: "authentication failure caused by refused connection",
			err: authFailure{cause: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}, expected: false},
		{name: "unknown error", err: errors.New("some random error"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

// authFailure mimics the client's AuthenticationError, which unwraps to the sentinel and its cause.
type authFailure struct{ cause error }

func (e authFailure) Error() string   { return "authentication failed: " + e.cause.Error() }
func (e authFailure) Unwrap() []error { return []error{clienterrors.ErrAuthentication, e.cause} }

func TestConfigValidate(t *testing.T) {
	v := Config{MaxRetries: 50, InitialBackoff: 0, BackoffFactor: 0.5, MaxBackoff: time.Hour}.Validate()

	assert.Equal(t, MaxMaxRetries, v.MaxRetries)
	assert.Equal(t, MinInitialBackoff, v.InitialBackoff)
	assert.Equal(t, MinBackoffFactor, v.BackoffFactor)
	assert.Equal(t, MaxMaxBackoff, v.MaxBackoff)
}

func TestConfigBackoff(t *testing.T) {
	c := Config{InitialBackoff: 100 * time.Millisecond, BackoffFactor: 2, MaxBackoff: 300 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, c.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, c.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, c.Backoff(3))
	assert.Equal(t, 300*time.Millisecond, c.Backoff(10))
}

func TestExecute(t *testing.T) {
	config := &Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		BackoffFactor:  2.0,
		MaxBackoff:     5 * time.Millisecond,
	}

	t.Run("success first try", func(t *testing.T) {
		calls := 0
		err := Execute(context.Background(), func() error {
			calls++
			return nil
		}, config, "ping")
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("success after retries", func(t *testing.T) {
		calls := 0
		err := Execute(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &StatusError{StatusCode: 503}
			}
			return nil
		}, config, "ping")
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("non retryable stops", func(t *testing.T) {
		calls := 0
		want := &StatusError{StatusCode: 400}
		err := Execute(context.Background(), func() error {
			calls++
			return want
		}, config, "ping")
		assert.Same(t, want, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		err := Execute(context.Background(), func() error {
			calls++
			return io.EOF
		}, config, "ping")
		require.Error(t, err)
		assert.ErrorIs(t, err, io.EOF)
		assert.Contains(t, err.Error(), "ping failed after 4 attempts")
		assert.Equal(t, 4, calls)
	})

	t.Run("nil config runs once", func(t *testing.T) {
		calls := 0
		err := Execute(context.Background(), func() error {
			calls++
			return io.EOF
		}, nil, "ping")
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 1, calls)
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Execute(ctx, func() error { return nil }, config, "ping")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
