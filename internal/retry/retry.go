// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

// Package retry implements request-level retry with exponential backoff for client transports.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"syscall"
	"time"

	clienterrors "trpc.group/trpc-go/trpc-mcp-authclient-go/internal/errors"
)

// Validation range constants for retry configuration parameters.
const (
	MinMaxRetries = 0
	MaxMaxRetries = 10

	MinInitialBackoff = time.Millisecond
	MaxInitialBackoff = 30 * time.Second

	MinBackoffFactor = 1.0
	MaxBackoffFactor = 10.0

	MaxMaxBackoff = 5 * time.Minute
)

// Config defines configuration for retry behavior.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// BackoffFactor multiplies the delay for each further retry, e.g. 2.0: 100ms -> 200ms -> 400ms.
	BackoffFactor float64
	// MaxBackoff caps the delay.
	MaxBackoff time.Duration
}

// Validate clamps the configuration to sensible ranges and returns the result.
func (c Config) Validate() Config {
	v := c
	v.MaxRetries = clampInt(v.MaxRetries, MinMaxRetries, MaxMaxRetries)
	v.InitialBackoff = clampDuration(v.InitialBackoff, MinInitialBackoff, MaxInitialBackoff)
	v.BackoffFactor = math.Min(math.Max(v.BackoffFactor, MinBackoffFactor), MaxBackoffFactor)
	v.MaxBackoff = clampDuration(v.MaxBackoff, v.InitialBackoff, MaxMaxBackoff)
	return v
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(c.InitialBackoff) * math.Pow(c.BackoffFactor, float64(attempt-1)))
	if d > c.MaxBackoff || d < 0 {
		return c.MaxBackoff
	}
	return d
}

// StatusError is returned by transports for HTTP responses with an error status.
type StatusError struct {
	StatusCode int
	Method     string
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d %s", e.Method, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: HTTP %d %s: %s", e.Method, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500 && e.StatusCode != http.StatusNotImplemented
}

// IsRetryableError reports whether err is a transient transport failure.
// Authentication failures and 4xx statuses other than 408, 409 and 429 are never retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// The auth decorator already refreshed and replayed once; its cause may be a network error.
	if errors.Is(err, clienterrors.ErrAuthentication) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Execute runs operation until it succeeds, returns a non-retryable error, or the
// attempts configured in config are used up. A nil config runs the operation once.
func Execute(ctx context.Context, operation func() error, config *Config, operationName string) error {
	if config == nil || config.MaxRetries == 0 {
		return operation()
	}

	var lastErr error
	maxAttempts := config.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil || !IsRetryableError(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(config.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxAttempts, lastErr)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
