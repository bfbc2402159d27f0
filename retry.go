// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"time"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/retry"
)

// RetryConfig defines request-level retry behavior of a transport.
// Only network failures and retryable HTTP statuses (408, 409, 429, 5xx except 501) are retried;
// 401 is handled by the authentication decorator and never retried here.
type RetryConfig struct {
	// MaxRetries specifies the maximum number of retry attempts for requests.
	MaxRetries int `json:"max_retries"`
	// InitialBackoff specifies the initial backoff duration before the first retry.
	InitialBackoff time.Duration `json:"initial_backoff"`
	// BackoffFactor specifies the factor to multiply the backoff duration for each retry.
	// For example, with factor 2.0: 100ms -> 200ms -> 400ms -> 800ms
	BackoffFactor float64 `json:"backoff_factor"`
	// MaxBackoff specifies the maximum backoff duration to cap exponential growth.
	MaxBackoff time.Duration `json:"max_backoff"`
}

// defaultRetryConfig provides the backoff used by SimpleRetry.
var defaultRetryConfig = RetryConfig{
	MaxRetries:     2,
	InitialBackoff: 500 * time.Millisecond,
	BackoffFactor:  2.0,
	MaxBackoff:     8 * time.Second,
}

// SimpleRetry returns a RetryConfig with maxRetries attempts and the default backoff
// (500ms initial, 2.0 factor, 8s max).
func SimpleRetry(maxRetries int) RetryConfig {
	config := defaultRetryConfig
	config.MaxRetries = maxRetries
	return config
}

// validated converts the public config to the clamped internal form.
// A zero MaxRetries disables retry and yields nil.
func (c RetryConfig) validated() *retry.Config {
	internalConfig := retry.Config{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		BackoffFactor:  c.BackoffFactor,
		MaxBackoff:     c.MaxBackoff,
	}.Validate()
	if internalConfig.MaxRetries == 0 {
		return nil
	}
	return &internalConfig
}
