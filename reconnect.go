// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"time"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/reconnect"
)

// ReconnectConfig defines how the event stream transport reopens its GET stream.
// Reconnection handles connection-level failures such as stream disconnections,
// which are different from request-level retry failures.
type ReconnectConfig struct {
	// MaxReconnectAttempts specifies the maximum number of reconnection attempts.
	// Valid range: 0-5, default: 2
	MaxReconnectAttempts int `json:"max_reconnect_attempts"`
	// ReconnectDelay specifies the initial delay before the first reconnection attempt.
	// Valid range: 100ms-30s, default: 1s
	ReconnectDelay time.Duration `json:"reconnect_delay"`
	// ReconnectBackoffFactor specifies the factor to multiply the delay for each reconnection attempt.
	// For example, with factor 1.5: 1s -> 1.5s -> 2.25s -> 3.375s
	// Valid range: 1.0-3.0, default: 1.5
	ReconnectBackoffFactor float64 `json:"reconnect_backoff_factor"`
	// MaxReconnectDelay specifies the maximum delay between reconnection attempts.
	// Valid range: minimum is ReconnectDelay, maximum: 5 minutes, default: 30s
	MaxReconnectDelay time.Duration `json:"max_reconnect_delay"`
}

// SimpleReconnect returns a ReconnectConfig with maxAttempts and the default backoff
// (1s initial, 1.5 factor, 30s max).
func SimpleReconnect(maxAttempts int) ReconnectConfig {
	d := reconnect.DefaultConfig()
	return ReconnectConfig{
		MaxReconnectAttempts:   maxAttempts,
		ReconnectDelay:         d.ReconnectDelay,
		ReconnectBackoffFactor: d.ReconnectBackoffFactor,
		MaxReconnectDelay:      d.MaxReconnectDelay,
	}
}

// validated converts the public config to the clamped internal form.
func (c ReconnectConfig) validated() reconnect.Config {
	internalConfig := reconnect.Config{
		MaxReconnectAttempts:   c.MaxReconnectAttempts,
		ReconnectDelay:         c.ReconnectDelay,
		ReconnectBackoffFactor: c.ReconnectBackoffFactor,
		MaxReconnectDelay:      c.MaxReconnectDelay,
	}
	internalConfig.Validate()
	return internalConfig
}
