// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

// Package reconnect provides connection-level reconnection for event-stream transports.
// It is distinct from request-level retries: it governs how often a stream is re-opened.
package reconnect

import (
	"context"
	"errors"
	"io"
	"math"
	"time"
)

// Validation range constants for reconnect configuration parameters.
const (
	MinMaxReconnectAttempts = 0
	MaxMaxReconnectAttempts = 5

	MinReconnectDelay = 100 * time.Millisecond
	MaxReconnectDelay = 30 * time.Second

	MinReconnectBackoffFactor = 1.0
	MaxReconnectBackoffFactor = 3.0

	MaxMaxReconnectDelay = 5 * time.Minute
)

// Config represents the configuration for connection-level reconnection.
type Config struct {
	MaxReconnectAttempts   int           `json:"max_reconnect_attempts"`   // default 2, range 0-5
	ReconnectDelay         time.Duration `json:"reconnect_delay"`          // default 1s, range 100ms-30s
	ReconnectBackoffFactor float64       `json:"reconnect_backoff_factor"` // default 1.5, range 1.0-3.0
	MaxReconnectDelay      time.Duration `json:"max_reconnect_delay"`      // default 30s, up to 5min
}

// DefaultConfig returns the conservative defaults used by event-stream transports.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts:   2,
		ReconnectDelay:         time.Second,
		ReconnectBackoffFactor: 1.5,
		MaxReconnectDelay:      30 * time.Second,
	}
}

// Validate clamps the configuration parameters to acceptable ranges in place.
func (c *Config) Validate() {
	if c.MaxReconnectAttempts < MinMaxReconnectAttempts {
		c.MaxReconnectAttempts = MinMaxReconnectAttempts
	} else if c.MaxReconnectAttempts > MaxMaxReconnectAttempts {
		c.MaxReconnectAttempts = MaxMaxReconnectAttempts
	}

	if c.ReconnectDelay < MinReconnectDelay {
		c.ReconnectDelay = MinReconnectDelay
	} else if c.ReconnectDelay > MaxReconnectDelay {
		c.ReconnectDelay = MaxReconnectDelay
	}

	if c.ReconnectBackoffFactor < MinReconnectBackoffFactor {
		c.ReconnectBackoffFactor = MinReconnectBackoffFactor
	} else if c.ReconnectBackoffFactor > MaxReconnectBackoffFactor {
		c.ReconnectBackoffFactor = MaxReconnectBackoffFactor
	}

	if c.MaxReconnectDelay > MaxMaxReconnectDelay {
		c.MaxReconnectDelay = MaxMaxReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = c.ReconnectDelay
	}
}

// CalculateDelay returns the wait before the given attempt (1-based). The first attempt
// never waits.
func (c *Config) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := float64(c.ReconnectDelay) * math.Pow(c.ReconnectBackoffFactor, float64(attempt-2))
	if time.Duration(delay) > c.MaxReconnectDelay {
		return c.MaxReconnectDelay
	}
	return time.Duration(delay)
}

// Permanent marks an error that must not trigger another connection attempt.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }

func (p *Permanent) Unwrap() error { return p.Err }

// Connect calls dial until it succeeds, fails with a *Permanent error, the context ends,
// or 1+MaxReconnectAttempts attempts have been made. Permanent errors are returned unwrapped.
func Connect[T any](ctx context.Context, c Config, dial func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= c.MaxReconnectAttempts+1; attempt++ {
		if delay := c.CalculateDelay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		conn, err := dial(ctx)
		if err == nil {
			return conn, nil
		}
		var perm *Permanent
		if errors.As(err, &perm) {
			return zero, perm.Err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
	}
	return zero, lastErr
}

// IsStreamDisconnectedError reports whether err means the event stream ended underneath a reader.
func IsStreamDisconnectedError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
