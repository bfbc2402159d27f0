// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import "time"

// DefaultSyncRequestTimeout bounds every call of a SyncClient unless WithCallTimeout overrides it.
// A caller context with an earlier deadline still ends the call first.
const DefaultSyncRequestTimeout = 20 * time.Second

// SyncClient is a blocking MCP client. Every call runs on the caller's goroutine and is bounded
// by the caller's context and by the request timeout, DefaultSyncRequestTimeout by default.
type SyncClient struct {
	*Client
}

// NewSyncClient creates a blocking client that owns transport.
func NewSyncClient(transport Transport, clientInfo Implementation, options ...ClientOption) (*SyncClient, error) {
	options = append([]ClientOption{WithCallTimeout(DefaultSyncRequestTimeout)}, options...)
	c, err := NewClient(transport, clientInfo, options...)
	if err != nil {
		return nil, err
	}
	return &SyncClient{Client: c}, nil
}
