// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

// Package transport holds the HTTP wire details shared by MCP client transports:
// header names, media types and the server-sent events reader.
package transport

import (
	"mime"
	"net/http"
)

// HTTP Header constants
const (
	ContentTypeHeader     = "Content-Type"
	AcceptHeader          = "Accept"
	AuthorizationHeader   = "Authorization"
	SessionIDHeader       = "Mcp-Session-Id"
	ProtocolVersionHeader = "MCP-Protocol-Version"
	LastEventIDHeader     = "Last-Event-ID"
	WWWAuthenticateHeader = "WWW-Authenticate"

	ContentTypeJSON = "application/json"
	ContentTypeSSE  = "text/event-stream"

	// AcceptStreamable is sent on streamable HTTP POSTs.
	AcceptStreamable = ContentTypeJSON + ", " + ContentTypeSSE
)

// MediaType returns the Content-Type media type without parameters, or "" when absent or invalid.
func MediaType(h http.Header) string {
	ct := h.Get(ContentTypeHeader)
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}
