// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/transport"
)

// TransportType identifies the wire protocol of a transport.
type TransportType string

// Transport types.
const (
	// TransportStreamable is the streamable HTTP transport: one POST per message.
	TransportStreamable TransportType = "streamable_http"
	// TransportEventStream is the legacy HTTP+SSE transport: a GET event stream plus POSTs.
	TransportEventStream TransportType = "sse"
)

// TransportInfo reads back the configuration a transport was built with.
type TransportInfo struct {
	Type          TransportType `json:"type"`
	ServerURL     string        `json:"serverUrl"`
	Endpoint      string        `json:"endpoint"`      // resolved URL requests (or the stream) go to
	Authenticated bool          `json:"authenticated"` // whether WithAuthentication decorated it
}

// Transport carries JSON-RPC messages to one MCP server. A transport is owned by exactly one
// client and its configuration never changes after Build.
type Transport interface {
	// SendRequest sends req and returns the raw response envelope with the matching id.
	SendRequest(ctx context.Context, req *JSONRPCRequest) (*json.RawMessage, error)
	// SendNotification sends a message that has no response.
	SendNotification(ctx context.Context, notification *JSONRPCNotification) error
	// Close releases connections and sessions. It is safe to call more than once.
	Close() error
	// Info returns the transport configuration.
	Info() TransportInfo
}

// SessionTransport is implemented by transports that hold a server-side session.
type SessionTransport interface {
	Transport
	// GetSessionID returns the current session id, or "" before the server assigned one.
	GetSessionID() string
	// TerminateSession ends the session on the server.
	TerminateSession(ctx context.Context) error
}

// maxErrorBody bounds how much of an error response body is kept for StatusError.
const maxErrorBody = 512

// readErrorBody drains and closes resp.Body, returning at most maxErrorBody bytes of it.
func readErrorBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	return string(b)
}

// unwrapAuthError surfaces an AuthenticationError raised inside the round tripper instead of
// the *url.Error net/http wraps it in.
func unwrapAuthError(err error) error {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return authErr
	}
	return err
}

// cloneHeader copies h so callers can keep mutating their own map.
func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	return h.Clone()
}

// applyHeaders sets the configured custom headers and the protocol version on req.
func applyHeaders(req *http.Request, headers http.Header, protocolVersion string) {
	for k, v := range headers {
		req.Header[k] = append([]string(nil), v...)
	}
	if protocolVersion != "" {
		req.Header.Set(transport.ProtocolVersionHeader, protocolVersion)
	}
}
