// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/retry"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/transport"
)

// sessionTerminateTimeout bounds the DELETE sent on Close.
const sessionTerminateTimeout = 5 * time.Second

// streamableHTTPClientTransport implements the streamable HTTP transport: every message is a
// POST whose response is either a JSON body or an event stream.
type streamableHTTPClientTransport struct {
	info        TransportInfo
	endpoint    string
	httpClient  *http.Client
	httpHeaders http.Header
	logger      Logger
	retryConfig *retry.Config

	protocolVersion   string
	negotiatedVersion atomic.Value // string

	mu        sync.RWMutex
	sessionID string

	closed atomic.Bool
}

func newStreamableHTTPClientTransport(cfg *resolvedConfig) *streamableHTTPClientTransport {
	return &streamableHTTPClientTransport{
		info: TransportInfo{
			Type:          TransportStreamable,
			ServerURL:     cfg.serverURL.String(),
			Endpoint:      cfg.endpoint.String(),
			Authenticated: cfg.authenticated,
		},
		endpoint:        cfg.endpoint.String(),
		httpClient:      cfg.httpClient,
		httpHeaders:     cfg.headers,
		logger:          cfg.logger,
		retryConfig:     cfg.retryConfig,
		protocolVersion: cfg.protocolVersion,
	}
}

// Info implements Transport.
func (t *streamableHTTPClientTransport) Info() TransportInfo {
	return t.info
}

// GetSessionID implements SessionTransport.
func (t *streamableHTTPClientTransport) GetSessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}

func (t *streamableHTTPClientTransport) setSessionID(id string) {
	t.mu.Lock()
	t.sessionID = id
	t.mu.Unlock()
}

// setProtocolVersion records the version agreed during initialize.
func (t *streamableHTTPClientTransport) setProtocolVersion(version string) {
	t.negotiatedVersion.Store(version)
}

func (t *streamableHTTPClientTransport) currentProtocolVersion() string {
	if v, ok := t.negotiatedVersion.Load().(string); ok && v != "" {
		return v
	}
	return t.protocolVersion
}

// SendRequest implements Transport.
func (t *streamableHTTPClientTransport) SendRequest(ctx context.Context, req *JSONRPCRequest) (*json.RawMessage, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result *json.RawMessage
	err = retry.Execute(ctx, func() error {
		raw, err := t.post(ctx, req.Method, body, idKey(req.ID))
		if err != nil {
			return err
		}
		result = raw
		return nil
	}, t.retryConfig, req.Method)
	if err != nil {
		return nil, unwrapAuthError(err)
	}
	return result, nil
}

// SendNotification implements Transport.
func (t *streamableHTTPClientTransport) SendNotification(ctx context.Context, notification *JSONRPCNotification) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	err = retry.Execute(ctx, func() error {
		_, err := t.post(ctx, notification.Method, body, "")
		return err
	}, t.retryConfig, notification.Method)
	return unwrapAuthError(err)
}

// post sends one message. For requests wantID is the id key of the expected response; for
// notifications it is empty and any 2xx answer is success.
func (t *streamableHTTPClientTransport) post(ctx context.Context, method string, body []byte, wantID string) (*json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	applyHeaders(httpReq, t.httpHeaders, t.currentProtocolVersion())
	httpReq.Header.Set(transport.ContentTypeHeader, transport.ContentTypeJSON)
	httpReq.Header.Set(transport.AcceptHeader, transport.AcceptStreamable)
	sessionID := t.GetSessionID()
	if sessionID != "" {
		httpReq.Header.Set(transport.SessionIDHeader, sessionID)
	}

	t.logger.Debugf("streamable transport: POST %s %s", t.endpoint, method)
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound && sessionID != "" {
		_ = readErrorBody(resp)
		t.setSessionID("")
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &retry.StatusError{StatusCode: resp.StatusCode, Method: method, Body: readErrorBody(resp)}
	}
	if id := resp.Header.Get(transport.SessionIDHeader); id != "" && id != sessionID {
		t.logger.Debugf("streamable transport: session %s", id)
		t.setSessionID(id)
	}

	defer resp.Body.Close()
	if wantID == "" {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		return nil, fmt.Errorf("%s: server accepted the request without a response", method)
	}

	switch mt := transport.MediaType(resp.Header); mt {
	case transport.ContentTypeSSE:
		return t.readStream(resp.Body, wantID)
	case transport.ContentTypeJSON, "":
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		raw := json.RawMessage(data)
		return &raw, nil
	default:
		return nil, fmt.Errorf("%s: unexpected content type %q", method, mt)
	}
}

// readStream reads message events until the response for wantID arrives. Server requests and
// notifications sent on the same stream are logged and skipped.
func (t *streamableHTTPClientTransport) readStream(body io.Reader, wantID string) (*json.RawMessage, error) {
	reader := transport.NewEventReader(body)
	for {
		ev, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("response stream ended before the response: %w", err)
		}
		if ev.Event != "message" || ev.Data == "" {
			continue
		}
		var msg rawMessage
		if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
			t.logger.Warnf("streamable transport: invalid message event: %v", err)
			continue
		}
		if !msg.isResponse() || idKey(msg.ID) != wantID {
			t.logger.Debugf("streamable transport: skipping %q message on response stream", msg.Method)
			continue
		}
		raw := json.RawMessage(ev.Data)
		return &raw, nil
	}
}

// TerminateSession implements SessionTransport.
func (t *streamableHTTPClientTransport) TerminateSession(ctx context.Context) error {
	sessionID := t.GetSessionID()
	if sessionID == "" {
		return nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	applyHeaders(httpReq, t.httpHeaders, t.currentProtocolVersion())
	httpReq.Header.Set(transport.SessionIDHeader, sessionID)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return unwrapAuthError(err)
	}
	body := readErrorBody(resp)
	t.setSessionID("")
	// 405 means the server does not allow clients to end sessions.
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusMethodNotAllowed {
		return &retry.StatusError{StatusCode: resp.StatusCode, Method: "terminate session", Body: body}
	}
	return nil
}

// Close implements Transport.
func (t *streamableHTTPClientTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionTerminateTimeout)
	defer cancel()
	if err := t.TerminateSession(ctx); err != nil {
		t.logger.Debugf("streamable transport: terminate session: %v", err)
	}
	t.httpClient.CloseIdleConnections()
	return nil
}
