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
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/reconnect"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/retry"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/transport"
)

// streamCloseTimeout bounds how long Close waits for the reader goroutine.
const streamCloseTimeout = 2 * time.Second

// sseResult is delivered to a waiting request.
type sseResult struct {
	raw *json.RawMessage
	err error
}

// sseStream is one open GET event stream.
type sseStream struct {
	messageURL string
	cancel     context.CancelFunc
	done       chan struct{}
}

// sseClientTransport implements the HTTP+SSE transport: responses arrive on a long-lived GET
// event stream, messages are POSTed to the URL announced by its endpoint event.
// The stream is opened lazily by the first send and reopened after it drops.
type sseClientTransport struct {
	info            TransportInfo
	sseURL          *url.URL
	httpClient      *http.Client
	httpHeaders     http.Header
	logger          Logger
	retryConfig     *retry.Config
	reconnectConfig reconnect.Config
	protocolVersion string

	// connectionID tags log lines of this transport.
	connectionID string

	connectMu sync.Mutex // serializes stream opening

	mu      sync.Mutex
	stream  *sseStream
	pending map[string]chan sseResult
	closed  bool

	negotiatedVersion atomic.Value // string
}

func newSSEClientTransport(cfg *resolvedConfig) *sseClientTransport {
	return &sseClientTransport{
		info: TransportInfo{
			Type:          TransportEventStream,
			ServerURL:     cfg.serverURL.String(),
			Endpoint:      cfg.endpoint.String(),
			Authenticated: cfg.authenticated,
		},
		sseURL:          cfg.endpoint,
		httpClient:      cfg.httpClient,
		httpHeaders:     cfg.headers,
		logger:          cfg.logger,
		retryConfig:     cfg.retryConfig,
		reconnectConfig: cfg.reconnectConfig,
		protocolVersion: cfg.protocolVersion,
		connectionID:    uuid.NewString(),
		pending:         make(map[string]chan sseResult),
	}
}

// Info implements Transport.
func (t *sseClientTransport) Info() TransportInfo {
	return t.info
}

func (t *sseClientTransport) setProtocolVersion(version string) {
	t.negotiatedVersion.Store(version)
}

func (t *sseClientTransport) currentProtocolVersion() string {
	if v, ok := t.negotiatedVersion.Load().(string); ok && v != "" {
		return v
	}
	return t.protocolVersion
}

// SendRequest implements Transport.
func (t *sseClientTransport) SendRequest(ctx context.Context, req *JSONRPCRequest) (*json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	key := idKey(req.ID)
	stream, ch, err := t.register(ctx, key)
	if err != nil {
		return nil, err
	}
	defer t.removePending(key)

	direct, err := t.postMessage(ctx, stream.messageURL, req.Method, body)
	if err != nil {
		return nil, err
	}
	// Some servers answer on the POST itself instead of the stream.
	if direct != nil {
		return direct, nil
	}

	select {
	case res := <-ch:
		return res.raw, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// register adds a pending entry for key on the current stream. The entry is only added while
// that stream is still the transport's stream, so its reader is guaranteed to either deliver
// the response or fail the entry. A stream that ended in between is reopened once.
func (t *sseClientTransport) register(ctx context.Context, key string) (*sseStream, chan sseResult, error) {
	const maxAttempts = 2
	for attempt := 1; ; attempt++ {
		stream, err := t.connect(ctx)
		if err != nil {
			return nil, nil, err
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil, nil, ErrTransportClosed
		}
		if t.stream == stream {
			ch := make(chan sseResult, 1)
			t.pending[key] = ch
			t.mu.Unlock()
			return stream, ch, nil
		}
		t.mu.Unlock()

		if attempt == maxAttempts {
			return nil, nil, fmt.Errorf("event stream closed before request %s was sent", key)
		}
		t.logger.Debugf("sse transport %s: stream ended before request %s, reopening", t.connectionID, key)
	}
}

// SendNotification implements Transport.
func (t *sseClientTransport) SendNotification(ctx context.Context, notification *JSONRPCNotification) error {
	stream, err := t.connect(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	_, err = t.postMessage(ctx, stream.messageURL, notification.Method, body)
	return err
}

// postMessage POSTs body to the message endpoint. It returns a response envelope only when the
// server put one in the POST response body.
func (t *sseClientTransport) postMessage(ctx context.Context, messageURL, method string, body []byte) (*json.RawMessage, error) {
	var direct *json.RawMessage
	err := retry.Execute(ctx, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, messageURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create HTTP request: %w", err)
		}
		applyHeaders(httpReq, t.httpHeaders, t.currentProtocolVersion())
		httpReq.Header.Set(transport.ContentTypeHeader, transport.ContentTypeJSON)

		t.logger.Debugf("sse transport %s: POST %s", t.connectionID, method)
		resp, err := t.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return &retry.StatusError{StatusCode: resp.StatusCode, Method: method, Body: readErrorBody(resp)}
		}
		defer resp.Body.Close()
		if transport.MediaType(resp.Header) != transport.ContentTypeJSON {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		var msg rawMessage
		if len(bytes.TrimSpace(data)) > 0 && json.Unmarshal(data, &msg) == nil && msg.isResponse() {
			raw := json.RawMessage(data)
			direct = &raw
		}
		return nil
	}, t.retryConfig, method)
	if err != nil {
		return nil, unwrapAuthError(err)
	}
	return direct, nil
}

// connect returns the open stream, opening it first when needed.
func (t *sseClientTransport) connect(ctx context.Context) (*sseStream, error) {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	if t.stream != nil {
		s := t.stream
		t.mu.Unlock()
		return s, nil
	}
	t.mu.Unlock()

	stream, err := reconnect.Connect(ctx, t.reconnectConfig, t.openStream)
	if err != nil {
		return nil, unwrapAuthError(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		stream.cancel()
		return nil, ErrTransportClosed
	}
	t.stream = stream
	return stream, nil
}

// openStream issues the GET and waits for the endpoint event. The stream outlives ctx; ctx only
// bounds the wait for the endpoint.
func (t *sseClientTransport) openStream(ctx context.Context) (*sseStream, error) {
	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)

	fail := func(err error) (*sseStream, error) {
		stop()
		cancel()
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.sseURL.String(), nil)
	if err != nil {
		return fail(&reconnect.Permanent{Err: fmt.Errorf("failed to create HTTP request: %w", err)})
	}
	applyHeaders(httpReq, t.httpHeaders, t.currentProtocolVersion())
	httpReq.Header.Set(transport.AcceptHeader, transport.ContentTypeSSE)
	httpReq.Header.Set("Cache-Control", "no-cache")

	t.logger.Debugf("sse transport %s: opening stream %s", t.connectionID, t.sseURL)
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			return fail(&reconnect.Permanent{Err: authErr})
		}
		return fail(err)
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := &retry.StatusError{StatusCode: resp.StatusCode, Method: "open event stream", Body: readErrorBody(resp)}
		if !statusErr.Retryable() {
			return fail(&reconnect.Permanent{Err: statusErr})
		}
		return fail(statusErr)
	}
	if mt := transport.MediaType(resp.Header); mt != transport.ContentTypeSSE {
		resp.Body.Close()
		return fail(&reconnect.Permanent{Err: fmt.Errorf("event stream has content type %q", mt)})
	}

	reader := transport.NewEventReader(resp.Body)
	messageURL, err := t.awaitEndpoint(reader)
	if err != nil {
		resp.Body.Close()
		return fail(err)
	}
	if !stop() {
		// ctx ended while the endpoint arrived; the stream is already canceled.
		resp.Body.Close()
		return nil, ctx.Err()
	}

	stream := &sseStream{messageURL: messageURL, cancel: cancel, done: make(chan struct{})}
	go t.readLoop(stream, reader, resp.Body)
	t.logger.Debugf("sse transport %s: message endpoint %s", t.connectionID, messageURL)
	return stream, nil
}

// awaitEndpoint reads events until the endpoint event and resolves its URL against the stream URL.
func (t *sseClientTransport) awaitEndpoint(reader *transport.EventReader) (string, error) {
	for {
		ev, err := reader.Next()
		if err != nil {
			return "", fmt.Errorf("event stream ended before the endpoint event: %w", err)
		}
		if ev.Event != "endpoint" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(ev.Data))
		if err != nil || ev.Data == "" {
			return "", &reconnect.Permanent{Err: fmt.Errorf("invalid endpoint event %q", ev.Data)}
		}
		endpoint := t.sseURL.ResolveReference(ref)
		if endpoint.Scheme != t.sseURL.Scheme || endpoint.Host != t.sseURL.Host {
			return "", &reconnect.Permanent{Err: fmt.Errorf("endpoint origin %s does not match the stream origin", endpoint.Host)}
		}
		return endpoint.String(), nil
	}
}

// readLoop delivers responses from the stream until it ends, then fails the pending requests.
func (t *sseClientTransport) readLoop(stream *sseStream, reader *transport.EventReader, body io.ReadCloser) {
	defer close(stream.done)
	defer body.Close()

	var streamErr error
	for {
		ev, err := reader.Next()
		if err != nil {
			streamErr = err
			break
		}
		if ev.Event != "message" || ev.Data == "" {
			continue
		}
		var msg rawMessage
		if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
			t.logger.Warnf("sse transport %s: invalid message event: %v", t.connectionID, err)
			continue
		}
		if !msg.isResponse() {
			t.logger.Debugf("sse transport %s: ignoring server message %q", t.connectionID, msg.Method)
			continue
		}
		raw := json.RawMessage(ev.Data)
		t.deliver(idKey(msg.ID), sseResult{raw: &raw})
	}

	t.mu.Lock()
	if t.stream == stream {
		t.stream = nil
	}
	closed := t.closed
	t.mu.Unlock()

	if closed {
		streamErr = ErrTransportClosed
	} else if reconnect.IsStreamDisconnectedError(streamErr) {
		t.logger.Debugf("sse transport %s: stream disconnected", t.connectionID)
	} else {
		t.logger.Warnf("sse transport %s: stream failed: %v", t.connectionID, streamErr)
	}
	t.failPending(fmt.Errorf("event stream closed: %w", streamErr))
}

func (t *sseClientTransport) deliver(key string, res sseResult) {
	t.mu.Lock()
	ch, ok := t.pending[key]
	if ok {
		delete(t.pending, key)
	}
	t.mu.Unlock()
	if !ok {
		t.logger.Debugf("sse transport %s: no pending request for id %s", t.connectionID, key)
		return
	}
	ch <- res
}

func (t *sseClientTransport) failPending(err error) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[string]chan sseResult)
	t.mu.Unlock()
	for _, ch := range pending {
		ch <- sseResult{err: err}
	}
}

func (t *sseClientTransport) removePending(key string) {
	t.mu.Lock()
	delete(t.pending, key)
	t.mu.Unlock()
}

// Close implements Transport.
func (t *sseClientTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	stream := t.stream
	t.stream = nil
	t.mu.Unlock()

	if stream != nil {
		stream.cancel()
		select {
		case <-stream.done:
		case <-time.After(streamCloseTimeout):
			t.logger.Warnf("sse transport %s: stream reader did not stop", t.connectionID)
		}
	}
	t.failPending(ErrTransportClosed)
	t.httpClient.CloseIdleConnections()
	return nil
}
