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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport answers requests in memory with cannedResults.
type fakeTransport struct {
	mu            sync.Mutex
	requests      []*JSONRPCRequest
	notifications []string
	closed        int
	version       string

	// handle overrides the canned answer when set.
	handle   func(req *JSONRPCRequest) (*json.RawMessage, error)
	notifyFn func(n *JSONRPCNotification) error
}

func (f *fakeTransport) SendRequest(ctx context.Context, req *JSONRPCRequest) (*json.RawMessage, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handle := f.handle
	f.mu.Unlock()
	if handle != nil {
		return handle(req)
	}
	id, err := json.Marshal(req.ID)
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(responseFor(&rawMessage{ID: id, Method: req.Method}))
	return &raw, nil
}

func (f *fakeTransport) SendNotification(ctx context.Context, n *JSONRPCNotification) error {
	f.mu.Lock()
	f.notifications = append(f.notifications, n.Method)
	notifyFn := f.notifyFn
	f.mu.Unlock()
	if notifyFn != nil {
		return notifyFn(n)
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) Info() TransportInfo {
	return TransportInfo{Type: TransportStreamable, ServerURL: "http://fake", Endpoint: "http://fake"}
}

func (f *fakeTransport) setProtocolVersion(version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version = version
}

func (f *fakeTransport) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Method)
	}
	return out
}

func (f *fakeTransport) lastParams() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1].Params
}

func rawResult(id interface{}, result string) *json.RawMessage {
	raw := json.RawMessage(fmt.Sprintf(`{"jsonrpc":"2.0","id":%v,"result":%s}`, id, result))
	return &raw
}

func newInitializedClient(t *testing.T, tr *fakeTransport) *Client {
	t.Helper()
	c, err := NewClient(tr, Implementation{Name: "test", Version: ClientVersion}, WithClientLogger(nopLogger{}))
	require.NoError(t, err)
	_, err = c.Initialize(context.Background(), nil)
	require.NoError(t, err)
	return c
}

func TestNewClientRejectsNilTransport(t *testing.T) {
	_, err := NewClient(nil, Implementation{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	var typedNil *fakeTransport
	_, err = NewClient(typedNil, Implementation{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewSyncClient(nil, Implementation{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestClientInitialize(t *testing.T) {
	tr := &fakeTransport{}
	c, err := NewClient(tr, Implementation{Name: "test", Version: "1.2.3"},
		WithClientLogger(nopLogger{}),
		WithProtocolVersion(ProtocolVersion_2025_06_18),
		WithClientCapabilities(ClientCapabilities{Experimental: map[string]interface{}{"x": true}}))
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, c.GetState())
	assert.Nil(t, c.GetInitializeResult())

	result, err := c.Initialize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "test-server", result.ServerInfo.Name)
	assert.Equal(t, StateInitialized, c.GetState())
	assert.Same(t, result, c.GetInitializeResult())
	assert.Equal(t, ProtocolVersion_2025_03_26, tr.version)
	assert.Equal(t, []string{MethodNotificationsInitialized}, tr.notifications)

	params, ok := tr.lastParams().(struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    ClientCapabilities `json:"capabilities"`
		ClientInfo      Implementation     `json:"clientInfo"`
	})
	require.True(t, ok)
	assert.Equal(t, ProtocolVersion_2025_06_18, params.ProtocolVersion)
	assert.Equal(t, "1.2.3", params.ClientInfo.Version)
	assert.Equal(t, true, params.Capabilities.Experimental["x"])

	_, err = c.Initialize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestClientInitializeFailures(t *testing.T) {
	tests := []struct {
		name     string
		tr       *fakeTransport
		contains string
	}{
		{
			name: "transport error",
			tr: &fakeTransport{handle: func(*JSONRPCRequest) (*json.RawMessage, error) {
				return nil, errors.New("connection refused")
			}},
			contains: "connection refused",
		},
		{
			name: "unsupported protocol version",
			tr: &fakeTransport{handle: func(req *JSONRPCRequest) (*json.RawMessage, error) {
				return rawResult(req.ID, `{"protocolVersion":"1999-01-01","capabilities":{},"serverInfo":{"name":"old","version":"0"}}`), nil
			}},
			contains: "not supported",
		},
		{
			name: "notification rejected",
			tr: &fakeTransport{notifyFn: func(*JSONRPCNotification) error {
				return errors.New("gone")
			}},
			contains: "initialized notification",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.tr, Implementation{Name: "test"}, WithClientLogger(nopLogger{}))
			require.NoError(t, err)
			_, err = c.Initialize(context.Background(), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, StateDisconnected, c.GetState())
			assert.Nil(t, c.GetInitializeResult())
		})
	}
}

func TestClientRequiresInitialize(t *testing.T) {
	tr := &fakeTransport{}
	c, err := NewClient(tr, Implementation{Name: "test"}, WithClientLogger(nopLogger{}))
	require.NoError(t, err)

	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotInitialized)
	_, err = c.ListTools(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Empty(t, tr.methods())
}

func TestClientOperations(t *testing.T) {
	tr := &fakeTransport{}
	c := newInitializedClient(t, tr)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	tools, err := c.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "echo", tools.Tools[0].Name)
	assert.Nil(t, tr.lastParams())

	call := &CallToolRequest{}
	call.Params.Name = "echo"
	call.Params.Arguments = map[string]interface{}{"text": "hello"}
	called, err := c.CallTool(ctx, call)
	require.NoError(t, err)
	require.Len(t, called.Content, 1)
	text, ok := called.Content[0].(TextContent)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Text)

	resources, err := c.ListResources(ctx, &ListResourcesRequest{})
	require.NoError(t, err)
	require.Len(t, resources.Resources, 1)
	assert.Equal(t, "file:///a.txt", resources.Resources[0].URI)

	contents, err := c.ReadResource(ctx, NewReadResourceRequest("file:///a.txt"))
	require.NoError(t, err)
	require.Len(t, contents.Contents, 1)
	assert.Equal(t, "A", contents.Contents[0].(TextResourceContents).Text)

	prompts, err := c.ListPrompts(ctx, nil)
	require.NoError(t, err)
	require.Len(t, prompts.Prompts, 1)

	prompt, err := c.GetPrompt(ctx, NewGetPromptRequest("greet", map[string]string{"who": "world"}))
	require.NoError(t, err)
	require.Len(t, prompt.Messages, 1)
	assert.Equal(t, RoleUser, prompt.Messages[0].Role)

	assert.Equal(t, []string{
		MethodInitialize, MethodPing, MethodToolsList, MethodToolsCall,
		MethodResourcesList, MethodResourcesRead, MethodPromptsList, MethodPromptsGet,
	}, tr.methods())
}

func TestClientPaginationCursor(t *testing.T) {
	tr := &fakeTransport{}
	c := newInitializedClient(t, tr)

	req := &ListToolsRequest{}
	req.Params.Cursor = "page-2"
	_, err := c.ListTools(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.Params, tr.lastParams())
}

func TestClientNilRequests(t *testing.T) {
	c := newInitializedClient(t, &fakeTransport{})
	ctx := context.Background()

	_, err := c.CallTool(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = c.ReadResource(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = c.GetPrompt(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestClientRPCError(t *testing.T) {
	tr := &fakeTransport{}
	c := newInitializedClient(t, tr)
	tr.handle = func(req *JSONRPCRequest) (*json.RawMessage, error) {
		raw := json.RawMessage(fmt.Sprintf(`{"jsonrpc":"2.0","id":%v,"error":{"code":%d,"message":"no such tool"}}`,
			req.ID, ErrCodeInvalidParams))
		return &raw, nil
	}

	call := &CallToolRequest{}
	call.Params.Name = "missing"
	_, err := c.CallTool(context.Background(), call)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, ErrCodeInvalidParams, rpcErr.Code)
	assert.Equal(t, MethodToolsCall, rpcErr.Method)
	assert.Equal(t, "no such tool", rpcErr.Message)
}

func TestClientClose(t *testing.T) {
	tr := &fakeTransport{}
	c := newInitializedClient(t, tr)

	require.NoError(t, c.Close())
	assert.Equal(t, 1, tr.closed)
	assert.Equal(t, StateDisconnected, c.GetState())
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotInitialized)
}

func TestClientAccessors(t *testing.T) {
	tr := &fakeTransport{}
	c, err := NewSyncClient(tr, Implementation{Name: "acc", Version: "0.1"})
	require.NoError(t, err)
	assert.Equal(t, Implementation{Name: "acc", Version: "0.1"}, c.GetClientInfo())
	assert.Equal(t, TransportStreamable, c.GetTransportInfo().Type)
	assert.Empty(t, c.GetSessionID())
}

// deadlineRecorder answers like fakeTransport and records the deadline of each request.
type deadlineRecorder struct {
	*fakeTransport
	deadlines []time.Time
}

func (d *deadlineRecorder) SendRequest(ctx context.Context, req *JSONRPCRequest) (*json.RawMessage, error) {
	deadline, ok := ctx.Deadline()
	if ok {
		d.deadlines = append(d.deadlines, deadline)
	}
	return d.fakeTransport.SendRequest(ctx, req)
}

func TestSyncClientDefaultRequestTimeout(t *testing.T) {
	tr := &deadlineRecorder{fakeTransport: &fakeTransport{}}
	c, err := NewSyncClient(tr, Implementation{Name: "sync"}, WithClientLogger(nopLogger{}))
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncRequestTimeout, c.RequestTimeout())

	start := time.Now()
	_, err = c.Initialize(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))

	require.Len(t, tr.deadlines, 2)
	for _, deadline := range tr.deadlines {
		assert.WithinDuration(t, start.Add(DefaultSyncRequestTimeout), deadline, time.Second)
	}
}

func TestSyncClientStalledCallTimesOut(t *testing.T) {
	deadlines := make(chan time.Time, 1)
	c, err := NewSyncClient(&deadlineTransport{fakeTransport: &fakeTransport{}, deadlines: deadlines},
		Implementation{Name: "sync"},
		WithClientLogger(nopLogger{}),
		WithCallTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Initialize(context.Background(), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateDisconnected, c.GetState())
}

func TestClientWithoutCallTimeoutUsesCallerContext(t *testing.T) {
	tr := &deadlineRecorder{fakeTransport: &fakeTransport{}}
	c, err := NewClient(tr, Implementation{Name: "plain"}, WithClientLogger(nopLogger{}))
	require.NoError(t, err)
	assert.Zero(t, c.RequestTimeout())

	_, err = c.Initialize(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, tr.deadlines)
}
