// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Future is the pending result of an AsyncClient call.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(value T, err error) {
	f.value, f.err = value, err
	close(f.done)
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the call finishes or ctx ends. Giving up on ctx does not cancel the call;
// the request timeout of the client does.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncOption configures an AsyncClient.
type AsyncOption func(*asyncConfig)

type asyncConfig struct {
	requestTimeout time.Duration
	clientOptions  []ClientOption
}

// WithRequestTimeout bounds every call of the async client. Zero means no bound beyond the
// caller's context.
func WithRequestTimeout(timeout time.Duration) AsyncOption {
	return func(c *asyncConfig) { c.requestTimeout = timeout }
}

// WithAsyncClientOptions passes options to the underlying Client.
func WithAsyncClientOptions(options ...ClientOption) AsyncOption {
	return func(c *asyncConfig) { c.clientOptions = append(c.clientOptions, options...) }
}

// AsyncClient is a non-blocking MCP client: every call returns a Future immediately and runs
// on its own goroutine.
type AsyncClient struct {
	client         *Client
	requestTimeout time.Duration

	mu       sync.RWMutex
	closed   bool
	inflight conc.WaitGroup
}

// NewAsyncClient creates a non-blocking client that owns transport.
func NewAsyncClient(transport Transport, clientInfo Implementation, options ...AsyncOption) (*AsyncClient, error) {
	var cfg asyncConfig
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.requestTimeout < 0 {
		return nil, fmt.Errorf("%w: negative request timeout %s", ErrInvalidArgument, cfg.requestTimeout)
	}
	c, err := NewClient(transport, clientInfo, cfg.clientOptions...)
	if err != nil {
		return nil, err
	}
	return &AsyncClient{client: c, requestTimeout: cfg.requestTimeout}, nil
}

// RequestTimeout returns the bound applied to every call.
func (a *AsyncClient) RequestTimeout() time.Duration {
	return a.requestTimeout
}

// GetState returns the current client state.
func (a *AsyncClient) GetState() State {
	return a.client.GetState()
}

// GetClientInfo returns the identity sent in initialize.
func (a *AsyncClient) GetClientInfo() Implementation {
	return a.client.GetClientInfo()
}

// GetTransportInfo returns the configuration of the underlying transport.
func (a *AsyncClient) GetTransportInfo() TransportInfo {
	return a.client.GetTransportInfo()
}

// GetInitializeResult returns the server answer to initialize, or nil before Initialize.
func (a *AsyncClient) GetInitializeResult() *InitializeResult {
	return a.client.GetInitializeResult()
}

// submit runs fn on a tracked goroutine. A panic in fn is turned into the future's error.
func submit[T any](a *AsyncClient, ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		var zero T
		f.complete(zero, ErrTransportClosed)
		return f
	}

	a.inflight.Go(func() {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if a.requestTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, a.requestTimeout)
		}
		defer cancel()

		var (
			value T
			err   error
			pc    panics.Catcher
		)
		pc.Try(func() { value, err = fn(callCtx) })
		if r := pc.Recovered(); r != nil {
			err = r.AsError()
		}
		f.complete(value, err)
	})
	return f
}

// Initialize performs the MCP handshake.
func (a *AsyncClient) Initialize(ctx context.Context, req *InitializeRequest) *Future[*InitializeResult] {
	return submit(a, ctx, func(ctx context.Context) (*InitializeResult, error) {
		return a.client.Initialize(ctx, req)
	})
}

// Ping checks that the server is responsive.
func (a *AsyncClient) Ping(ctx context.Context) *Future[struct{}] {
	return submit(a, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.client.Ping(ctx)
	})
}

// ListTools lists available tools.
func (a *AsyncClient) ListTools(ctx context.Context, req *ListToolsRequest) *Future[*ListToolsResult] {
	return submit(a, ctx, func(ctx context.Context) (*ListToolsResult, error) {
		return a.client.ListTools(ctx, req)
	})
}

// CallTool calls a tool.
func (a *AsyncClient) CallTool(ctx context.Context, req *CallToolRequest) *Future[*CallToolResult] {
	return submit(a, ctx, func(ctx context.Context) (*CallToolResult, error) {
		return a.client.CallTool(ctx, req)
	})
}

// ListResources lists available resources.
func (a *AsyncClient) ListResources(ctx context.Context, req *ListResourcesRequest) *Future[*ListResourcesResult] {
	return submit(a, ctx, func(ctx context.Context) (*ListResourcesResult, error) {
		return a.client.ListResources(ctx, req)
	})
}

// ReadResource reads a specific resource.
func (a *AsyncClient) ReadResource(ctx context.Context, req *ReadResourceRequest) *Future[*ReadResourceResult] {
	return submit(a, ctx, func(ctx context.Context) (*ReadResourceResult, error) {
		return a.client.ReadResource(ctx, req)
	})
}

// ListPrompts lists available prompts.
func (a *AsyncClient) ListPrompts(ctx context.Context, req *ListPromptsRequest) *Future[*ListPromptsResult] {
	return submit(a, ctx, func(ctx context.Context) (*ListPromptsResult, error) {
		return a.client.ListPrompts(ctx, req)
	})
}

// GetPrompt gets a specific prompt.
func (a *AsyncClient) GetPrompt(ctx context.Context, req *GetPromptRequest) *Future[*GetPromptResult] {
	return submit(a, ctx, func(ctx context.Context) (*GetPromptResult, error) {
		return a.client.GetPrompt(ctx, req)
	})
}

// Close rejects new calls, waits for the calls in flight and closes the transport.
func (a *AsyncClient) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.inflight.Wait()
	return a.client.Close()
}
