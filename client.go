// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// State represents the client state.
type State string

// Client state constants.
const (
	// StateDisconnected indicates the client is not connected to any server.
	StateDisconnected State = "disconnected"
	// StateConnected indicates the client has established a connection but not initialized.
	StateConnected State = "connected"
	// StateInitialized indicates the client is fully initialized and ready for use.
	StateInitialized State = "initialized"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// supportedProtocolVersions lists the versions this client accepts from a server.
var supportedProtocolVersions = map[string]bool{
	ProtocolVersion_2024_11_05: true,
	ProtocolVersion_2025_03_26: true,
	ProtocolVersion_2025_06_18: true,
}

// protocolVersionSetter is implemented by transports that send the negotiated version header.
type protocolVersionSetter interface {
	setProtocolVersion(version string)
}

// Client is the blocking MCP client core shared by SyncClient and AsyncClient.
// It is safe for concurrent use once initialized.
type Client struct {
	transport       Transport      // owned exclusively by this client.
	clientInfo      Implementation // Client information.
	protocolVersion string         // Protocol version offered in initialize.
	requestID       atomic.Int64   // Atomic counter for request IDs.
	capabilities    ClientCapabilities
	logger          Logger
	requestTimeout  time.Duration // Bound of every request; zero leaves only the caller's context.

	mu          sync.RWMutex
	state       State
	initialized bool
	initResult  *InitializeResult
}

// ClientOption client option function
type ClientOption func(*Client)

// NewClient creates a client that talks through transport. The client takes ownership of the
// transport and closes it on Close.
func NewClient(transport Transport, clientInfo Implementation, options ...ClientOption) (*Client, error) {
	if transport == nil || reflect.ValueOf(transport).Kind() == reflect.Ptr && reflect.ValueOf(transport).IsNil() {
		return nil, fmt.Errorf("%w: transport is nil", ErrInvalidArgument)
	}
	c := &Client{
		transport:       transport,
		clientInfo:      clientInfo,
		protocolVersion: ProtocolVersion_2025_03_26, // Default compatible version.
		logger:          GetDefaultLogger(),
		state:           StateDisconnected,
	}
	for _, option := range options {
		option(c)
	}
	c.logger = loggerOrNop(c.logger)
	return c, nil
}

// WithProtocolVersion sets the protocol version offered in initialize.
func WithProtocolVersion(version string) ClientOption {
	return func(c *Client) {
		c.protocolVersion = version
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCallTimeout bounds every request the client sends, the initialize handshake included.
// Zero or a negative value means no bound beyond the caller's context.
func WithCallTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = max(timeout, 0)
	}
}

// WithClientCapabilities sets the capabilities announced in initialize.
func WithClientCapabilities(capabilities ClientCapabilities) ClientOption {
	return func(c *Client) {
		c.capabilities = capabilities
	}
}

// GetState returns the current client state.
func (c *Client) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Client) isInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// RequestTimeout returns the bound applied to every request, zero when there is none.
func (c *Client) RequestTimeout() time.Duration {
	return c.requestTimeout
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// GetClientInfo returns the identity sent in initialize.
func (c *Client) GetClientInfo() Implementation {
	return c.clientInfo
}

// GetTransportInfo returns the configuration of the underlying transport.
func (c *Client) GetTransportInfo() TransportInfo {
	return c.transport.Info()
}

// GetInitializeResult returns the server answer to initialize, or nil before Initialize.
func (c *Client) GetInitializeResult() *InitializeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initResult
}

// GetSessionID returns the transport session id, or "" when the transport has none.
func (c *Client) GetSessionID() string {
	if st, ok := c.transport.(SessionTransport); ok {
		return st.GetSessionID()
	}
	return ""
}

// Initialize performs the MCP handshake. req may be nil; a non-empty req.Params replaces the
// defaults built from the client options.
func (c *Client) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResult, error) {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil, ErrAlreadyInitialized
	}
	c.mu.Unlock()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := InitializeRequest{}.Params
	params.ProtocolVersion = c.protocolVersion
	params.Capabilities = c.capabilities
	params.ClientInfo = c.clientInfo
	if req != nil && !isZeroStruct(req.Params) {
		params = req.Params
	}

	rpcReq := newJSONRPCRequest(c.requestID.Add(1), MethodInitialize, params)
	raw, err := c.transport.SendRequest(ctx, rpcReq)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, fmt.Errorf("initialization request failed: %w", err)
	}
	// Connection is established successfully at this point
	c.setState(StateConnected)

	var result InitializeResult
	if err := decodeResult(MethodInitialize, raw, &result); err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}
	if !supportedProtocolVersions[result.ProtocolVersion] {
		c.setState(StateDisconnected)
		return nil, fmt.Errorf("server protocol version %q is not supported", result.ProtocolVersion)
	}
	if s, ok := c.transport.(protocolVersionSetter); ok {
		s.setProtocolVersion(result.ProtocolVersion)
	}

	if err := c.transport.SendNotification(ctx, newJSONRPCNotification(MethodNotificationsInitialized, nil)); err != nil {
		c.setState(StateDisconnected)
		return nil, fmt.Errorf("failed to send initialized notification: %w", err)
	}

	c.mu.Lock()
	c.initialized = true
	c.state = StateInitialized
	c.initResult = &result
	c.mu.Unlock()
	c.logger.Debugf("client: initialized with %s %s (protocol %s)",
		result.ServerInfo.Name, result.ServerInfo.Version, result.ProtocolVersion)
	return &result, nil
}

// call sends one request after the handshake and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	if !c.isInitialized() {
		return ErrNotInitialized
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := newJSONRPCRequest(c.requestID.Add(1), method, params)
	raw, err := c.transport.SendRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	return decodeResult(method, raw, out)
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, MethodPing, nil, nil)
}

// ListTools lists available tools. req may be nil.
func (c *Client) ListTools(ctx context.Context, req *ListToolsRequest) (*ListToolsResult, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodToolsList, paginatedParams(req.paginated()), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CallTool calls a tool. A tool-level failure is reported in the result's IsError, not as an error.
func (c *Client) CallTool(ctx context.Context, req *CallToolRequest) (*CallToolResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: call tool request is nil", ErrInvalidArgument)
	}
	var result CallToolResult
	if err := c.call(ctx, MethodToolsCall, req.Params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListResources lists available resources. req may be nil.
func (c *Client) ListResources(ctx context.Context, req *ListResourcesRequest) (*ListResourcesResult, error) {
	var result ListResourcesResult
	if err := c.call(ctx, MethodResourcesList, paginatedParams(req.paginated()), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadResource reads a specific resource.
func (c *Client) ReadResource(ctx context.Context, req *ReadResourceRequest) (*ReadResourceResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: read resource request is nil", ErrInvalidArgument)
	}
	var result ReadResourceResult
	if err := c.call(ctx, MethodResourcesRead, req.Params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPrompts lists available prompts. req may be nil.
func (c *Client) ListPrompts(ctx context.Context, req *ListPromptsRequest) (*ListPromptsResult, error) {
	var result ListPromptsResult
	if err := c.call(ctx, MethodPromptsList, paginatedParams(req.paginated()), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPrompt gets a specific prompt.
func (c *Client) GetPrompt(ctx context.Context, req *GetPromptRequest) (*GetPromptResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: get prompt request is nil", ErrInvalidArgument)
	}
	var result GetPromptResult
	if err := c.call(ctx, MethodPromptsGet, req.Params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Close closes the client connection and cleans up resources.
func (c *Client) Close() error {
	err := c.transport.Close()
	c.mu.Lock()
	c.state = StateDisconnected
	c.initialized = false
	c.mu.Unlock()
	return err
}

func (r *ListToolsRequest) paginated() *PaginatedRequest {
	if r == nil {
		return nil
	}
	return &r.PaginatedRequest
}

func (r *ListResourcesRequest) paginated() *PaginatedRequest {
	if r == nil {
		return nil
	}
	return &r.PaginatedRequest
}

func (r *ListPromptsRequest) paginated() *PaginatedRequest {
	if r == nil {
		return nil
	}
	return &r.PaginatedRequest
}

// paginatedParams omits params entirely for a first page request.
func paginatedParams(req *PaginatedRequest) interface{} {
	if req == nil || isZeroStruct(req.Params) {
		return nil
	}
	return req.Params
}

func isZeroStruct(x interface{}) bool {
	return reflect.ValueOf(x).IsZero()
}
