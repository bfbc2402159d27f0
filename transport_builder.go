// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/reconnect"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/retry"
)

// DefaultSSEEndpoint is the stream path of the legacy HTTP+SSE transport.
const DefaultSSEEndpoint = "/sse"

// RoundTripperDecorator wraps the HTTP round tripper of a transport.
type RoundTripperDecorator func(http.RoundTripper) http.RoundTripper

// TransportBuilder describes a transport that has not been built yet.
//
// Builders are immutable: every setter and Decorate return a new builder, so one builder can be
// shared and extended from several goroutines.
type TransportBuilder interface {
	// Build validates the configuration and returns a new transport. It performs no network I/O.
	// Errors wrap ErrTransportConstruction.
	Build() (Transport, error)
	// Decorate returns a builder whose transports send through d. Decorators added later
	// wrap the earlier ones.
	Decorate(d RoundTripperDecorator) TransportBuilder
}

// authDecoratable is implemented by the builders of this package so that WithAuthentication can
// mark the built transport as authenticated.
type authDecoratable interface {
	decorateAuth(d RoundTripperDecorator) TransportBuilder
}

// transportConfig includes transport layer configuration.
type transportConfig struct {
	serverURL       string
	endpoint        string
	httpClient      *http.Client
	httpHeaders     http.Header
	logger          Logger
	retryConfig     *retry.Config
	reconnectConfig reconnect.Config
	protocolVersion string
	decorators      []RoundTripperDecorator
	authenticated   bool
}

// newDefaultTransportConfig creates a default transport configuration.
func newDefaultTransportConfig(serverURL, endpoint string) transportConfig {
	return transportConfig{
		serverURL:       serverURL,
		endpoint:        endpoint,
		logger:          GetDefaultLogger(),
		reconnectConfig: reconnect.DefaultConfig(),
	}
}

// clone copies the reference fields so that the copy can be changed independently.
func (c transportConfig) clone() transportConfig {
	n := c
	if c.httpHeaders != nil {
		n.httpHeaders = c.httpHeaders.Clone()
	}
	if c.retryConfig != nil {
		rc := *c.retryConfig
		n.retryConfig = &rc
	}
	n.decorators = append([]RoundTripperDecorator(nil), c.decorators...)
	return n
}

// resolvedConfig is a validated transportConfig, ready for a transport.
type resolvedConfig struct {
	serverURL       *url.URL
	endpoint        *url.URL
	httpClient      *http.Client
	headers         http.Header
	logger          Logger
	retryConfig     *retry.Config
	reconnectConfig reconnect.Config
	protocolVersion string
	authenticated   bool
}

// resolve parses the server URL and endpoint and assembles the decorated HTTP client.
func (c transportConfig) resolve() (*resolvedConfig, error) {
	raw := strings.TrimSpace(c.serverURL)
	if raw == "" {
		return nil, fmt.Errorf("%w: server URL is empty", ErrTransportConstruction)
	}
	serverURL, err := parseHTTPURL(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: server URL: %v", ErrTransportConstruction, err)
	}

	endpoint := serverURL
	if c.endpoint != "" {
		ref, err := url.Parse(c.endpoint)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid endpoint %q: %v", ErrTransportConstruction, c.endpoint, err)
		}
		endpoint = serverURL.ResolveReference(ref)
		if _, err := parseHTTPURL(endpoint.String()); err != nil {
			return nil, fmt.Errorf("%w: endpoint: %v", ErrTransportConstruction, err)
		}
	}

	return &resolvedConfig{
		serverURL:       serverURL,
		endpoint:        endpoint,
		httpClient:      c.buildHTTPClient(),
		headers:         cloneHeader(c.httpHeaders),
		logger:          loggerOrNop(c.logger),
		retryConfig:     c.retryConfig,
		reconnectConfig: c.reconnectConfig,
		protocolVersion: c.protocolVersion,
		authenticated:   c.authenticated,
	}, nil
}

// buildHTTPClient returns a copy of the configured client with every decorator applied.
func (c transportConfig) buildHTTPClient() *http.Client {
	var hc http.Client
	if c.httpClient != nil {
		hc = *c.httpClient
	}
	rt := hc.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	for _, d := range c.decorators {
		rt = d(rt)
	}
	hc.Transport = rt
	return &hc
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host in %q", raw)
	}
	return u, nil
}

// StreamableTransportBuilder builds streamable HTTP transports.
type StreamableTransportBuilder struct {
	cfg transportConfig
}

// ForStreamable starts a streamable HTTP transport for serverURL. Requests go to the server URL
// itself unless Endpoint is set.
func ForStreamable(serverURL string) *StreamableTransportBuilder {
	return &StreamableTransportBuilder{cfg: newDefaultTransportConfig(serverURL, "")}
}

func (b *StreamableTransportBuilder) with(fn func(*transportConfig)) *StreamableTransportBuilder {
	nb := &StreamableTransportBuilder{cfg: b.cfg.clone()}
	fn(&nb.cfg)
	return nb
}

// Endpoint sets the MCP endpoint path, resolved against the server URL.
func (b *StreamableTransportBuilder) Endpoint(path string) *StreamableTransportBuilder {
	return b.with(func(c *transportConfig) { c.endpoint = path })
}

// HTTPClient sets the base HTTP client. Its Transport is wrapped by the decorators.
func (b *StreamableTransportBuilder) HTTPClient(client *http.Client) *StreamableTransportBuilder {
	return b.with(func(c *transportConfig) { c.httpClient = client })
}

// Headers adds custom headers sent with every request.
func (b *StreamableTransportBuilder) Headers(headers http.Header) *StreamableTransportBuilder {
	return b.with(func(c *transportConfig) { c.httpHeaders = mergeHeaders(c.httpHeaders, headers) })
}

// Logger sets the transport logger.
func (b *StreamableTransportBuilder) Logger(logger Logger) *StreamableTransportBuilder {
	return b.with(func(c *transportConfig) { c.logger = logger })
}

// Retry enables request-level retry.
func (b *StreamableTransportBuilder) Retry(config RetryConfig) *StreamableTransportBuilder {
	return b.with(func(c *transportConfig) { c.retryConfig = config.validated() })
}

// ProtocolVersion sets the MCP-Protocol-Version header sent before a version is negotiated.
func (b *StreamableTransportBuilder) ProtocolVersion(version string) *StreamableTransportBuilder {
	return b.with(func(c *transportConfig) { c.protocolVersion = version })
}

// Decorate implements TransportBuilder.
func (b *StreamableTransportBuilder) Decorate(d RoundTripperDecorator) TransportBuilder {
	return b.with(func(c *transportConfig) { c.decorators = append(c.decorators, d) })
}

func (b *StreamableTransportBuilder) decorateAuth(d RoundTripperDecorator) TransportBuilder {
	return b.with(func(c *transportConfig) {
		c.decorators = append(c.decorators, d)
		c.authenticated = true
	})
}

// Build implements TransportBuilder.
func (b *StreamableTransportBuilder) Build() (Transport, error) {
	resolved, err := b.cfg.resolve()
	if err != nil {
		return nil, err
	}
	return newStreamableHTTPClientTransport(resolved), nil
}

// EventStreamTransportBuilder builds legacy HTTP+SSE transports.
type EventStreamTransportBuilder struct {
	cfg transportConfig
}

// ForEventStream starts an HTTP+SSE transport for serverURL. The stream is opened at
// DefaultSSEEndpoint unless Endpoint is set.
func ForEventStream(serverURL string) *EventStreamTransportBuilder {
	return &EventStreamTransportBuilder{cfg: newDefaultTransportConfig(serverURL, DefaultSSEEndpoint)}
}

func (b *EventStreamTransportBuilder) with(fn func(*transportConfig)) *EventStreamTransportBuilder {
	nb := &EventStreamTransportBuilder{cfg: b.cfg.clone()}
	fn(&nb.cfg)
	return nb
}

// Endpoint sets the event stream path, resolved against the server URL.
func (b *EventStreamTransportBuilder) Endpoint(path string) *EventStreamTransportBuilder {
	return b.with(func(c *transportConfig) { c.endpoint = path })
}

// HTTPClient sets the base HTTP client. It must not set a Timeout, which would cut the stream.
func (b *EventStreamTransportBuilder) HTTPClient(client *http.Client) *EventStreamTransportBuilder {
	return b.with(func(c *transportConfig) { c.httpClient = client })
}

// Headers adds custom headers sent with the stream request and every message.
func (b *EventStreamTransportBuilder) Headers(headers http.Header) *EventStreamTransportBuilder {
	return b.with(func(c *transportConfig) { c.httpHeaders = mergeHeaders(c.httpHeaders, headers) })
}

// Logger sets the transport logger.
func (b *EventStreamTransportBuilder) Logger(logger Logger) *EventStreamTransportBuilder {
	return b.with(func(c *transportConfig) { c.logger = logger })
}

// Retry enables retry of message POSTs.
func (b *EventStreamTransportBuilder) Retry(config RetryConfig) *EventStreamTransportBuilder {
	return b.with(func(c *transportConfig) { c.retryConfig = config.validated() })
}

// Reconnect sets how opening the event stream is retried.
func (b *EventStreamTransportBuilder) Reconnect(config ReconnectConfig) *EventStreamTransportBuilder {
	return b.with(func(c *transportConfig) { c.reconnectConfig = config.validated() })
}

// ProtocolVersion sets the MCP-Protocol-Version header sent before a version is negotiated.
func (b *EventStreamTransportBuilder) ProtocolVersion(version string) *EventStreamTransportBuilder {
	return b.with(func(c *transportConfig) { c.protocolVersion = version })
}

// Decorate implements TransportBuilder.
func (b *EventStreamTransportBuilder) Decorate(d RoundTripperDecorator) TransportBuilder {
	return b.with(func(c *transportConfig) { c.decorators = append(c.decorators, d) })
}

func (b *EventStreamTransportBuilder) decorateAuth(d RoundTripperDecorator) TransportBuilder {
	return b.with(func(c *transportConfig) {
		c.decorators = append(c.decorators, d)
		c.authenticated = true
	})
}

// Build implements TransportBuilder.
func (b *EventStreamTransportBuilder) Build() (Transport, error) {
	resolved, err := b.cfg.resolve()
	if err != nil {
		return nil, err
	}
	return newSSEClientTransport(resolved), nil
}

func mergeHeaders(dst, src http.Header) http.Header {
	if dst == nil {
		dst = make(http.Header, len(src))
	}
	for k, v := range src {
		dst[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	return dst
}
