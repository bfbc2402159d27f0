// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

const (
	// DefaultClientName identifies clients created without a name.
	DefaultClientName = "trpc-mcp-go Client"
	// ClientVersion is the version reported by factory clients.
	ClientVersion = "0.3.1"
)

// NormalizeIdentity returns the client identity for name. A blank name is replaced by
// DefaultClientName; any other name is kept exactly as given.
func NormalizeIdentity(name string) Implementation {
	if strings.TrimSpace(name) == "" {
		name = DefaultClientName
	}
	return Implementation{Name: name, Version: ClientVersion}
}

// clientFactory assembles authenticated clients. Its fields are the constructors it calls.
type clientFactory struct {
	streamable   func(serverURL, endpoint string) TransportBuilder
	eventStream  func(serverURL, endpoint string) TransportBuilder
	authenticate func(builder TransportBuilder, provider OAuthClientProvider) TransportBuilder
	newAsync     func(transport Transport, info Implementation, requestTimeout time.Duration) (*AsyncClient, error)
	newSync      func(transport Transport, info Implementation) (*SyncClient, error)
}

var defaultFactory = clientFactory{
	streamable: func(serverURL, endpoint string) TransportBuilder {
		return ForStreamable(serverURL).Endpoint(endpoint)
	},
	eventStream: func(serverURL, endpoint string) TransportBuilder {
		return ForEventStream(serverURL).Endpoint(endpoint)
	},
	authenticate: func(builder TransportBuilder, provider OAuthClientProvider) TransportBuilder {
		return WithAuthentication(builder, provider)
	},
	newAsync: func(transport Transport, info Implementation, requestTimeout time.Duration) (*AsyncClient, error) {
		return NewAsyncClient(transport, info, WithRequestTimeout(requestTimeout))
	},
	newSync: func(transport Transport, info Implementation) (*SyncClient, error) {
		return NewSyncClient(transport, info)
	},
}

// CreateAuthenticatedAsyncClient returns a non-blocking client that talks streamable HTTP to
// serverURL at endpoint, authenticating every request with provider. Every call on the client
// is bounded by requestTimeout.
//
// No network I/O happens here; the first request performs the connection and, when needed,
// the OAuth flow. Errors match ErrInvalidArgument for a blank serverURL or nil provider and
// ErrTransportConstruction for a URL that cannot be used.
func CreateAuthenticatedAsyncClient(
	serverURL string,
	provider OAuthClientProvider,
	name, endpoint string,
	requestTimeout time.Duration,
) (*AsyncClient, error) {
	return defaultFactory.createAsync(serverURL, provider, name, endpoint, requestTimeout)
}

// CreateAuthenticatedSyncClient returns a blocking client that talks HTTP+SSE to serverURL,
// opening the event stream at DefaultSSEEndpoint and authenticating every request with
// provider.
//
// Unlike the async variant it takes no endpoint and no request timeout: every call is bounded by
// DefaultSyncRequestTimeout and by the context passed to it.
func CreateAuthenticatedSyncClient(serverURL string, provider OAuthClientProvider, name string) (*SyncClient, error) {
	return defaultFactory.createSync(serverURL, provider, name)
}

func (f clientFactory) createAsync(
	serverURL string,
	provider OAuthClientProvider,
	name, endpoint string,
	requestTimeout time.Duration,
) (*AsyncClient, error) {
	if err := checkFactoryArgs(serverURL, provider); err != nil {
		return nil, err
	}
	identity := NormalizeIdentity(name)
	transport, err := f.authenticate(f.streamable(serverURL, endpoint), provider).Build()
	if err != nil {
		return nil, err
	}
	c, err := f.newAsync(transport, identity, requestTimeout)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return c, nil
}

func (f clientFactory) createSync(serverURL string, provider OAuthClientProvider, name string) (*SyncClient, error) {
	if err := checkFactoryArgs(serverURL, provider); err != nil {
		return nil, err
	}
	identity := NormalizeIdentity(name)
	transport, err := f.authenticate(f.eventStream(serverURL, DefaultSSEEndpoint), provider).Build()
	if err != nil {
		return nil, err
	}
	c, err := f.newSync(transport, identity)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return c, nil
}

func checkFactoryArgs(serverURL string, provider OAuthClientProvider) error {
	if strings.TrimSpace(serverURL) == "" {
		return fmt.Errorf("%w: server URL is blank", ErrInvalidArgument)
	}
	if isNilProvider(provider) {
		return fmt.Errorf("%w: credential provider is nil", ErrInvalidArgument)
	}
	return nil
}

// isNilProvider also catches a nil pointer stored in the interface.
func isNilProvider(provider OAuthClientProvider) bool {
	if provider == nil {
		return true
	}
	v := reflect.ValueOf(provider)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Interface, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}
