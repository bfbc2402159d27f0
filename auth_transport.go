// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/auth/client"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/transport"
)

// instrumentationName scopes the spans and metrics of this module.
const instrumentationName = "trpc.group/trpc-go/trpc-mcp-authclient-go"

// Telemetry names of the authentication decorator.
const (
	RefreshSpanName      = "mcp.auth.refresh"
	RefreshCounterName   = "mcp_auth_refresh_total"
	FailureCounterName   = "mcp_auth_failures_total"
	refreshResultSuccess = "success"
)

// AuthOption configures WithAuthentication.
type AuthOption func(*authConfig)

type authConfig struct {
	logger         Logger
	httpClient     *http.Client
	scope          string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	clock          clockwork.Clock
}

// WithAuthLogger sets the logger of the decorator.
func WithAuthLogger(logger Logger) AuthOption {
	return func(c *authConfig) { c.logger = logger }
}

// WithAuthHTTPClient sets the client used to reach the OAuth endpoints. By default they are
// reached through the undecorated transport of the MCP connection.
func WithAuthHTTPClient(client *http.Client) AuthOption {
	return func(c *authConfig) { c.httpClient = client }
}

// WithAuthScope sets the scope requested when the OAuth flow runs.
func WithAuthScope(scope string) AuthOption {
	return func(c *authConfig) { c.scope = scope }
}

// WithAuthTracerProvider sets the tracer provider. The global provider is used by default.
func WithAuthTracerProvider(tp trace.TracerProvider) AuthOption {
	return func(c *authConfig) { c.tracerProvider = tp }
}

// WithAuthMeterProvider sets the meter provider. The global provider is used by default.
func WithAuthMeterProvider(mp metric.MeterProvider) AuthOption {
	return func(c *authConfig) { c.meterProvider = mp }
}

// WithAuthClock sets the clock used to decide whether a token has expired.
func WithAuthClock(clock clockwork.Clock) AuthOption {
	return func(c *authConfig) { c.clock = clock }
}

// WithAuthentication decorates builder so that every request carries a bearer token from
// provider.
//
// Tokens known to be expired are refreshed before sending. When the server answers 401 the
// credentials are refreshed once and the request is replayed once; if that fails, the request
// fails with *AuthenticationError. Concurrent refreshes on one transport are merged.
// A nil builder or provider yields a builder whose Build fails with ErrInvalidArgument.
func WithAuthentication(builder TransportBuilder, provider OAuthClientProvider, opts ...AuthOption) TransportBuilder {
	if builder == nil {
		return invalidBuilder{err: fmt.Errorf("%w: transport builder is nil", ErrInvalidArgument)}
	}
	if isNilProvider(provider) {
		return invalidBuilder{err: fmt.Errorf("%w: credential provider is nil", ErrInvalidArgument)}
	}

	cfg := authConfig{
		logger: GetDefaultLogger(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}
	if cfg.meterProvider == nil {
		cfg.meterProvider = otel.GetMeterProvider()
	}
	if cfg.clock == nil {
		cfg.clock = clockwork.NewRealClock()
	}
	cfg.logger = loggerOrNop(cfg.logger)

	decorator := func(next http.RoundTripper) http.RoundTripper {
		return newAuthRoundTripper(next, provider, cfg)
	}
	if b, ok := builder.(authDecoratable); ok {
		return b.decorateAuth(decorator)
	}
	return builder.Decorate(decorator)
}

// invalidBuilder carries a configuration error to Build.
type invalidBuilder struct {
	err error
}

func (b invalidBuilder) Build() (Transport, error) { return nil, b.err }

func (b invalidBuilder) Decorate(RoundTripperDecorator) TransportBuilder { return b }

// authRoundTripper adds bearer tokens and handles the single refresh-and-replay on 401.
type authRoundTripper struct {
	next        http.RoundTripper
	provider    OAuthClientProvider
	oauthClient *http.Client
	scope       string
	clock       clockwork.Clock
	logger      Logger

	tracer         trace.Tracer
	refreshCounter metric.Int64Counter
	failureCounter metric.Int64Counter

	group singleflight.Group
}

func newAuthRoundTripper(next http.RoundTripper, provider OAuthClientProvider, cfg authConfig) *authRoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	oauthClient := cfg.httpClient
	if oauthClient == nil {
		oauthClient = &http.Client{Transport: next}
	}

	meter := cfg.meterProvider.Meter(instrumentationName)
	refreshCounter, err := meter.Int64Counter(RefreshCounterName,
		metric.WithDescription("Credential refreshes run by the MCP authentication decorator."))
	if err != nil {
		cfg.logger.Warnf("auth: create %s counter: %v", RefreshCounterName, err)
		refreshCounter = noop.Int64Counter{}
	}
	failureCounter, err := meter.Int64Counter(FailureCounterName,
		metric.WithDescription("Requests failed with an authentication error."))
	if err != nil {
		cfg.logger.Warnf("auth: create %s counter: %v", FailureCounterName, err)
		failureCounter = noop.Int64Counter{}
	}

	return &authRoundTripper{
		next:           next,
		provider:       provider,
		oauthClient:    oauthClient,
		scope:          cfg.scope,
		clock:          cfg.clock,
		logger:         cfg.logger,
		tracer:         cfg.tracerProvider.Tracer(instrumentationName),
		refreshCounter: refreshCounter,
		failureCounter: failureCounter,
	}
}

// RoundTrip implements http.RoundTripper.
func (rt *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	ctx := req.Context()

	token, err := rt.currentToken(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	resp, err := rt.next.RoundTrip(withBearer(req, body, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	hint := client.ResourceMetadataURLFromChallenge(resp)
	drainAndClose(resp)
	rt.logger.Debugf("auth: %s %s answered 401, refreshing credentials", req.Method, req.URL.Redacted())

	token, err = rt.refresh(ctx, req.URL, hint, token, http.StatusUnauthorized, "unauthorized")
	if err != nil {
		return nil, err
	}

	resp, err = rt.next.RoundTrip(withBearer(req, body, token))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp)
		return nil, rt.fail(ctx, &AuthenticationError{StatusCode: http.StatusUnauthorized, Reason: AuthReasonRejected})
	}
	return resp, nil
}

// currentToken returns the stored access token, refreshing first when it is known to be
// expired or when a refresher has not produced one yet.
func (rt *authRoundTripper) currentToken(ctx context.Context, u *url.URL) (string, error) {
	tokens, err := rt.provider.Tokens()
	if err != nil {
		return "", rt.fail(ctx, &AuthenticationError{
			Reason: AuthReasonRefreshFailed,
			Err:    fmt.Errorf("read stored tokens: %w", err),
		})
	}
	var current string
	if tokens != nil {
		current = tokens.AccessToken
	}

	_, refresher := rt.provider.(TokenRefresher)
	if (current == "" && refresher) || (current != "" && rt.expired(tokens)) {
		return rt.refresh(ctx, u, "", current, 0, "proactive")
	}
	return current, nil
}

func (rt *authRoundTripper) expired(tokens *auth.OAuthTokens) bool {
	if p, ok := rt.provider.(TokenExpiryProvider); ok {
		exp, ok := p.TokensExpireAt()
		return ok && client.IsExpired(rt.clock, exp)
	}
	exp, ok := client.AccessTokenExpiry(tokens.AccessToken)
	return ok && client.IsExpired(rt.clock, exp)
}

// refresh obtains a new access token. Concurrent callers share one refresh; a caller whose
// stale token was already replaced reuses the replacement.
func (rt *authRoundTripper) refresh(ctx context.Context, u *url.URL, hint, stale string, status int, trigger string) (string, error) {
	v, err, _ := rt.group.Do("refresh", func() (interface{}, error) {
		if token, ok := rt.replacedToken(stale); ok {
			return token, nil
		}
		return rt.runRefresh(ctx, u, hint, status, trigger)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (rt *authRoundTripper) replacedToken(stale string) (string, bool) {
	tokens, err := rt.provider.Tokens()
	if err != nil || tokens == nil || tokens.AccessToken == "" || tokens.AccessToken == stale {
		return "", false
	}
	if rt.expired(tokens) {
		return "", false
	}
	return tokens.AccessToken, true
}

func (rt *authRoundTripper) runRefresh(ctx context.Context, u *url.URL, hint string, status int, trigger string) (string, error) {
	ctx, span := rt.tracer.Start(ctx, RefreshSpanName, trace.WithAttributes(
		attribute.String("mcp.auth.trigger", trigger),
		attribute.String("server.address", u.Host),
	))
	defer span.End()

	token, authErr := rt.obtainToken(ctx, u, hint)
	if authErr != nil {
		authErr.StatusCode = status
		span.RecordError(authErr)
		span.SetStatus(codes.Error, authErr.Reason)
		rt.refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", authErr.Reason)))
		return "", rt.fail(ctx, authErr)
	}
	span.SetStatus(codes.Ok, "")
	rt.refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", refreshResultSuccess)))
	rt.logger.Debugf("auth: credentials refreshed for %s", u.Host)
	return token, nil
}

// obtainToken asks the provider for a new token, or runs the OAuth flow when it cannot refresh
// on its own.
func (rt *authRoundTripper) obtainToken(ctx context.Context, u *url.URL, hint string) (string, *AuthenticationError) {
	if refresher, ok := rt.provider.(TokenRefresher); ok {
		tokens, err := refresher.RefreshTokens(ctx)
		if err != nil {
			return "", &AuthenticationError{Reason: refreshFailureReason(err), Err: err}
		}
		if tokens == nil || tokens.AccessToken == "" {
			return "", &AuthenticationError{Reason: AuthReasonRefreshFailed, Err: errors.New("provider returned no access token")}
		}
		return tokens.AccessToken, nil
	}

	result, err := client.Auth(ctx, rt.provider, auth.AuthOptions{
		ServerURL:           resourceServerURL(u),
		ResourceMetadataURL: hint,
		Scope:               rt.scope,
		HTTPClient:          rt.oauthClient,
	})
	if err != nil {
		return "", &AuthenticationError{Reason: refreshFailureReason(err), Err: err}
	}
	if result != client.AuthResultAuthorized {
		return "", &AuthenticationError{Reason: AuthReasonInteractionNeeded}
	}
	tokens, err := rt.provider.Tokens()
	if err != nil {
		return "", &AuthenticationError{Reason: AuthReasonRefreshFailed, Err: err}
	}
	if tokens == nil || tokens.AccessToken == "" {
		return "", &AuthenticationError{Reason: AuthReasonRefreshFailed, Err: errors.New("authorization stored no access token")}
	}
	return tokens.AccessToken, nil
}

// fail counts and logs an authentication failure and returns it.
func (rt *authRoundTripper) fail(ctx context.Context, err *AuthenticationError) error {
	rt.failureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", err.Reason)))
	rt.logger.Warnf("auth: %v", err)
	return err
}

func refreshFailureReason(err error) string {
	if errors.Is(err, client.ErrInteractionRequired) {
		return AuthReasonInteractionNeeded
	}
	return AuthReasonRefreshFailed
}

// resourceServerURL drops the query and fragment of a request URL.
func resourceServerURL(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()
}

// bufferBody reads and closes the request body so the request can be replayed.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

// withBearer clones req with a fresh body and the given token.
func withBearer(req *http.Request, body []byte, token string) *http.Request {
	r := req.Clone(req.Context())
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		r.ContentLength = int64(len(body))
	}
	if token != "" {
		r.Header.Set(transport.AuthorizationHeader, "Bearer "+token)
	} else {
		r.Header.Del(transport.AuthorizationHeader)
	}
	return r
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
