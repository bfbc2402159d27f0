// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	mcp "trpc.group/trpc-go/trpc-mcp-authclient-go"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/config"
	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/telemetry"
)

// flagKeys maps command line flags to profile keys.
var flagKeys = map[string]string{
	"server-url": "server-url",
	"mode":       "mode",
	"name":       "name",
	"endpoint":   "endpoint",
	"log-level":  "log.level",
}

func loadProfile(cmd *cli.Command) (*config.Profile, error) {
	var opts []config.LoadOption
	for flag, key := range flagKeys {
		if cmd.IsSet(flag) {
			opts = append(opts, config.WithOverride(key, cmd.String(flag)))
		}
	}
	if cmd.IsSet("timeout") {
		opts = append(opts, config.WithOverride("request-timeout", cmd.Duration("timeout")))
	}
	return config.Load(cmd.String("config"), opts...)
}

// newProvider picks the credential source described by the profile: the client credentials
// grant, the refresh grant, or a fixed access token.
func newProvider(o config.OAuth) mcp.OAuthClientProvider {
	switch {
	case o.UsesClientCredentials():
		return mcp.NewClientCredentialsProvider(clientcredentials.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			TokenURL:     o.TokenURL,
			Scopes:       o.Scopes,
		}, nil)
	case o.RefreshToken != "":
		return mcp.NewRefreshTokenProvider(&oauth2.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: o.TokenURL},
			Scopes:       o.Scopes,
		}, &oauth2.Token{AccessToken: o.AccessToken, RefreshToken: o.RefreshToken, TokenType: "Bearer"}, nil)
	default:
		return mcp.NewInMemoryOAuthClientProvider("", mcp.OAuthClientMetadata{}, nil,
			mcp.WithInitialTokens(mcp.OAuthTokens{AccessToken: o.AccessToken, TokenType: "Bearer"}))
	}
}

func run(ctx context.Context, profile *config.Profile) (err error) {
	log, err := mcp.NewZap(profile.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	mcp.SetDefaultLogger(log.Sugar())

	_, shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Exporter:    telemetry.ExporterType(profile.Telemetry.Exporter),
		Endpoint:    profile.Telemetry.Endpoint,
		ServiceName: profile.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, shutdown(shutdownCtx))
	}()

	provider := newProvider(profile.OAuth)
	var session toolLister
	switch profile.Mode {
	case config.ModeSync:
		c, err := mcp.CreateAuthenticatedSyncClient(profile.ServerURL, provider, profile.Name)
		if err != nil {
			return err
		}
		session = syncSession{c}
	default:
		c, err := mcp.CreateAuthenticatedAsyncClient(profile.ServerURL, provider, profile.Name,
			profile.Endpoint, profile.RequestTimeout)
		if err != nil {
			return err
		}
		session = asyncSession{c}
	}
	return listServerTools(ctx, log, profile.Mode, session)
}

// listServerTools initializes session, logs the tools of the server and closes session.
func listServerTools(ctx context.Context, log *zap.Logger, mode string, session toolLister) (err error) {
	defer func() { err = errors.Join(err, session.Close()) }()

	info := session.GetTransportInfo()
	log.Info("connecting",
		zap.String("mode", mode),
		zap.String("transport", string(info.Type)),
		zap.String("endpoint", info.Endpoint))

	initResult, err := session.initialize(ctx)
	if err != nil {
		var authErr *mcp.AuthenticationError
		if errors.As(err, &authErr) {
			log.Error("authentication failed", zap.String("reason", authErr.Reason), zap.Int("status", authErr.StatusCode))
		}
		return fmt.Errorf("initialize: %w", err)
	}
	log.Info("initialized",
		zap.String("server", initResult.ServerInfo.Name),
		zap.String("version", initResult.ServerInfo.Version),
		zap.String("protocol", initResult.ProtocolVersion))

	tools, err := session.listTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	for _, tool := range tools.Tools {
		log.Info("tool", zap.String("name", tool.Name), zap.String("description", tool.Description))
	}
	log.Info("done", zap.Int("tools", len(tools.Tools)))
	return nil
}

// toolLister hides the difference between the blocking and the future based client.
type toolLister interface {
	initialize(ctx context.Context) (*mcp.InitializeResult, error)
	listTools(ctx context.Context) (*mcp.ListToolsResult, error)
	GetTransportInfo() mcp.TransportInfo
	Close() error
}

type syncSession struct {
	*mcp.SyncClient
}

func (s syncSession) initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	return s.Initialize(ctx, nil)
}

func (s syncSession) listTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	return s.ListTools(ctx, nil)
}

type asyncSession struct {
	*mcp.AsyncClient
}

func (s asyncSession) initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	return s.Initialize(ctx, nil).Await(ctx)
}

func (s asyncSession) listTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	return s.ListTools(ctx, nil).Await(ctx)
}
