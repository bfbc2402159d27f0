// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

// Package config loads connection profiles for the MCP client command.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MCP_CLIENT_"

// Client modes.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Telemetry exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Profile describes one MCP server connection.
type Profile struct {
	ServerURL      string        `koanf:"server-url"`
	Mode           string        `koanf:"mode"`
	Name           string        `koanf:"name"`
	Endpoint       string        `koanf:"endpoint"`
	RequestTimeout time.Duration `koanf:"request-timeout"`

	OAuth     OAuth     `koanf:"oauth"`
	Telemetry Telemetry `koanf:"telemetry"`
	Log       Log       `koanf:"log"`
}

// OAuth holds client credentials or pre-issued tokens.
type OAuth struct {
	ClientID     string   `koanf:"client-id"`
	ClientSecret string   `koanf:"client-secret"`
	TokenURL     string   `koanf:"token-url"`
	Scopes       []string `koanf:"scopes"`
	AccessToken  string   `koanf:"access-token"`
	RefreshToken string   `koanf:"refresh-token"`
}

// UsesClientCredentials reports whether the profile can run the client credentials grant.
func (o OAuth) UsesClientCredentials() bool {
	return o.ClientID != "" && o.ClientSecret != "" && o.TokenURL != ""
}

// Telemetry selects where spans and metrics go.
type Telemetry struct {
	Exporter    string `koanf:"exporter"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service-name"`
}

// Log configures the command logger.
type Log struct {
	Level string `koanf:"level"`
}

// Default returns the profile values used when a source leaves them unset.
func Default() Profile {
	return Profile{
		Mode:           ModeAsync,
		RequestTimeout: 30 * time.Second,
		Telemetry: Telemetry{
			Exporter:    ExporterNone,
			ServiceName: "mcp-auth-client",
		},
		Log: Log{Level: "info"},
	}
}

// LoadOption adjusts the values read by Load before they are validated.
type LoadOption func(k *koanf.Koanf) error

// WithOverride sets key after the file and the environment were read. Command line flags use it.
func WithOverride(key string, value interface{}) LoadOption {
	return func(k *koanf.Koanf) error {
		return k.Set(key, value)
	}
}

// Load reads path (YAML or JSON, chosen by extension; empty path skips the file), then
// environment variables prefixed with EnvPrefix, then opts, and validates the result.
//
// Environment names map to keys by lowercasing and replacing "_" with "-"; a double underscore
// separates sections: MCP_CLIENT_SERVER_URL is server-url and MCP_CLIENT_OAUTH__CLIENT_ID is
// oauth.client-id.
func Load(path string, opts ...LoadOption) (*Profile, error) {
	k := koanf.New(".")

	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}
	for _, opt := range opts {
		if err := opt(k); err != nil {
			return nil, fmt.Errorf("error applying override: %w", err)
		}
	}

	profile := Default()
	if err := k.Unmarshal("", &profile); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		parser = json.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	return k.Load(file.Provider(path), parser)
}

func envKey(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	sections := strings.Split(key, "__")
	for i, s := range sections {
		sections[i] = strings.ReplaceAll(s, "_", "-")
	}
	key = strings.Join(sections, ".")

	if key == "oauth.scopes" {
		return key, strings.Fields(strings.ReplaceAll(value, ",", " "))
	}
	return key, value
}

// Validate reports every problem of the profile at once.
func (p *Profile) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(p.ServerURL) == "" {
		result = multierror.Append(result, fmt.Errorf("server-url is required"))
	} else if u, err := url.Parse(p.ServerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("server-url %q must be an absolute http(s) URL", p.ServerURL))
	}

	switch p.Mode {
	case ModeSync:
		if p.Endpoint != "" {
			result = multierror.Append(result, fmt.Errorf("endpoint is only used in %s mode", ModeAsync))
		}
	case ModeAsync:
	default:
		result = multierror.Append(result, fmt.Errorf("mode %q must be %s or %s", p.Mode, ModeSync, ModeAsync))
	}

	if p.RequestTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("request-timeout must not be negative"))
	}

	o := p.OAuth
	if !o.UsesClientCredentials() && o.AccessToken == "" && o.RefreshToken == "" {
		result = multierror.Append(result,
			fmt.Errorf("oauth needs client-id, client-secret and token-url, or an access-token or refresh-token"))
	}
	if o.RefreshToken != "" && o.TokenURL == "" {
		result = multierror.Append(result, fmt.Errorf("oauth.refresh-token requires oauth.token-url"))
	}

	switch p.Telemetry.Exporter {
	case ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if p.Telemetry.Endpoint == "" {
			result = multierror.Append(result, fmt.Errorf("telemetry.endpoint is required for the %s exporter", ExporterOTLP))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown telemetry.exporter %q", p.Telemetry.Exporter))
	}

	return result.ErrorOrNil()
}
