// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "client.yaml", `
server-url: https://mcp.example.com
mode: async
name: my-agent
endpoint: /mcp
request-timeout: 45s
oauth:
  client-id: id
  client-secret: secret
  token-url: https://auth.example.com/token
  scopes:
    - tools.read
    - tools.call
telemetry:
  exporter: stdout
log:
  level: debug
`)
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://mcp.example.com", p.ServerURL)
	assert.Equal(t, ModeAsync, p.Mode)
	assert.Equal(t, "my-agent", p.Name)
	assert.Equal(t, "/mcp", p.Endpoint)
	assert.Equal(t, 45*time.Second, p.RequestTimeout)
	assert.True(t, p.OAuth.UsesClientCredentials())
	assert.Equal(t, []string{"tools.read", "tools.call"}, p.OAuth.Scopes)
	assert.Equal(t, ExporterStdout, p.Telemetry.Exporter)
	assert.Equal(t, "mcp-auth-client", p.Telemetry.ServiceName)
	assert.Equal(t, "debug", p.Log.Level)
}

func TestLoadJSONWithDefaults(t *testing.T) {
	path := writeFile(t, "client.json", `{"server-url":"http://localhost:8080","mode":"sync","oauth":{"access-token":"abc"}}`)
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeSync, p.Mode)
	assert.Equal(t, 30*time.Second, p.RequestTimeout)
	assert.Equal(t, ExporterNone, p.Telemetry.Exporter)
	assert.Equal(t, "info", p.Log.Level)
	assert.Equal(t, "abc", p.OAuth.AccessToken)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "client.yml", `
server-url: http://localhost:8080
oauth:
  access-token: from-file
`)
	t.Setenv("MCP_CLIENT_SERVER_URL", "https://override.example.com")
	t.Setenv("MCP_CLIENT_REQUEST_TIMEOUT", "5s")
	t.Setenv("MCP_CLIENT_OAUTH__ACCESS_TOKEN", "from-env")
	t.Setenv("MCP_CLIENT_OAUTH__SCOPES", "a,b c")
	t.Setenv("MCP_CLIENT_TELEMETRY__SERVICE_NAME", "svc")

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com", p.ServerURL)
	assert.Equal(t, 5*time.Second, p.RequestTimeout)
	assert.Equal(t, "from-env", p.OAuth.AccessToken)
	assert.Equal(t, []string{"a", "b", "c"}, p.OAuth.Scopes)
	assert.Equal(t, "svc", p.Telemetry.ServiceName)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("MCP_CLIENT_SERVER_URL", "http://localhost:9000")
	t.Setenv("MCP_CLIENT_OAUTH__ACCESS_TOKEN", "tok")

	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", p.ServerURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MCP_CLIENT_SERVER_URL", "http://from-env:8080")
	path := writeFile(t, "client.yaml", "mode: async\noauth:\n  access-token: tok\n")

	p, err := Load(path,
		WithOverride("server-url", "http://from-flag:8080"),
		WithOverride("mode", ModeSync),
		WithOverride("request-timeout", "2s"))
	require.NoError(t, err)
	assert.Equal(t, "http://from-flag:8080", p.ServerURL)
	assert.Equal(t, ModeSync, p.Mode)
	assert.Equal(t, 2*time.Second, p.RequestTimeout)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "client.toml", "server-url = 1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file extension")

	_, err = Load(writeFile(t, "client.json", "{not json"))
	assert.Error(t, err)
}

func TestValidateAggregatesProblems(t *testing.T) {
	p := Default()
	p.Mode = "batch"
	p.RequestTimeout = -time.Second
	p.Telemetry.Exporter = ExporterOTLP

	err := p.Validate()
	require.Error(t, err)
	merr, ok := err.(*multierror.Error)
	require.True(t, ok)
	assert.Len(t, merr.Errors, 5)
	assert.Contains(t, err.Error(), "server-url is required")
	assert.Contains(t, err.Error(), `mode "batch"`)
	assert.Contains(t, err.Error(), "request-timeout")
	assert.Contains(t, err.Error(), "oauth needs")
	assert.Contains(t, err.Error(), "telemetry.endpoint")
}

func TestValidate(t *testing.T) {
	valid := func() Profile {
		p := Default()
		p.ServerURL = "https://mcp.example.com"
		p.OAuth.AccessToken = "tok"
		return p
	}

	tests := []struct {
		name    string
		mutate  func(p *Profile)
		wantErr string
	}{
		{"valid", func(p *Profile) {}, ""},
		{"relative URL", func(p *Profile) { p.ServerURL = "/mcp" }, "absolute http(s) URL"},
		{"endpoint in sync mode", func(p *Profile) { p.Mode = ModeSync; p.Endpoint = "/mcp" }, "only used in async mode"},
		{"refresh token without token URL", func(p *Profile) { p.OAuth.RefreshToken = "r" }, "requires oauth.token-url"},
		{"unknown exporter", func(p *Profile) { p.Telemetry.Exporter = "jaeger" }, "unknown telemetry.exporter"},
		{"otlp with endpoint", func(p *Profile) {
			p.Telemetry.Exporter = ExporterOTLP
			p.Telemetry.Endpoint = "localhost:4317"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
