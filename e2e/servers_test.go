// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	testHMACSecret   = "test-oauth-secret"
	testClientID     = "test-client"
	testClientSecret = "test-client-secret"
	testScope        = "mcp.read mcp.write"
	testAudience     = "mcp-e2e"
)

// testClaims are the claims carried by access tokens of the mock authorization server.
type testClaims struct {
	Scope      string `json:"scope"`
	Generation int64  `json:"gen"`
	jwt.RegisteredClaims
}

// authorizationServer issues HS256 access tokens through the client credentials grant.
type authorizationServer struct {
	*httptest.Server

	ttl        time.Duration
	generation atomic.Int64
	issued     atomic.Int32
}

func startAuthorizationServer(t *testing.T, ttl time.Duration) *authorizationServer {
	t.Helper()

	as := &authorizationServer{ttl: ttl}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", as.serveToken)
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"issuer":                                base,
			"authorization_endpoint":                base + "/authorize",
			"token_endpoint":                        base + "/token",
			"response_types_supported":              []string{"code"},
			"grant_types_supported":                 []string{"client_credentials"},
			"code_challenge_methods_supported":      []string{"S256"},
			"token_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic"},
		})
	})
	as.Server = httptest.NewServer(mux)
	t.Cleanup(as.Close)
	t.Logf("Mock OAuth server started at: %s", as.URL)
	return as
}

func (as *authorizationServer) serveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	if r.FormValue("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	id, secret, ok := r.BasicAuth()
	if !ok {
		id, secret = r.FormValue("client_id"), r.FormValue("client_secret")
	}
	if id != testClientID || secret != testClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	token, err := as.sign(r.FormValue("scope"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	as.issued.Add(1)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(as.ttl.Seconds()),
		"scope":        r.FormValue("scope"),
	})
}

func (as *authorizationServer) sign(scope string) (string, error) {
	now := time.Now()
	claims := testClaims{
		Scope:      scope,
		Generation: as.generation.Load(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    as.URL,
			Subject:   testClientID,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testHMACSecret))
}

// revokeIssued makes the resource server reject every token issued so far.
func (as *authorizationServer) revokeIssued() int64 {
	return as.generation.Add(1)
}

// resourceServer is a streamable HTTP MCP server that only accepts tokens of the mock
// authorization server.
type resourceServer struct {
	*httptest.Server

	audience      string
	minGeneration atomic.Int64
	sessionID     string

	mu       sync.Mutex
	methods  []string
	rejected int
}

func startResourceServer(t *testing.T, audience string) *resourceServer {
	t.Helper()

	rs := &resourceServer{audience: audience, sessionID: uuid.NewString()}
	mux := http.NewServeMux()
	mux.Handle("/mcp", rs)
	mux.HandleFunc("/.well-known/oauth-protected-resource", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"resource":              "http://" + r.Host + "/mcp",
			"authorization_servers": []string{},
		})
	})
	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	t.Logf("OAuth MCP server started at: %s/mcp", rs.URL)
	return rs
}

func (rs *resourceServer) verify(header string) error {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return fmt.Errorf("missing bearer token")
	}
	claims := &testClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(testHMACSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(rs.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return err
	}
	if claims.Generation < rs.minGeneration.Load() {
		return fmt.Errorf("token revoked")
	}
	return nil
}

func (rs *resourceServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := rs.verify(r.Header.Get("Authorization")); err != nil {
		rs.mu.Lock()
		rs.rejected++
		rs.mu.Unlock()
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(
			`Bearer error="invalid_token", error_description=%q, resource_metadata="http://%s/.well-known/oauth-protected-resource"`,
			err.Error(), r.Host))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var msg struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rs.mu.Lock()
	rs.methods = append(rs.methods, msg.Method)
	rs.mu.Unlock()

	if len(msg.ID) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if msg.Method == "initialize" {
		w.Header().Set("Mcp-Session-Id", rs.sessionID)
	} else if r.Header.Get("Mcp-Session-Id") != rs.sessionID {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	result, err := handleMethod(msg.Method, msg.Params)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      msg.ID,
			"error":   map[string]interface{}{"code": -32601, "message": err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jsonrpc": "2.0", "id": msg.ID, "result": result})
}

func (rs *resourceServer) seenMethods() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.methods...)
}

func (rs *resourceServer) rejections() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.rejected
}

func handleMethod(method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "initialize":
		return map[string]interface{}{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
			"serverInfo":      map[string]string{"name": "OAuth-Test-Server", "version": "1.0.0"},
		}, nil
	case "ping":
		return map[string]interface{}{}, nil
	case "tools/list":
		return map[string]interface{}{
			"tools": []map[string]interface{}{{
				"name":        "basic-greet",
				"description": "Greets the caller",
				"inputSchema": map[string]interface{}{"type": "object"},
			}},
		}, nil
	case "tools/call":
		var call struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments"`
		}
		if err := json.Unmarshal(params, &call); err != nil {
			return nil, err
		}
		if call.Name != "basic-greet" {
			return nil, fmt.Errorf("unknown tool %q", call.Name)
		}
		return map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": "Hello, " + call.Arguments["name"] + "!"}},
		}, nil
	}
	return nil, fmt.Errorf("method %q not found", method)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
