// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/transport"
)

// cannedResults are the results the fake MCP server returns per method.
var cannedResults = map[string]string{
	MethodInitialize: `{"protocolVersion":"2025-03-26","capabilities":{"tools":{}},` +
		`"serverInfo":{"name":"test-server","version":"1.0.0"}}`,
	MethodPing:          `{}`,
	MethodToolsList:     `{"tools":[{"name":"echo","description":"Echo input","inputSchema":{"type":"object"}}]}`,
	MethodToolsCall:     `{"content":[{"type":"text","text":"hello"}]}`,
	MethodResourcesList: `{"resources":[{"uri":"file:///a.txt","name":"a"}]}`,
	MethodResourcesRead: `{"contents":[{"uri":"file:///a.txt","text":"A"}]}`,
	MethodPromptsList:   `{"prompts":[{"name":"greet"}]}`,
	MethodPromptsGet:    `{"messages":[{"role":"user","content":{"type":"text","text":"hi"}}]}`,
}

// responseFor builds the JSON-RPC answer to msg.
func responseFor(msg *rawMessage) []byte {
	result, ok := cannedResults[msg.Method]
	if !ok {
		return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":"method not found"}}`,
			msg.ID, ErrCodeMethodNotFound))
	}
	return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":%s}`, msg.ID, result))
}

// streamableServer is a minimal streamable HTTP MCP server.
type streamableServer struct {
	sessionID string
	sse       bool // answer requests with an event stream
	bearer    string

	mu         sync.Mutex
	methods    []string
	deleted    bool
	authHeader []string

	failures atomic.Int32 // next requests answered with 503
}

func (s *streamableServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.authHeader = append(s.authHeader, r.Header.Get(transport.AuthorizationHeader))
	s.mu.Unlock()

	if s.bearer != "" && r.Header.Get(transport.AuthorizationHeader) != "Bearer "+s.bearer {
		w.Header().Set(transport.WWWAuthenticateHeader, `Bearer error="invalid_token"`)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		s.mu.Lock()
		s.deleted = r.Header.Get(transport.SessionIDHeader) == s.sessionID
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var msg rawMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.methods = append(s.methods, msg.Method)
	s.mu.Unlock()

	if msg.Method != MethodInitialize && s.sessionID != "" && r.Header.Get(transport.SessionIDHeader) != s.sessionID {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if len(msg.ID) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if msg.Method == MethodInitialize && s.sessionID != "" {
		w.Header().Set(transport.SessionIDHeader, s.sessionID)
	}

	body := responseFor(&msg)
	if !s.sse {
		w.Header().Set(transport.ContentTypeHeader, transport.ContentTypeJSON)
		_, _ = w.Write(body)
		return
	}
	w.Header().Set(transport.ContentTypeHeader, transport.ContentTypeSSE)
	_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n",
		`{"jsonrpc":"2.0","method":"notifications/message","params":{"level":"info"}}`)
	_, _ = fmt.Fprintf(w, "id: 1\nevent: message\ndata: %s\n\n", body)
}

func (s *streamableServer) seenMethods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

func (s *streamableServer) sessionDeleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

func (s *streamableServer) authorizationHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authHeader...)
}

// sseServer is a minimal legacy HTTP+SSE MCP server: GET /sse streams responses, POST
// /messages accepts requests.
type sseServer struct {
	bearer string

	mu      sync.Mutex
	streams map[string]chan []byte
	opened  int
	methods []string
	next    int
}

func newSSEServer() *sseServer {
	return &sseServer{streams: make(map[string]chan []byte)}
}

func (s *sseServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.bearer != "" && r.Header.Get(transport.AuthorizationHeader) != "Bearer "+s.bearer {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch r.URL.Path {
	case DefaultSSEEndpoint:
		s.serveStream(w, r)
	case "/messages":
		s.serveMessage(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *sseServer) serveStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	out := make(chan []byte, 16)
	s.mu.Lock()
	s.next++
	id := fmt.Sprintf("s%d", s.next)
	s.streams[id] = out
	s.opened++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.streams, id)
		s.mu.Unlock()
	}()

	w.Header().Set(transport.ContentTypeHeader, transport.ContentTypeSSE)
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, ": welcome\n\nevent: endpoint\ndata: /messages?sessionId=%s\n\n", id)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-out:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *sseServer) serveMessage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out, ok := s.streams[r.URL.Query().Get("sessionId")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	var msg rawMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.methods = append(s.methods, msg.Method)
	s.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
	if len(msg.ID) > 0 {
		out <- responseFor(&msg)
	}
}

// dropStreams ends every open event stream.
func (s *sseServer) dropStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, out := range s.streams {
		close(out)
		delete(s.streams, id)
	}
}

func (s *sseServer) streamsOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *sseServer) seenMethods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

// stubProvider is an OAuthClientProvider and TokenRefresher whose refresh result is scripted.
type stubProvider struct {
	mu        sync.Mutex
	tokens    *OAuthTokens
	refreshFn func(n int32) (*OAuthTokens, error)
	refreshes atomic.Int32
}

func newStubProvider(accessToken string, refreshFn func(n int32) (*OAuthTokens, error)) *stubProvider {
	p := &stubProvider{refreshFn: refreshFn}
	if accessToken != "" {
		p.tokens = &OAuthTokens{AccessToken: accessToken, TokenType: "Bearer"}
	}
	return p
}

func (p *stubProvider) RedirectURL() string { return "" }

func (p *stubProvider) ClientMetadata() OAuthClientMetadata { return OAuthClientMetadata{} }

func (p *stubProvider) ClientInformation() *OAuthClientInformation { return nil }

func (p *stubProvider) RedirectToAuthorization(*url.URL) error { return ErrInteractionRequired }

func (p *stubProvider) SaveCodeVerifier(string) error { return nil }

func (p *stubProvider) CodeVerifier() (string, error) { return "", ErrInteractionRequired }

func (p *stubProvider) Tokens() (*OAuthTokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tokens == nil {
		return nil, nil
	}
	t := *p.tokens
	return &t, nil
}

func (p *stubProvider) SaveTokens(tokens OAuthTokens) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = &tokens
	return nil
}

func (p *stubProvider) RefreshTokens(ctx context.Context) (*OAuthTokens, error) {
	n := p.refreshes.Add(1)
	tokens, err := p.refreshFn(n)
	if err != nil {
		return nil, err
	}
	_ = p.SaveTokens(*tokens)
	return tokens, nil
}

// staticToken returns a refresh function that always yields token.
func staticToken(token string) func(int32) (*OAuthTokens, error) {
	return func(int32) (*OAuthTokens, error) {
		return &OAuthTokens{AccessToken: token, TokenType: "Bearer"}, nil
	}
}
