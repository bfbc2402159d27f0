// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"encoding/json"
	"fmt"
)

// ClientCapabilities advertises what the client supports. The factory clients advertise none.
type ClientCapabilities struct {
	Experimental map[string]interface{} `json:"experimental,omitempty"`
	Roots        *struct {
		ListChanged bool `json:"listChanged,omitempty"`
	} `json:"roots,omitempty"`
	Sampling map[string]interface{} `json:"sampling,omitempty"`
}

// ServerCapabilities is what the server announced during initialization.
type ServerCapabilities struct {
	Experimental map[string]interface{} `json:"experimental,omitempty"`
	Logging      map[string]interface{} `json:"logging,omitempty"`
	Prompts      *struct {
		ListChanged bool `json:"listChanged,omitempty"`
	} `json:"prompts,omitempty"`
	Resources *struct {
		Subscribe   bool `json:"subscribe,omitempty"`
		ListChanged bool `json:"listChanged,omitempty"`
	} `json:"resources,omitempty"`
	Tools *struct {
		ListChanged bool `json:"listChanged,omitempty"`
	} `json:"tools,omitempty"`
}

// InitializeRequest is sent first on every connection.
type InitializeRequest struct {
	Request
	Params struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    ClientCapabilities `json:"capabilities"`
		ClientInfo      Implementation     `json:"clientInfo"`
	} `json:"params"`
}

// InitializeResult is the server's answer to initialize.
type InitializeResult struct {
	Result
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Tool describes a tool offered by the server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsRequest describes a request to list tools.
type ListToolsRequest struct {
	PaginatedRequest
}

// ListToolsResult describes a result of listing tools.
type ListToolsResult struct {
	PaginatedResult
	Tools []Tool `json:"tools"`
}

// CallToolRequest invokes a tool by name.
type CallToolRequest struct {
	Request
	Params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments,omitempty"`
		Meta      *Meta                  `json:"_meta,omitempty"`
	} `json:"params"`
}

// CallToolResult is the outcome of a tool call. IsError marks tool-level failures, which are
// not protocol errors.
type CallToolResult struct {
	Result
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// UnmarshalJSON decodes the polymorphic content list.
func (r *CallToolResult) UnmarshalJSON(data []byte) error {
	var tmp struct {
		Result
		Content []json.RawMessage `json:"content"`
		IsError bool              `json:"isError,omitempty"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return fmt.Errorf("failed to unmarshal tool result: %w", err)
	}
	content, err := parseContentList(tmp.Content)
	if err != nil {
		return err
	}
	r.Result = tmp.Result
	r.Content = content
	r.IsError = tmp.IsError
	return nil
}

// NewCallToolRequest builds a tools/call request.
func NewCallToolRequest(name string, arguments map[string]interface{}) *CallToolRequest {
	req := &CallToolRequest{Request: Request{Method: MethodToolsCall}}
	req.Params.Name = name
	req.Params.Arguments = arguments
	return req
}
