// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is the only JSON-RPC version MCP speaks.
const JSONRPCVersion = "2.0"

// MCP method names used by the client.
const (
	MethodInitialize               = "initialize"
	MethodNotificationsInitialized = "notifications/initialized"
	MethodPing                     = "ping"
	MethodToolsList                = "tools/list"
	MethodToolsCall                = "tools/call"
	MethodResourcesList            = "resources/list"
	MethodResourcesRead            = "resources/read"
	MethodPromptsList              = "prompts/list"
	MethodPromptsGet               = "prompts/get"
)

// Standard JSON-RPC error codes.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// JSONRPCRequest is a request that expects a response.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Request
	Params interface{} `json:"params,omitempty"`
}

// JSONRPCNotification is a one-way message.
type JSONRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Notification
}

// JSONRPCResponse is a successful response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// JSONRPCErrorDetail is the error member of an error response.
type JSONRPCErrorDetail struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSONRPCError is an error response.
type JSONRPCError struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      interface{}        `json:"id"`
	Error   JSONRPCErrorDetail `json:"error"`
}

// RPCError is returned by client calls when the server answers with a JSON-RPC error.
type RPCError struct {
	Method  string
	Code    int
	Message string
	Data    interface{}
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("%s error: %s (code: %d)", e.Method, e.Message, e.Code)
}

func newJSONRPCRequest(id interface{}, method string, params interface{}) *JSONRPCRequest {
	return &JSONRPCRequest{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Request: Request{Method: method},
		Params:  params,
	}
}

func newJSONRPCNotification(method string, params map[string]interface{}) *JSONRPCNotification {
	return &JSONRPCNotification{
		JSONRPC:      JSONRPCVersion,
		Notification: Notification{Method: method, Params: params},
	}
}

// rawMessage is the union of every JSON-RPC message shape, used to classify incoming data.
type rawMessage struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      json.RawMessage     `json:"id,omitempty"`
	Method  string              `json:"method,omitempty"`
	Result  json.RawMessage     `json:"result,omitempty"`
	Error   *JSONRPCErrorDetail `json:"error,omitempty"`
}

func (m *rawMessage) isResponse() bool {
	return m.Method == "" && len(m.ID) > 0 && (m.Result != nil || m.Error != nil)
}

// idKey normalizes a JSON-RPC id so that a request id and the echoed response id compare equal.
func idKey(id interface{}) string {
	switch v := id.(type) {
	case json.RawMessage:
		return string(bytes.TrimSpace(v))
	case []byte:
		return string(bytes.TrimSpace(v))
	}
	b, err := json.Marshal(id)
	if err != nil {
		return fmt.Sprint(id)
	}
	return string(b)
}

// decodeResult unpacks a response envelope into out, converting error responses to *RPCError.
func decodeResult(method string, raw *json.RawMessage, out interface{}) error {
	if raw == nil {
		return fmt.Errorf("%s: empty response", method)
	}
	var msg rawMessage
	if err := json.Unmarshal(*raw, &msg); err != nil {
		return fmt.Errorf("%s: invalid response: %w", method, err)
	}
	if msg.Error != nil {
		return &RPCError{Method: method, Code: msg.Error.Code, Message: msg.Error.Message, Data: msg.Error.Data}
	}
	if out == nil || len(msg.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Result, out); err != nil {
		return fmt.Errorf("%s: failed to parse result: %w", method, err)
	}
	return nil
}
