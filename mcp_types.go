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

// Protocol versions the client can negotiate.
const (
	ProtocolVersion_2024_11_05 = "2024-11-05"
	ProtocolVersion_2025_03_26 = "2025-03-26"
	ProtocolVersion_2025_06_18 = "2025-06-18"
)

const (
	// ContentTypeText represents text content type
	ContentTypeText = "text"
	// ContentTypeImage represents image content type
	ContentTypeImage = "image"
	// ContentTypeAudio represents audio content type
	ContentTypeAudio = "audio"
	// ContentTypeEmbeddedResource represents embedded resource content type
	ContentTypeEmbeddedResource = "resource"
)

// Meta represents metadata attached to a request's parameters.
// ProgressToken is defined by the protocol; anything else lands in AdditionalFields.
type Meta struct {
	ProgressToken    ProgressToken          `json:"-"`
	AdditionalFields map[string]interface{} `json:"-"`
}

// MarshalJSON flattens ProgressToken and AdditionalFields into a single object.
func (m *Meta) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	raw := make(map[string]interface{}, len(m.AdditionalFields)+1)
	for k, v := range m.AdditionalFields {
		raw[k] = v
	}
	if m.ProgressToken != nil {
		raw["progressToken"] = m.ProgressToken
	}
	return json.Marshal(raw)
}

// UnmarshalJSON extracts progressToken and keeps every other field in AdditionalFields.
func (m *Meta) UnmarshalJSON(data []byte) error {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if pt, ok := raw["progressToken"]; ok {
		m.ProgressToken = pt
		delete(raw, "progressToken")
	}
	m.AdditionalFields = raw
	return nil
}

// Request is the base request struct for all MCP requests.
type Request struct {
	Method string `json:"method"`
}

// PaginatedRequest is a request that accepts a cursor.
type PaginatedRequest struct {
	Request
	Params struct {
		Cursor Cursor `json:"cursor,omitempty"`
		Meta   *Meta  `json:"_meta,omitempty"`
	} `json:"params,omitempty"`
}

// Notification is the base notification struct for all MCP notifications.
type Notification struct {
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Result is the base result struct for all MCP results.
type Result struct {
	Meta map[string]interface{} `json:"_meta,omitempty"`
}

// PaginatedResult is the base paginated result struct for all MCP paginated results.
type PaginatedResult struct {
	Result
	NextCursor Cursor `json:"nextCursor,omitempty"`
}

// ProgressToken is an opaque string or number.
type ProgressToken interface{}

// Cursor is an opaque pagination token.
type Cursor string

// Role represents the sender or recipient of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Implementation identifies an MCP client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Annotated describes an annotated resource.
type Annotated struct {
	Annotations *struct {
		Audience []Role  `json:"audience,omitempty"`
		Priority float64 `json:"priority,omitempty"`
	} `json:"annotations,omitempty"`
}

// Content represents different types of message content (text, image, audio, embedded resource).
type Content interface {
	isContent()
}

// TextContent represents text content
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Annotated
}

func (TextContent) isContent() {}

// ImageContent represents image content
type ImageContent struct {
	Type     string `json:"type"`
	Data     string `json:"data"` // base64
	MimeType string `json:"mimeType"`
	Annotated
}

func (ImageContent) isContent() {}

// AudioContent represents audio content
type AudioContent struct {
	Type     string `json:"type"`
	Data     string `json:"data"` // base64
	MimeType string `json:"mimeType"`
	Annotated
}

func (AudioContent) isContent() {}

// EmbeddedResource represents an embedded resource
type EmbeddedResource struct {
	Type     string           `json:"type"`
	Resource ResourceContents `json:"resource"`
	Annotated
}

func (EmbeddedResource) isContent() {}

// NewTextContent creates text content.
func NewTextContent(text string) TextContent {
	return TextContent{Type: ContentTypeText, Text: text}
}

// parseContent decodes one content item by its type field.
func parseContent(raw json.RawMessage) (Content, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("invalid content: %w", err)
	}

	switch head.Type {
	case ContentTypeText:
		var c TextContent
		err := json.Unmarshal(raw, &c)
		return c, err
	case ContentTypeImage:
		var c ImageContent
		err := json.Unmarshal(raw, &c)
		return c, err
	case ContentTypeAudio:
		var c AudioContent
		err := json.Unmarshal(raw, &c)
		return c, err
	case ContentTypeEmbeddedResource:
		var tmp struct {
			Type     string          `json:"type"`
			Resource json.RawMessage `json:"resource"`
			Annotated
		}
		if err := json.Unmarshal(raw, &tmp); err != nil {
			return nil, err
		}
		res, err := parseResourceContents(tmp.Resource)
		if err != nil {
			return nil, err
		}
		return EmbeddedResource{Type: tmp.Type, Resource: res, Annotated: tmp.Annotated}, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q", head.Type)
	}
}

func parseContentList(raws []json.RawMessage) ([]Content, error) {
	out := make([]Content, 0, len(raws))
	for i, raw := range raws {
		c, err := parseContent(raw)
		if err != nil {
			return nil, fmt.Errorf("content[%d]: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}
