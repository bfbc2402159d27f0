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

// Resource describes a resource the server can read.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Annotated
}

// ListResourcesRequest describes a request to list resources.
type ListResourcesRequest struct {
	PaginatedRequest
}

// ListResourcesResult describes a result of listing resources.
type ListResourcesResult struct {
	PaginatedResult
	Resources []Resource `json:"resources"`
}

// ReadResourceRequest reads one resource by URI.
type ReadResourceRequest struct {
	Request
	Params struct {
		URI string `json:"uri"`
	} `json:"params"`
}

// NewReadResourceRequest builds a resources/read request for uri.
func NewReadResourceRequest(uri string) *ReadResourceRequest {
	req := &ReadResourceRequest{Request: Request{Method: MethodResourcesRead}}
	req.Params.URI = uri
	return req
}

// ResourceContents is either TextResourceContents or BlobResourceContents.
type ResourceContents interface {
	isResourceContents()
}

// TextResourceContents holds textual resource data.
type TextResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

func (TextResourceContents) isResourceContents() {}

// BlobResourceContents holds base64 binary resource data.
type BlobResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Blob     string `json:"blob"`
}

func (BlobResourceContents) isResourceContents() {}

// ReadResourceResult is the result of resources/read.
type ReadResourceResult struct {
	Result
	Contents []ResourceContents `json:"contents"`
}

// UnmarshalJSON decodes text and blob contents.
func (r *ReadResourceResult) UnmarshalJSON(data []byte) error {
	var tmp struct {
		Result
		Contents []json.RawMessage `json:"contents"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return fmt.Errorf("failed to unmarshal resource result: %w", err)
	}
	r.Result = tmp.Result
	r.Contents = make([]ResourceContents, 0, len(tmp.Contents))
	for i, raw := range tmp.Contents {
		c, err := parseResourceContents(raw)
		if err != nil {
			return fmt.Errorf("contents[%d]: %w", i, err)
		}
		r.Contents = append(r.Contents, c)
	}
	return nil
}

// parseResourceContents tells text from blob by which field is present.
func parseResourceContents(raw json.RawMessage) (ResourceContents, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid resource contents: %w", err)
	}
	if _, ok := fields["blob"]; ok {
		var c BlobResourceContents
		err := json.Unmarshal(raw, &c)
		return c, err
	}
	if _, ok := fields["text"]; ok {
		var c TextResourceContents
		err := json.Unmarshal(raw, &c)
		return c, err
	}
	return nil, fmt.Errorf("resource contents have neither text nor blob")
}
