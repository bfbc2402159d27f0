// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package errors

import (
	"encoding/json"
	"errors"
)

// OAuthErrorCode represents an OAuth 2.1 error code
type OAuthErrorCode error

// OAuthError is an error payload returned by an authorization server.
// It unwraps to the matching OAuthErrorCode sentinel, so callers can use errors.Is.
type OAuthError struct {
	ErrorCode  string
	Message    string
	ErrorURI   string
	StatusCode int
}

// OAuthErrorResponse is the JSON body of an OAuth error response (RFC 6749 section 5.2)
type OAuthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}

// Standard OAuth error codes
var (
	ErrInvalidRequest          OAuthErrorCode = errors.New("invalid_request")
	ErrInvalidClient           OAuthErrorCode = errors.New("invalid_client")
	ErrInvalidGrant            OAuthErrorCode = errors.New("invalid_grant")
	ErrUnauthorizedClient      OAuthErrorCode = errors.New("unauthorized_client")
	ErrUnsupportedGrantType    OAuthErrorCode = errors.New("unsupported_grant_type")
	ErrInvalidScope            OAuthErrorCode = errors.New("invalid_scope")
	ErrAccessDenied            OAuthErrorCode = errors.New("access_denied")
	ErrServerError             OAuthErrorCode = errors.New("server_error")
	ErrTemporarilyUnavailable  OAuthErrorCode = errors.New("temporarily_unavailable")
	ErrUnsupportedResponseType OAuthErrorCode = errors.New("unsupported_response_type")
	ErrInvalidToken            OAuthErrorCode = errors.New("invalid_token")
	ErrInvalidClientMetadata   OAuthErrorCode = errors.New("invalid_client_metadata")
	ErrInsufficientScope       OAuthErrorCode = errors.New("insufficient_scope")
)

// OAuthErrorMapping maps wire error strings to their OAuthErrorCode.
var OAuthErrorMapping = map[string]OAuthErrorCode{
	"invalid_request":           ErrInvalidRequest,
	"invalid_client":            ErrInvalidClient,
	"invalid_grant":             ErrInvalidGrant,
	"unauthorized_client":       ErrUnauthorizedClient,
	"unsupported_grant_type":    ErrUnsupportedGrantType,
	"invalid_scope":             ErrInvalidScope,
	"access_denied":             ErrAccessDenied,
	"server_error":              ErrServerError,
	"temporarily_unavailable":   ErrTemporarilyUnavailable,
	"unsupported_response_type": ErrUnsupportedResponseType,
	"invalid_token":             ErrInvalidToken,
	"invalid_client_metadata":   ErrInvalidClientMetadata,
	"insufficient_scope":        ErrInsufficientScope,
}

// ParseOAuthError decodes an OAuth error body. The second result is false when the
// body is not an OAuth error payload.
func ParseOAuthError(statusCode int, body []byte) (*OAuthError, bool) {
	var resp OAuthErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == "" {
		return nil, false
	}
	return &OAuthError{
		ErrorCode:  resp.Error,
		Message:    resp.ErrorDescription,
		ErrorURI:   resp.ErrorURI,
		StatusCode: statusCode,
	}, true
}

// Error implements the error interface
func (o *OAuthError) Error() string {
	if o.Message == "" {
		return o.ErrorCode
	}
	return o.ErrorCode + ": " + o.Message
}

// Unwrap returns the sentinel for the error code. Unknown codes unwrap to ErrServerError.
func (o *OAuthError) Unwrap() error {
	if code, ok := OAuthErrorMapping[o.ErrorCode]; ok {
		return code
	}
	return ErrServerError
}
