// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package mcp

import (
	"fmt"
	"net/http"

	"trpc.group/trpc-go/trpc-mcp-authclient-go/internal/errors"
)

// Errors returned by the factory, builders, transports and clients. Match them with errors.Is.
var (
	ErrInvalidArgument       = errors.ErrInvalidArgument
	ErrTransportConstruction = errors.ErrTransportConstruction
	ErrAuthentication        = errors.ErrAuthentication
	ErrNotInitialized        = errors.ErrNotInitialized
	ErrAlreadyInitialized    = errors.ErrAlreadyInitialized
	ErrTransportClosed       = errors.ErrTransportClosed
	ErrSessionNotFound       = errors.ErrSessionNotFound
)

// Reasons carried by AuthenticationError.
const (
	AuthReasonRejected          = "rejected"           // 401 after the refreshed retry
	AuthReasonRefreshFailed     = "refresh_failed"     // the provider could not produce a token
	AuthReasonInteractionNeeded = "interaction_needed" // the flow ended in a browser redirect
)

// AuthenticationError is returned when credentials could not be obtained or the server
// rejected them after the single permitted retry.
type AuthenticationError struct {
	StatusCode int    // last HTTP status seen, 0 when no response was received
	Reason     string // one of the AuthReason constants
	Err        error  // underlying cause, may be nil
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("%v: %s", ErrAuthentication, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d %s)", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the ErrAuthentication sentinel and the cause.
func (e *AuthenticationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuthentication}
	}
	return []error{ErrAuthentication, e.Err}
}
