// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

// Package errors defines the sentinel errors shared by the client, its transports and the
// OAuth flow.
package errors

import "errors"

// Client construction and lifecycle errors.
var (
	// ErrInvalidArgument reports a missing or blank required input detected before any
	// transport is built.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransportConstruction reports a transport builder that could not produce a transport.
	ErrTransportConstruction = errors.New("transport construction failed")
	// ErrAuthentication reports that credentials could not be obtained or were rejected
	// after the single permitted retry.
	ErrAuthentication = errors.New("authentication failed")

	ErrNotInitialized     = errors.New("client not initialized")
	ErrAlreadyInitialized = errors.New("client already initialized")
	ErrTransportClosed    = errors.New("transport closed")
	ErrSessionNotFound    = errors.New("session not found")
)
