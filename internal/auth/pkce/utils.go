// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

// Package pkce generates RFC 7636 proof key pairs for the authorization code flow.
package pkce

import "golang.org/x/oauth2"

// MethodS256 is the only challenge method the client offers.
const MethodS256 = "S256"

// PKCEChallenge holds PKCE code verifier and challenge
type PKCEChallenge struct {
	// CodeVerifier is the high-entropy random string kept by the client
	CodeVerifier string
	// CodeChallenge is BASE64URL(SHA256(CodeVerifier))
	CodeChallenge string
}

// GeneratePKCEChallenge generates a new verifier and its S256 challenge.
func GeneratePKCEChallenge() *PKCEChallenge {
	verifier := oauth2.GenerateVerifier()
	return &PKCEChallenge{
		CodeVerifier:  verifier,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
	}
}
