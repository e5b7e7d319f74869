// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication or authorization fails.
// Implementations should wrap this error with additional context:
//
//	if !validToken {
//	    return nil, fmt.Errorf("invalid token format: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo contains identity information returned after successful
// authentication.
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated annotator.
	// This is the only required field and must never be empty.
	UserID string

	// Email is the user's email address. May be empty.
	Email string

	// Roles contains role memberships for authorization decisions.
	// Common roles: "admin", "annotator", "viewer"
	Roles []string

	// Metadata holds additional claims from the identity provider.
	Metadata map[string]any
}

// HasRole checks if the user has a specific role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// The default NopAuthProvider always returns a valid "local-user" with
// admin privileges, so the local tool functions without authentication
// infrastructure. Team deployments validate tokens against an identity
// provider instead.
type AuthProvider interface {
	// Validate checks the token and returns the user's identity, or
	// ErrUnauthorized (possibly wrapped) when the token is invalid.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest describes an authorization check: (subject, action,
// resource).
type AuthzRequest struct {
	// User is the authenticated user making the request.
	User *AuthInfo

	// Action is the operation being attempted.
	// Common actions: "read", "edit", "save", "delete"
	Action string

	// ResourceType is the category of resource being accessed.
	// Examples: "document", "node"
	ResourceType string

	// ResourceID is the specific resource instance, such as a document
	// name. Empty checks the resource type in general.
	ResourceID string
}

// AuthzProvider checks if a user is authorized to perform an action.
//
// Implementations must be safe for concurrent use. The default
// NopAuthzProvider allows everything, which is appropriate for a
// single-annotator local deployment.
type AuthzProvider interface {
	// Authorize returns nil when permitted, ErrUnauthorized (possibly
	// wrapped) when denied.
	Authorize(ctx context.Context, req AuthzRequest) error
}

// NopAuthProvider is the default authentication provider.
//
// It always returns a valid local user with admin privileges. Any token
// value, including the empty string, authenticates.
type NopAuthProvider struct{}

// Validate always returns the local admin user.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

// NopAuthzProvider is the default authorization provider. It allows all
// actions.
type NopAuthzProvider struct{}

// Authorize always returns nil.
func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

// Compile-time interface compliance checks.
var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)
