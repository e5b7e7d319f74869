// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines interfaces for deployment-specific functionality.
//
// This package provides extension points that let hosted or team
// deployments of the annotation service add capabilities without
// modifying the core codebase. The open source version uses no-op
// defaults for all interfaces: the local single-annotator tool works
// offline with no auth infrastructure at all.
//
// # Extension Categories
//
//   - auth.go: Authentication and authorization (AuthProvider, AuthzProvider)
//   - token.go: Secure API-token storage (StaticTokenProvider)
//   - audit.go: Edit audit logging (AuditLogger)
//
// # Usage
//
// The serve path assembles a ServiceExtensions and hands the providers
// to the HTTP middleware:
//
//	ext := extensions.Default()
//	if cfg.APIToken != "" {
//	    ext.Auth = extensions.NewStaticTokenProvider(cfg.APIToken)
//	}
package extensions

// ServiceExtensions bundles the extension implementations one deployment
// uses. Zero-value fields fall back to the no-op defaults.
type ServiceExtensions struct {
	// Auth validates bearer tokens on incoming requests.
	Auth AuthProvider

	// Authz decides whether an authenticated user may perform an action.
	Authz AuthzProvider

	// Audit records destructive edits for compliance review.
	Audit AuditLogger
}

// Default returns the open source extension set: everyone is local-user,
// everything is allowed, nothing is audited.
func Default() ServiceExtensions {
	return ServiceExtensions{
		Auth:  &NopAuthProvider{},
		Authz: &NopAuthzProvider{},
		Audit: &NopAuditLogger{},
	}
}
