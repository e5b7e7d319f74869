// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"
)

// memguardInitOnce ensures memguard initialization happens only once.
var memguardInitOnce sync.Once

// initMemguard arms memguard's interrupt handler and probes the mlock
// limit (platform-specific, see token_unix.go).
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		if sufficient, limitKB := checkMlockLimit(); !sufficient {
			slog.Warn("mlock limit too low, token pages may be swappable",
				"limit_kb", limitKB)
		}
	})
}

// StaticTokenProvider authenticates requests against one preconfigured
// API token held in a locked buffer, so the secret never sits in
// swappable garbage-collected memory.
//
// Thread Safety: Safe for concurrent use.
type StaticTokenProvider struct {
	token *memguard.LockedBuffer
}

// NewStaticTokenProvider creates a provider for the given token. The
// plaintext argument should not be retained by the caller.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	initMemguard()
	return &StaticTokenProvider{
		token: memguard.NewBufferFromBytes([]byte(token)),
	}
}

// Validate compares the presented token in constant time.
func (p *StaticTokenProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if p.token == nil || !p.token.IsAlive() {
		return nil, fmt.Errorf("token provider destroyed: %w", ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare([]byte(token), p.token.Bytes()) != 1 {
		return nil, fmt.Errorf("invalid api token: %w", ErrUnauthorized)
	}
	return &AuthInfo{
		UserID: "token-user",
		Roles:  []string{"annotator"},
	}, nil
}

// Destroy wipes the stored token. The provider rejects everything
// afterward.
func (p *StaticTokenProvider) Destroy() {
	if p.token != nil {
		p.token.Destroy()
	}
}

var _ AuthProvider = (*StaticTokenProvider)(nil)
