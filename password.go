// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package voteroom

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voteroom-foundation/voteroom/ledger"
	"github.com/voteroom-foundation/voteroom/lib/clock"
	"github.com/voteroom-foundation/voteroom/lib/secret"
)

// DefaultPasswordTTL bounds how long a validated password outcome is
// trusted without revalidation.
const DefaultPasswordTTL = 5 * time.Minute

// ValidationResult is the outcome of a password validation. The shape
// deliberately leaks nothing beyond these three facts.
type ValidationResult struct {
	// IsValid reports whether access to the room is permitted.
	IsValid bool
	// IsAlreadyParticipant means the wallet has already joined; access
	// is direct and no transaction is needed.
	IsAlreadyParticipant bool
	// RequiresTransaction means the password checked out but the
	// wallet must still submit a join transaction.
	RequiresTransaction bool
	// FromCache means the result was served from a previously
	// validated entry without touching the ledger.
	FromCache bool
}

// PasswordValidatorConfig configures a PasswordValidator. Directory is
// required.
type PasswordValidatorConfig struct {
	Directory *Directory

	// Clock provides time for cache expiry. Nil means clock.Real().
	Clock clock.Clock

	// TTL bounds cache entry lifetime. Zero means DefaultPasswordTTL.
	TTL time.Duration

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// PasswordValidator checks a room password against the digest stored
// on the ledger without the plaintext ever leaving the process, and
// caches validated outcomes per (room, wallet).
//
// Cache invalidation is security-critical: every entry is dropped when
// the active wallet changes, when the room changes, or after the TTL.
// A stale entry must never grant access after a wallet switch.
type PasswordValidator struct {
	directory *Directory
	clock     clock.Clock
	ttl       time.Duration
	logger    *slog.Logger

	mu         sync.Mutex
	lastWallet ledger.Address
	lastRoom   string
	entries    map[cacheKey]time.Time
}

type cacheKey struct {
	room   string
	wallet ledger.Address
}

// NewPasswordValidator validates the configuration and builds a
// validator with an empty cache.
func NewPasswordValidator(cfg PasswordValidatorConfig) (*PasswordValidator, error) {
	if cfg.Directory == nil {
		return nil, fmt.Errorf("voteroom: PasswordValidatorConfig.Directory is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultPasswordTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PasswordValidator{
		directory: cfg.Directory,
		clock:     clk,
		ttl:       ttl,
		logger:    logger,
		entries:   make(map[cacheKey]time.Time),
	}, nil
}

// Validate checks password for the (room, wallet) pair. password may
// be nil for open rooms. A mismatch yields {IsValid: false} with no
// error and no detail: wrong password is indistinguishable from any
// other denial in the result shape.
func (v *PasswordValidator) Validate(ctx context.Context, code string, wallet ledger.Address, password *secret.Buffer) (ValidationResult, error) {
	v.trackIdentity(code, wallet)

	if v.cachedValid(code, wallet) {
		return ValidationResult{IsValid: true, IsAlreadyParticipant: true, FromCache: true}, nil
	}

	record, err := v.directory.client.Read().GetRoom(ctx, code)
	if err != nil {
		return ValidationResult{}, classify("voteroom.Validate", err)
	}

	if !record.HasPassword {
		return ValidationResult{IsValid: true}, nil
	}

	if password == nil || !digestMatches(password, record.PasswordHash) {
		v.logger.Debug("password validation failed", "room", code)
		return ValidationResult{}, nil
	}

	status, err := v.directory.Status(ctx, code, wallet)
	if err != nil {
		return ValidationResult{}, err
	}

	if status.IsParticipant {
		v.mu.Lock()
		v.entries[cacheKey{room: code, wallet: wallet}] = v.clock.Now()
		v.mu.Unlock()
		return ValidationResult{IsValid: true, IsAlreadyParticipant: true}, nil
	}
	return ValidationResult{IsValid: true, RequiresTransaction: true}, nil
}

// Invalidate drops every cache entry.
func (v *PasswordValidator) Invalidate() {
	v.mu.Lock()
	v.entries = make(map[cacheKey]time.Time)
	v.mu.Unlock()
}

// trackIdentity clears the cache when the active wallet or room
// changes.
func (v *PasswordValidator) trackIdentity(code string, wallet ledger.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if wallet != v.lastWallet || code != v.lastRoom {
		if len(v.entries) > 0 {
			v.logger.Debug("password cache cleared", "reason", "identity change")
		}
		v.entries = make(map[cacheKey]time.Time)
	}
	v.lastWallet = wallet
	v.lastRoom = code
}

// cachedValid reports whether a fresh validated entry exists for the
// pair, dropping it if expired.
func (v *PasswordValidator) cachedValid(code string, wallet ledger.Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := cacheKey{room: code, wallet: wallet}
	validatedAt, ok := v.entries[key]
	if !ok {
		return false
	}
	if v.clock.Now().Sub(validatedAt) > v.ttl {
		delete(v.entries, key)
		return false
	}
	return true
}

// digestMatches compares the local digest of the supplied password to
// the stored one in constant time.
func digestMatches(password *secret.Buffer, stored ledger.Digest) bool {
	digest := PasswordDigest(password.String())
	return subtle.ConstantTimeCompare(digest[:], stored[:]) == 1
}
