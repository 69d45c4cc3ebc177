// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethio-transit/bsms-api/internal/platform/constants"
)

// # Token Blacklist

// blacklistEntry pins a revocation to the outstanding token's expiry; once
// the token itself dies of old age, the entry serves no purpose.
type blacklistEntry struct {
	userID    string
	expiresAt time.Time
}

// Blacklist is an in-memory revocation list keyed by account ID.
//
// When an account is disabled, its outstanding access token stays
// cryptographically valid until it expires. The auth gate consults this list
// on every request so a disabled account is cut off immediately rather than
// at token expiry. Entries are evicted lazily on lookup and swept
// periodically by [Blacklist.StartSweeper].
type Blacklist struct {
	mu      sync.Mutex
	entries map[string]blacklistEntry
}

// NewBlacklist constructs an empty [Blacklist].
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: map[string]blacklistEntry{}}
}

/*
Add records a revocation for the account until the given expiry.

Parameters:
  - userID: string
  - expiresAt: time.Time (the outstanding token's expiry)
*/
func (blacklist *Blacklist) Add(userID string, expiresAt time.Time) {
	blacklist.mu.Lock()
	defer blacklist.mu.Unlock()
	blacklist.entries[userID] = blacklistEntry{userID: userID, expiresAt: expiresAt}
}

/*
Contains reports whether the account currently holds a live revocation.

Description: An expired entry is evicted on the spot and reported as absent.

Parameters:
  - userID: string

Returns:
  - bool: true when the account's tokens must be rejected
*/
func (blacklist *Blacklist) Contains(userID string) bool {
	blacklist.mu.Lock()
	defer blacklist.mu.Unlock()

	entry, ok := blacklist.entries[userID]
	if !ok {
		return false
	}
	if time.Now().After(entry.expiresAt) {
		delete(blacklist.entries, userID)
		return false
	}
	return true
}

// Remove lifts the account's revocation, typically after re-activation.
func (blacklist *Blacklist) Remove(userID string) {
	blacklist.mu.Lock()
	defer blacklist.mu.Unlock()
	delete(blacklist.entries, userID)
}

// Len returns the number of live entries. Used by tests and health reporting.
func (blacklist *Blacklist) Len() int {
	blacklist.mu.Lock()
	defer blacklist.mu.Unlock()
	return len(blacklist.entries)
}

/*
StartSweeper launches a background goroutine that purges expired entries.

Description: Lazy eviction only reclaims entries that are looked up again;
the sweeper reclaims the rest. The goroutine exits when the context is
cancelled.

Parameters:
  - context: context.Context (cancellation stops the sweeper)
  - logger: *slog.Logger
*/
func (blacklist *Blacklist) StartSweeper(context context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(constants.BlacklistSweepInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-context.Done():
				return
			case <-ticker.C:
				removed := blacklist.sweep()
				if removed > 0 {
					logger.Debug("blacklist_swept", slog.Int("removed", removed))
				}
			}
		}
	}()
}

// sweep removes every expired entry and reports how many were removed.
func (blacklist *Blacklist) sweep() int {
	blacklist.mu.Lock()
	defer blacklist.mu.Unlock()

	now := time.Now()
	removed := 0
	for userID, entry := range blacklist.entries {
		if now.After(entry.expiresAt) {
			delete(blacklist.entries, userID)
			removed++
		}
	}
	return removed
}
