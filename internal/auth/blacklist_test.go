// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package auth_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ethio-transit/bsms-api/internal/auth"
)

/*
TestBlacklist_AddContainsRemove verifies the basic revocation lifecycle.
*/
func TestBlacklist_AddContainsRemove(t *testing.T) {
	blacklist := auth.NewBlacklist()

	// 1. Unknown accounts are not blacklisted.
	assert.False(t, blacklist.Contains("user-1"))

	// 2. A live revocation is reported.
	blacklist.Add("user-1", time.Now().Add(time.Hour))
	assert.True(t, blacklist.Contains("user-1"))
	assert.Equal(t, 1, blacklist.Len())

	// 3. Re-activation lifts it.
	blacklist.Remove("user-1")
	assert.False(t, blacklist.Contains("user-1"))
}

/*
TestBlacklist_LazyEviction verifies that an expired entry is evicted on
lookup, since a dead token no longer needs blocking.
*/
func TestBlacklist_LazyEviction(t *testing.T) {
	blacklist := auth.NewBlacklist()

	blacklist.Add("user-1", time.Now().Add(-time.Second))

	assert.False(t, blacklist.Contains("user-1"))
	assert.Zero(t, blacklist.Len())
}

/*
TestBlacklist_ConcurrentAccess verifies the list tolerates concurrent
writers and readers; the auth gate consults it on every request.
*/
func TestBlacklist_ConcurrentAccess(t *testing.T) {
	blacklist := auth.NewBlacklist()
	expiresAt := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			userID := "user-" + string('a'+id)
			for iteration := 0; iteration < 200; iteration++ {
				blacklist.Add(userID, expiresAt)
				_ = blacklist.Contains(userID)
				blacklist.Remove(userID)
			}
		}(byte(worker))
	}
	wg.Wait()

	assert.Zero(t, blacklist.Len())
}
