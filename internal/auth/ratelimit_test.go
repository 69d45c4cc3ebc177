// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethio-transit/bsms-api/internal/auth"
	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
)

func newTestQuota(t *testing.T, limit int) (*auth.LoginQuota, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return auth.NewLoginQuota(client, limit), server
}

/*
TestLoginQuota_AllowsUpToLimit verifies the cap is enforced exactly at the
configured limit.
*/
func TestLoginQuota_AllowsUpToLimit(t *testing.T) {
	quota, _ := newTestQuota(t, 3)
	ctx := context.Background()

	// 1. The first three attempts pass.
	for attempt := 0; attempt < 3; attempt++ {
		require.NoError(t, quota.Allow(ctx, "10.0.0.1"))
	}

	// 2. The fourth is rejected with a retry hint.
	err := quota.Allow(ctx, "10.0.0.1")
	var appError *apperr.AppError
	require.True(t, errors.As(err, &appError))
	assert.Equal(t, 429, appError.HTTPStatus)
	assert.Greater(t, appError.RetryAfter, time.Duration(0))

	// 3. A different IP is unaffected.
	assert.NoError(t, quota.Allow(ctx, "10.0.0.2"))
}

/*
TestLoginQuota_WindowExpiry verifies the counter resets once the daily window
lapses.
*/
func TestLoginQuota_WindowExpiry(t *testing.T) {
	quota, server := newTestQuota(t, 1)
	ctx := context.Background()

	require.NoError(t, quota.Allow(ctx, "10.0.0.1"))
	assert.Error(t, quota.Allow(ctx, "10.0.0.1"))

	// Jump past the 24h window.
	server.FastForward(24*time.Hour + time.Second)

	assert.NoError(t, quota.Allow(ctx, "10.0.0.1"))
}

/*
TestLoginQuota_Remaining verifies the remaining-attempt accounting.
*/
func TestLoginQuota_Remaining(t *testing.T) {
	quota, _ := newTestQuota(t, 5)
	ctx := context.Background()

	remaining, err := quota.Remaining(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	require.NoError(t, quota.Allow(ctx, "10.0.0.1"))
	require.NoError(t, quota.Allow(ctx, "10.0.0.1"))

	remaining, err = quota.Remaining(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}
