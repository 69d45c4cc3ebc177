// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
	"github.com/ethio-transit/bsms-api/internal/platform/constants"
)

// # Login Quota

// LoginQuota enforces a fixed daily cap on credential-guessing endpoints,
// counted per client IP in Redis.
//
// The counter survives process restarts and is shared across instances, which
// an in-process limiter cannot offer. The window is fixed rather than
// sliding: the first request from an IP opens a 24h window and the key
// expires with it.
type LoginQuota struct {
	client *redis.Client
	limit  int
}

// NewLoginQuota constructs a [LoginQuota] with the given daily cap.
func NewLoginQuota(client *redis.Client, limit int) *LoginQuota {
	return &LoginQuota{client: client, limit: limit}
}

/*
Allow consumes one attempt for the given client IP.

Description: INCR-then-EXPIRE keeps the check to two round trips; the expiry
is only set when the INCR opened the window. Over the cap, the remaining
window length is surfaced as a Retry-After hint.

Parameters:
  - context: context.Context
  - clientIP: string

Returns:
  - error: apperr.TooManyRequests once the daily cap is exhausted, or Redis
    connectivity failures
*/
func (quota *LoginQuota) Allow(context context.Context, clientIP string) error {
	key := constants.RedisPrefixLoginQuota + clientIP

	count, err := quota.client.Incr(context, key).Result()
	if err != nil {
		return fmt.Errorf("auth_login_quota_incr_failed: %w", err)
	}

	if count == 1 {
		if err := quota.client.Expire(context, key, constants.LoginRateLimitWindow).Err(); err != nil {
			return fmt.Errorf("auth_login_quota_expire_failed: %w", err)
		}
	}

	if count > int64(quota.limit) {
		retryAfter, err := quota.client.TTL(context, key).Result()
		if err != nil || retryAfter < 0 {
			retryAfter = constants.LoginRateLimitWindow
		}
		return apperr.TooManyRequests(retryAfter)
	}

	return nil
}

// Remaining reports how many attempts the IP has left in the current window.
// Used by tests and operational tooling.
func (quota *LoginQuota) Remaining(context context.Context, clientIP string) (int, error) {
	key := constants.RedisPrefixLoginQuota + clientIP

	count, err := quota.client.Get(context, key).Int()
	if err != nil {
		if err == redis.Nil {
			return quota.limit, nil
		}
		return 0, fmt.Errorf("auth_login_quota_get_failed: %w", err)
	}

	remaining := quota.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
