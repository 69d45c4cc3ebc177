// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Account Security: lockout thresholds and one-time code lifetimes.
  - Rate Limiting: daily per-IP quotas for credential endpoints.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "bsms-api"
	AppVersion = "0.1.0-dev"

	// PermissionRealm scopes seeded permissions to this deployment.
	PermissionRealm = "BSMS"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Account Security

const (
	// MaxLoginAttempts is the number of consecutive failures before an
	// account is deactivated.
	MaxLoginAttempts = 5

	// PasswordHistoryDepth is how many previous password hashes are retained
	// to block reuse. The current password is checked in addition to these.
	PasswordHistoryDepth = 4

	// OTPLifetime is the validity window for login and resend codes.
	OTPLifetime = 3 * time.Minute

	// ForgotPasswordOTPLifetime is the validity window for recovery codes.
	ForgotPasswordOTPLifetime = 2 * time.Minute

	// ResetTokenLifetime is the validity window for password-reset tokens
	// issued after a successful OTP verification.
	ResetTokenLifetime = 3 * time.Minute

	// TokenRefreshWindow triggers a rolling refresh when the presented access
	// token has less than this long to live.
	TokenRefreshWindow = 5 * time.Minute

	// BlacklistSweepInterval is how often expired blacklist entries are purged.
	BlacklistSweepInterval = 1 * time.Hour
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute

	// LoginRateLimitWindow is the fixed window for the per-IP daily quota on
	// credential endpoints.
	LoginRateLimitWindow = 24 * time.Hour
)

// # Headers

const (
	// HeaderXRequestID carries the correlation ID between client and server.
	HeaderXRequestID = "X-Request-ID"

	// HeaderOrigin is the standard CORS origin header.
	HeaderOrigin = "Origin"

	// HeaderXRealIP and HeaderXForwardedFor carry the client address through
	// reverse proxies.
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"


	// HeaderSourceApp must accompany every login request; its absence marks
	// traffic from unapproved clients.
	HeaderSourceApp = "sourceapp"

	// HeaderRefreshedToken carries a replacement access token back to the
	// client when a rolling refresh occurred mid-request.
	HeaderRefreshedToken = "x-refreshed-token"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldItems   = "items"
	FieldTotal   = "total"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Database Schemas

const (
	SchemaUsers = "users"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	RedisPrefixLoginQuota = "ratelimit:login:"
)
