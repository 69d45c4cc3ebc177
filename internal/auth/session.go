// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

/*
Package auth implements credential verification, OTP challenges, the session
lifecycle, and the password lifecycle for operator accounts.

Architecture:

  - Service: Orchestrates login, OTP, and password flows.
  - SessionRepository: PostgreSQL-backed session storage.
  - Blacklist: In-memory revocation list consulted by the auth gate.
  - LoginQuota: Redis-backed per-IP daily quota for credential endpoints.

Access tokens are stateless JWTs, but every token is anchored to a session
row: revoking the session invalidates every token minted for it, which gives
the single-active-session guarantee without a token denylist per device.
*/
package auth

import "time"

// Session anchors the access tokens issued to one device login.
//
// An account holds at most one active session; issuing a new one deactivates
// the rest, so logging in on a second device signs the first one out.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	IsActive  bool      `json:"isActive"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
