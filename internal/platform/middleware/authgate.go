// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ethio-transit/bsms-api/internal/auth"
	"github.com/ethio-transit/bsms-api/internal/identity"
	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
	"github.com/ethio-transit/bsms-api/internal/platform/constants"
	"github.com/ethio-transit/bsms-api/internal/platform/ctxutil"
	"github.com/ethio-transit/bsms-api/internal/platform/respond"
	"github.com/ethio-transit/bsms-api/internal/platform/sec"
)

// # Auth Gate Contracts

// TokenGateway defines the token operations the gate needs.
//
// # Why an interface?
//
// Defining the contract here decouples the middleware from [sec.TokenService],
// allowing mocks during unit testing.
type TokenGateway interface {
	// ResolveAccessToken checks the signature but tolerates expiry; the gate
	// must identify the subject of an expired token to apply revocations.
	ResolveAccessToken(tokenString string) (*sec.AuthClaims, error)
	// VerifyAccessToken performs the full validation including expiry.
	VerifyAccessToken(tokenString string) (*sec.AuthClaims, error)
	// GenerateAccessToken mints a replacement token for the rolling refresh.
	GenerateAccessToken(userID, sessionID string) (string, error)
}

// UserLoader resolves accounts for the gate and the permission check.
type UserLoader interface {
	FindByID(context context.Context, id string) (*identity.User, error)
}

// SessionLoader resolves the session a token is anchored to.
type SessionLoader interface {
	FindByID(context context.Context, id string) (*auth.Session, error)
}

// RevocationList is the subset of [auth.Blacklist] the gate consults.
type RevocationList interface {
	Contains(userID string) bool
	Add(userID string, expiresAt time.Time)
	Remove(userID string)
}

/*
AuthGate authenticates every request carrying a bearer token and blocks the
rest.

# Flow

 1. Extract 'Authorization: Bearer <token>'; absent or malformed is rejected.
 2. Resolve the token signature, tolerating expiry: revocations must apply to
    expired tokens too.
 3. Consult the revocation list. A revoked entry whose account has since been
    re-activated is removed (self-healing); otherwise the token is refused.
 4. Load the account; a disabled account is revoked on the spot so subsequent
    requests fail without a database hit.
 5. Fully verify the token (now including expiry).
 6. Check the anchoring session is still active; a rotated or revoked session
    kills every token minted for it.
 7. When the token is inside the refresh window, mint a replacement for the
    same session and expose it via the x-refreshed-token header.
 8. Inject claims and the hydrated account into the request context.

# Parameters
  - tokens: The token gateway.
  - users: Account resolution.
  - sessions: Session resolution.
  - revocations: The in-memory blacklist.

# Returns
  - An [http.Handler] middleware.
*/
func AuthGate(tokens TokenGateway, users UserLoader, sessions SessionLoader, revocations RevocationList) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// ── 1. Bearer Extraction ──────────────────────────────────────────
			tokenString := bearerToken(request)
			if tokenString == "" {
				respond.Error(writer, request, apperr.Unauthorized("Please authenticate"))
				return
			}

			// ── 2. Signature Resolution ───────────────────────────────────────
			claims, err := tokens.ResolveAccessToken(tokenString)
			if err != nil {
				respond.Error(writer, request, apperr.Unauthorized("Please authenticate"))
				return
			}
			userID := claims.UserID()

			// Account state feeds both the revocation check and the status
			// check, so load it once up front.
			user, userErr := users.FindByID(request.Context(), userID)
			accountActive := userErr == nil && !user.IsDeleted && user.Status == identity.StatusActive

			// ── 3. Revocation Check ───────────────────────────────────────────
			if revocations.Contains(userID) {
				if accountActive {
					// Stale entry left over from before re-activation.
					revocations.Remove(userID)
				} else {
					respond.Error(writer, request, apperr.Unauthorized("Token has been revoked"))
					return
				}
			}

			// ── 4. Account Check ──────────────────────────────────────────────
			if userErr != nil || user.IsDeleted {
				respond.Error(writer, request, apperr.Unauthorized("Please authenticate"))
				return
			}
			if user.Status != identity.StatusActive {
				if claims.ExpiresAt != nil {
					revocations.Add(userID, claims.ExpiresAt.Time)
				}
				respond.Error(writer, request, apperr.Forbidden("Account is not active"))
				return
			}

			// ── 5. Full Verification ──────────────────────────────────────────
			if _, err := tokens.VerifyAccessToken(tokenString); err != nil {
				respond.Error(writer, request, apperr.Unauthorized("Invalid or expired token"))
				return
			}

			// ── 6. Session Check ──────────────────────────────────────────────
			session, err := sessions.FindByID(request.Context(), claims.SessionID)
			if err != nil || !session.IsActive {
				respond.Error(writer, request, apperr.Unauthorized("Session invalid or expired"))
				return
			}

			// ── 7. Rolling Refresh ────────────────────────────────────────────
			if claims.ExpiresAt != nil && time.Until(claims.ExpiresAt.Time) < constants.TokenRefreshWindow {
				if replacement, err := tokens.GenerateAccessToken(userID, session.ID); err == nil {
					writer.Header().Set(constants.HeaderRefreshedToken, replacement)
				}
			}

			// ── 8. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithAuthClaims(request.Context(), claims)
			ctx = identity.ContextWithUser(ctx, user)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header, or "" when
// the header is absent or malformed.
func bearerToken(request *http.Request) string {
	header := request.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
