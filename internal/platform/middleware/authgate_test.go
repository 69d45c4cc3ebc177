// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethio-transit/bsms-api/internal/auth"
	"github.com/ethio-transit/bsms-api/internal/identity"
	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
	"github.com/ethio-transit/bsms-api/internal/platform/constants"
	"github.com/ethio-transit/bsms-api/internal/platform/middleware"
	"github.com/ethio-transit/bsms-api/internal/platform/sec"
)

// # Test Doubles

type stubUserLoader struct {
	user *identity.User
}

func (loader *stubUserLoader) FindByID(_ context.Context, id string) (*identity.User, error) {
	if loader.user == nil || loader.user.ID != id {
		return nil, apperr.NotFound("User")
	}
	return loader.user, nil
}

type stubSessionLoader struct {
	session *auth.Session
}

func (loader *stubSessionLoader) FindByID(_ context.Context, id string) (*auth.Session, error) {
	if loader.session == nil || loader.session.ID != id {
		return nil, apperr.NotFound("Session")
	}
	return loader.session, nil
}

// # Fixtures

type gateFixture struct {
	tokens     *sec.TokenService
	users      *stubUserLoader
	sessions   *stubSessionLoader
	blacklist  *auth.Blacklist
	handler    http.Handler
	seenUserID string
}

func newGateFixture(t *testing.T, accessTTL time.Duration) *gateFixture {
	t.Helper()

	tokens, err := sec.NewTokenService("gate-test-secret", "bsms-api", accessTTL, 3*time.Minute)
	require.NoError(t, err)

	fixture := &gateFixture{
		tokens: tokens,
		users: &stubUserLoader{user: &identity.User{
			ID:     "user-1",
			Status: identity.StatusActive,
		}},
		sessions:  &stubSessionLoader{session: &auth.Session{ID: "session-1", UserID: "user-1", IsActive: true}},
		blacklist: auth.NewBlacklist(),
	}

	gate := middleware.AuthGate(tokens, fixture.users, fixture.sessions, fixture.blacklist)
	fixture.handler = gate(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if user := identity.UserFromContext(request.Context()); user != nil {
			fixture.seenUserID = user.ID
		}
		writer.WriteHeader(http.StatusOK)
	}))

	return fixture
}

func (fixture *gateFixture) request(t *testing.T, token string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)
	return recorder
}

func (fixture *gateFixture) mintToken(t *testing.T) string {
	t.Helper()
	token, err := fixture.tokens.GenerateAccessToken("user-1", "session-1")
	require.NoError(t, err)
	return token
}

// # Gate Behavior

/*
TestAuthGate_HappyPath verifies a valid token passes and the account lands in
the request context.
*/
func TestAuthGate_HappyPath(t *testing.T) {
	fixture := newGateFixture(t, 30*time.Minute)

	recorder := fixture.request(t, fixture.mintToken(t))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "user-1", fixture.seenUserID)
	// Far from expiry, no replacement token is issued.
	assert.Empty(t, recorder.Header().Get(constants.HeaderRefreshedToken))
}

/*
TestAuthGate_MissingOrMalformedToken verifies absent and malformed headers are
rejected identically.
*/
func TestAuthGate_MissingOrMalformedToken(t *testing.T) {
	fixture := newGateFixture(t, 30*time.Minute)

	// 1. No header at all.
	assert.Equal(t, http.StatusUnauthorized, fixture.request(t, "").Code)

	// 2. Garbage token.
	assert.Equal(t, http.StatusUnauthorized, fixture.request(t, "not-a-jwt").Code)

	// 3. Wrong scheme.
	request := httptest.NewRequest(http.MethodGet, "/protected", nil)
	request.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

/*
TestAuthGate_ExpiredToken verifies an expired but well-signed token is
rejected after the revocation and account checks.
*/
func TestAuthGate_ExpiredToken(t *testing.T) {
	fixture := newGateFixture(t, -time.Minute)

	recorder := fixture.request(t, fixture.mintToken(t))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "Invalid or expired token")
}

/*
TestAuthGate_DisabledAccountIsRevoked verifies a disabled account is rejected
and blacklisted, and that the blacklist answers the next request.
*/
func TestAuthGate_DisabledAccountIsRevoked(t *testing.T) {
	fixture := newGateFixture(t, 30*time.Minute)
	fixture.users.user.Status = identity.StatusInactive
	token := fixture.mintToken(t)

	// 1. First request hits the status check and plants a revocation.
	recorder := fixture.request(t, token)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "Account is not active")
	assert.True(t, fixture.blacklist.Contains("user-1"))

	// 2. Second request is cut off by the revocation list.
	recorder = fixture.request(t, token)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "Token has been revoked")
}

/*
TestAuthGate_SelfHealingRevocation verifies a stale revocation is lifted once
the account is active again.
*/
func TestAuthGate_SelfHealingRevocation(t *testing.T) {
	fixture := newGateFixture(t, 30*time.Minute)
	fixture.blacklist.Add("user-1", time.Now().Add(time.Hour))

	recorder := fixture.request(t, fixture.mintToken(t))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.False(t, fixture.blacklist.Contains("user-1"))
}

/*
TestAuthGate_InactiveSession verifies tokens anchored to a rotated session
are refused.
*/
func TestAuthGate_InactiveSession(t *testing.T) {
	fixture := newGateFixture(t, 30*time.Minute)
	fixture.sessions.session.IsActive = false

	recorder := fixture.request(t, fixture.mintToken(t))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "Session invalid or expired")
}

/*
TestAuthGate_RollingRefresh verifies a near-expiry token yields a replacement
in the response headers, bound to the same session.
*/
func TestAuthGate_RollingRefresh(t *testing.T) {
	// Two-minute TTL sits inside the five-minute refresh window.
	fixture := newGateFixture(t, 2*time.Minute)

	recorder := fixture.request(t, fixture.mintToken(t))

	require.Equal(t, http.StatusOK, recorder.Code)
	replacement := recorder.Header().Get(constants.HeaderRefreshedToken)
	require.NotEmpty(t, replacement)

	claims, err := fixture.tokens.VerifyAccessToken(replacement)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "session-1", claims.SessionID)
}

// # Permission Guard

type stubPermissionResolver struct {
	names map[string][]string
}

func (resolver *stubPermissionResolver) PermissionNames(_ context.Context, userID string) ([]string, error) {
	names, ok := resolver.names[userID]
	if !ok {
		return nil, apperr.NotFound("User permission group")
	}
	return names, nil
}

/*
TestRequirePermission verifies the permission guard's grant, deny, and
missing-group paths.
*/
func TestRequirePermission(t *testing.T) {
	resolver := &stubPermissionResolver{names: map[string][]string{
		"user-1": {"get users", "update user"},
	}}

	run := func(permission string, user *identity.User) int {
		guard := middleware.RequirePermission(resolver, permission)
		handler := guard(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusOK)
		}))

		request := httptest.NewRequest(http.MethodGet, "/", nil)
		if user != nil {
			request = request.WithContext(identity.ContextWithUser(request.Context(), user))
		}
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder.Code
	}

	// 1. Granted permission passes.
	assert.Equal(t, http.StatusOK, run("get users", &identity.User{ID: "user-1"}))

	// 2. Missing permission is forbidden.
	assert.Equal(t, http.StatusForbidden, run("delete user", &identity.User{ID: "user-1"}))

	// 3. No authenticated account.
	assert.Equal(t, http.StatusUnauthorized, run("get users", nil))

	// 4. Account without any permission group.
	assert.Equal(t, http.StatusNotFound, run("get users", &identity.User{ID: "user-2"}))
}
