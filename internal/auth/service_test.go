// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethio-transit/bsms-api/internal/auth"
	"github.com/ethio-transit/bsms-api/internal/identity"
	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
	"github.com/ethio-transit/bsms-api/internal/platform/sec"
)

// # Test Doubles

// fakeUserRepository is a single-account UserRepository; the auth flows only
// ever touch one account at a time. A non-nil findErr is returned from the
// lookup methods to imitate a storage outage.
type fakeUserRepository struct {
	user          *identity.User
	findErr       error
	touchedOnline bool
}

func (repo *fakeUserRepository) find() (*identity.User, error) {
	if repo.user == nil {
		return nil, apperr.NotFound("User")
	}
	clone := *repo.user
	return &clone, nil
}

func (repo *fakeUserRepository) FindByID(_ context.Context, id string) (*identity.User, error) {
	if repo.findErr != nil {
		return nil, repo.findErr
	}
	if repo.user == nil || repo.user.ID != id {
		return nil, apperr.NotFound("User")
	}
	return repo.find()
}

func (repo *fakeUserRepository) FindByPhone(_ context.Context, phoneNumber string) (*identity.User, error) {
	if repo.findErr != nil {
		return nil, repo.findErr
	}
	if repo.user == nil || repo.user.PhoneNumber != phoneNumber || repo.user.IsDeleted {
		return nil, apperr.NotFound("User")
	}
	return repo.find()
}

func (repo *fakeUserRepository) List(_ context.Context, _ identity.ListFilter) ([]identity.User, int, error) {
	return nil, 0, nil
}

func (repo *fakeUserRepository) Create(_ context.Context, user *identity.User) error {
	repo.user = user
	return nil
}

func (repo *fakeUserRepository) Update(_ context.Context, _ *identity.User) error { return nil }

func (repo *fakeUserRepository) UpdatePassword(_ context.Context, _, newHash string, history []string) error {
	repo.user.PasswordHash = newHash
	repo.user.PasswordHistory = history
	return nil
}

func (repo *fakeUserRepository) SetStatus(_ context.Context, _ string, status identity.AccountStatus, reason string) error {
	repo.user.Status = status
	repo.user.StatusReason = reason
	return nil
}

func (repo *fakeUserRepository) IncrementLoginAttempts(_ context.Context, _ string) (int, error) {
	repo.user.LoginAttemptCount++
	return repo.user.LoginAttemptCount, nil
}

func (repo *fakeUserRepository) ResetLoginAttempts(_ context.Context, _ string) error {
	repo.user.LoginAttemptCount = 0
	return nil
}

func (repo *fakeUserRepository) TouchLastOnline(_ context.Context, _ string) error {
	repo.touchedOnline = true
	return nil
}

func (repo *fakeUserRepository) SetOTP(_ context.Context, _, code string, expiresAt time.Time) error {
	repo.user.OTP = code
	repo.user.OTPExpiresAt = &expiresAt
	return nil
}

func (repo *fakeUserRepository) ClearOTP(_ context.Context, _ string) error {
	repo.user.OTP = ""
	repo.user.OTPExpiresAt = nil
	return nil
}

func (repo *fakeUserRepository) MarkVerified(_ context.Context, _ string) error {
	repo.user.IsVerified = true
	return nil
}

func (repo *fakeUserRepository) SoftDelete(_ context.Context, _ string) error {
	repo.user.IsDeleted = true
	return nil
}

// fakeSessionRepository keeps sessions in a slice, newest last.
type fakeSessionRepository struct {
	sessions []*auth.Session
}

func (repo *fakeSessionRepository) FindByID(_ context.Context, id string) (*auth.Session, error) {
	for _, session := range repo.sessions {
		if session.ID == id {
			return session, nil
		}
	}
	return nil, apperr.NotFound("Session")
}

func (repo *fakeSessionRepository) FindActiveByUser(_ context.Context, userID string) (*auth.Session, error) {
	for _, session := range repo.sessions {
		if session.UserID == userID && session.IsActive {
			return session, nil
		}
	}
	return nil, apperr.NotFound("Session")
}

func (repo *fakeSessionRepository) RotateActive(_ context.Context, session *auth.Session) error {
	for _, existing := range repo.sessions {
		if existing.UserID == session.UserID {
			existing.IsActive = false
		}
	}
	session.IsActive = true
	repo.sessions = append(repo.sessions, session)
	return nil
}

func (repo *fakeSessionRepository) ReuseOrCreate(ctx context.Context, session *auth.Session) (*auth.Session, error) {
	if existing, err := repo.FindActiveByUser(ctx, session.UserID); err == nil {
		return existing, nil
	}
	session.IsActive = true
	repo.sessions = append(repo.sessions, session)
	return session, nil
}

func (repo *fakeSessionRepository) DeactivateAllForUser(_ context.Context, userID string) error {
	for _, session := range repo.sessions {
		if session.UserID == userID {
			session.IsActive = false
		}
	}
	return nil
}

func (repo *fakeSessionRepository) activeCount(userID string) int {
	count := 0
	for _, session := range repo.sessions {
		if session.UserID == userID && session.IsActive {
			count++
		}
	}
	return count
}

// recordingSender captures delivered messages instead of sending them.
type recordingSender struct {
	messages []string
}

func (sender *recordingSender) Send(_ context.Context, _, message string) error {
	sender.messages = append(sender.messages, message)
	return nil
}

// # Fixtures

const testPassword = "orig-passw0rd"

func verifiedUser(t *testing.T) *identity.User {
	t.Helper()
	hash, err := sec.HashPassword(testPassword)
	require.NoError(t, err)
	return &identity.User{
		ID:           "user-1",
		FirstName:    "Abebe",
		LastName:     "Kebede",
		PhoneNumber:  "+251911223344",
		PasswordHash: hash,
		Role:         sec.RoleCashier,
		Status:       identity.StatusActive,
		IsVerified:   true,
	}
}

func newTestService(t *testing.T, user *identity.User) (*auth.Service, *fakeUserRepository, *fakeSessionRepository, *recordingSender) {
	t.Helper()
	tokens, err := sec.NewTokenService("test-secret-key", "bsms-api", 30*time.Minute, 3*time.Minute)
	require.NoError(t, err)

	users := &fakeUserRepository{user: user}
	sessions := &fakeSessionRepository{}
	sender := &recordingSender{}
	service := auth.NewService(users, sessions, tokens, sender, true)
	return service, users, sessions, sender
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var appError *apperr.AppError
	require.True(t, errors.As(err, &appError), "expected AppError, got %v", err)
	return appError.HTTPStatus
}

func messageOf(t *testing.T, err error) string {
	t.Helper()
	var appError *apperr.AppError
	require.True(t, errors.As(err, &appError))
	return appError.Message
}

// # Login

/*
TestLogin_Success verifies that a verified account receives a token and a
freshly rotated session.
*/
func TestLogin_Success(t *testing.T) {
	service, users, sessions, _ := newTestService(t, verifiedUser(t))
	users.user.LoginAttemptCount = 3

	result, err := service.Login(context.Background(), auth.LoginInput{
		PhoneNumber: "0911223344",
		Password:    testPassword,
	})

	require.NoError(t, err)
	assert.Equal(t, "Login successful", result.Message)
	assert.NotEmpty(t, result.AccessToken)
	assert.False(t, result.RequiresVerification)
	// The failed-attempt counter clears on success.
	assert.Zero(t, users.user.LoginAttemptCount)
	// Exactly one active session exists.
	assert.Equal(t, 1, sessions.activeCount("user-1"))
	// The account's last-online marker is stamped.
	assert.True(t, users.touchedOnline)
}

/*
TestLogin_RotatesSession verifies a second login deactivates the first
session.
*/
func TestLogin_RotatesSession(t *testing.T) {
	service, _, sessions, _ := newTestService(t, verifiedUser(t))

	first, err := service.Login(context.Background(), auth.LoginInput{PhoneNumber: "+251911223344", Password: testPassword})
	require.NoError(t, err)
	second, err := service.Login(context.Background(), auth.LoginInput{PhoneNumber: "+251911223344", Password: testPassword})
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, 1, sessions.activeCount("user-1"))
	assert.Len(t, sessions.sessions, 2)
}

/*
TestLogin_LockoutProgression verifies the attempt countdown and the lock at
the threshold.
*/
func TestLogin_LockoutProgression(t *testing.T) {
	service, users, _, _ := newTestService(t, verifiedUser(t))

	// 1. First four failures count down toward the lock.
	expected := []string{"4 attempt(s) left", "3 attempt(s) left", "2 attempt(s) left", "1 attempt(s) left"}
	for _, fragment := range expected {
		_, err := service.Login(context.Background(), auth.LoginInput{
			PhoneNumber: "+251911223344",
			Password:    "wrong-password",
		})
		assert.Equal(t, 401, statusOf(t, err))
		assert.Contains(t, messageOf(t, err), fragment)
	}

	// 2. The fifth failure disables the account.
	_, err := service.Login(context.Background(), auth.LoginInput{PhoneNumber: "+251911223344", Password: "wrong-password"})
	assert.Equal(t, "Account is locked", messageOf(t, err))
	assert.Equal(t, identity.StatusInactive, users.user.Status)

	// 3. Even the right password cannot enter a disabled account.
	_, err = service.Login(context.Background(), auth.LoginInput{PhoneNumber: "+251911223344", Password: testPassword})
	assert.Equal(t, 403, statusOf(t, err))
	assert.Equal(t, "Account is locked", messageOf(t, err))
}

/*
TestLogin_UnknownPhone verifies unknown numbers get the generic rejection.
*/
func TestLogin_UnknownPhone(t *testing.T) {
	service, _, _, _ := newTestService(t, verifiedUser(t))

	_, err := service.Login(context.Background(), auth.LoginInput{
		PhoneNumber: "0911999999",
		Password:    testPassword,
	})

	assert.Equal(t, 401, statusOf(t, err))
	assert.Equal(t, "Incorrect credentials.", messageOf(t, err))
}

/*
TestLogin_StorageFailure verifies a repository outage does not masquerade as a
credential rejection; the untyped error passes through so the transport layer
answers 500.
*/
func TestLogin_StorageFailure(t *testing.T) {
	service, users, _, _ := newTestService(t, verifiedUser(t))
	users.findErr = errors.New("connection refused")

	_, err := service.Login(context.Background(), auth.LoginInput{
		PhoneNumber: "+251911223344",
		Password:    testPassword,
	})

	require.Error(t, err)
	var appError *apperr.AppError
	assert.False(t, errors.As(err, &appError), "storage failure leaked as %v", err)
	assert.ErrorIs(t, err, users.findErr)
}

/*
TestForgotPassword_StorageFailure verifies the OTP flows make the same
distinction between a missing account and a broken store.
*/
func TestForgotPassword_StorageFailure(t *testing.T) {
	service, users, _, _ := newTestService(t, verifiedUser(t))
	users.findErr = errors.New("connection refused")

	_, err := service.ForgotPassword(context.Background(), "+251911223344")

	require.Error(t, err)
	var appError *apperr.AppError
	assert.False(t, errors.As(err, &appError))
}

/*
TestLogin_UnverifiedGetsOTP verifies an unverified account receives a passcode
challenge instead of a session.
*/
func TestLogin_UnverifiedGetsOTP(t *testing.T) {
	user := verifiedUser(t)
	user.IsVerified = false
	service, users, sessions, sender := newTestService(t, user)

	result, err := service.Login(context.Background(), auth.LoginInput{
		PhoneNumber: "+251911223344",
		Password:    testPassword,
	})

	require.NoError(t, err)
	assert.True(t, result.RequiresVerification)
	assert.Equal(t, "OTP sent. Please verify your account.", result.Message)
	assert.Empty(t, result.AccessToken)
	// Development mode echoes the stored passcode.
	assert.Equal(t, users.user.OTP, result.OTP)
	assert.Len(t, result.OTP, 6)
	// The passcode went out over SMS and no session was minted.
	require.Len(t, sender.messages, 1)
	assert.Equal(t, "Your OTP: "+result.OTP, sender.messages[0])
	assert.Empty(t, sessions.sessions)
}

// # OTP Verification

/*
TestVerifyOTPAndLogin verifies the full first-login flow: challenge, verify,
session.
*/
func TestVerifyOTPAndLogin(t *testing.T) {
	user := verifiedUser(t)
	user.IsVerified = false
	service, users, sessions, _ := newTestService(t, user)

	challenge, err := service.Login(context.Background(), auth.LoginInput{
		PhoneNumber: "+251911223344",
		Password:    testPassword,
	})
	require.NoError(t, err)

	result, err := service.VerifyOTPAndLogin(context.Background(), "+251911223344", challenge.OTP, "ua", "ip")

	require.NoError(t, err)
	assert.Equal(t, "OTP verified successfully", result.Message)
	assert.NotEmpty(t, result.AccessToken)
	assert.True(t, users.user.IsVerified)
	// The passcode cannot be replayed.
	assert.Empty(t, users.user.OTP)
	assert.Equal(t, 1, sessions.activeCount("user-1"))
}

/*
TestVerifyOTPAndLogin_ReusesActiveSession verifies that verifying into an
account that already holds an active session anchors the new token to that
session instead of minting a second one.
*/
func TestVerifyOTPAndLogin_ReusesActiveSession(t *testing.T) {
	user := verifiedUser(t)
	user.OTP = "123456"
	expires := time.Now().Add(3 * time.Minute)
	user.OTPExpiresAt = &expires
	service, _, sessions, _ := newTestService(t, user)

	existing := &auth.Session{ID: "session-1", UserID: "user-1", IsActive: true}
	sessions.sessions = append(sessions.sessions, existing)

	result, err := service.VerifyOTPAndLogin(context.Background(), "+251911223344", "123456", "ua", "ip")

	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	// No second session row appeared; the existing one still anchors tokens.
	assert.Len(t, sessions.sessions, 1)
	assert.Equal(t, 1, sessions.activeCount("user-1"))
}

/*
TestVerifyOTP_WrongCode verifies wrong passcodes are rejected, charged to the
lockout budget, and eventually lock the account.
*/
func TestVerifyOTP_WrongCode(t *testing.T) {
	user := verifiedUser(t)
	user.OTP = "123456"
	expires := time.Now().Add(3 * time.Minute)
	user.OTPExpiresAt = &expires
	service, users, _, _ := newTestService(t, user)

	// 1. Wrong code is rejected and charged.
	_, err := service.VerifyOTP(context.Background(), "+251911223344", "654321")
	assert.Equal(t, 400, statusOf(t, err))
	assert.Equal(t, "Invalid or expired OTP", messageOf(t, err))
	assert.Equal(t, 1, users.user.LoginAttemptCount)

	// 2. Guessing exhausts the same budget as password failures.
	users.user.LoginAttemptCount = 4
	_, err = service.VerifyOTP(context.Background(), "+251911223344", "654321")
	assert.Equal(t, "Account is locked", messageOf(t, err))
	assert.Equal(t, identity.StatusInactive, users.user.Status)
}

/*
TestVerifyOTP_Expired verifies a stale passcode is rejected even when the
digits match.
*/
func TestVerifyOTP_Expired(t *testing.T) {
	user := verifiedUser(t)
	user.OTP = "123456"
	expires := time.Now().Add(-time.Minute)
	user.OTPExpiresAt = &expires
	service, _, _, _ := newTestService(t, user)

	_, err := service.VerifyOTP(context.Background(), "+251911223344", "123456")
	assert.Equal(t, "Invalid or expired OTP", messageOf(t, err))
}

/*
TestVerifyOTP_IssuesResetToken verifies the reset token round-trips through
the password reset flow.
*/
func TestVerifyOTP_IssuesResetToken(t *testing.T) {
	user := verifiedUser(t)
	user.OTP = "123456"
	expires := time.Now().Add(3 * time.Minute)
	user.OTPExpiresAt = &expires
	service, users, _, _ := newTestService(t, user)

	resetToken, err := service.VerifyOTP(context.Background(), "+251911223344", "123456")
	require.NoError(t, err)
	require.NotEmpty(t, resetToken)

	updated, err := service.ResetPassword(context.Background(), resetToken, "brand-new-pass")
	require.NoError(t, err)
	assert.True(t, sec.CheckPasswordHash("brand-new-pass", updated.PasswordHash))
	assert.True(t, sec.CheckPasswordHash("brand-new-pass", users.user.PasswordHash))
}

// # Password Lifecycle

/*
TestResetPassword_RejectsReuse verifies the current password and the recent
history are both off-limits.
*/
func TestResetPassword_RejectsReuse(t *testing.T) {
	user := verifiedUser(t)
	oldHash, err := sec.HashPassword("previous-pass")
	require.NoError(t, err)
	user.PasswordHistory = []string{oldHash}
	service, _, _, _ := newTestService(t, user)

	tokens, err := sec.NewTokenService("test-secret-key", "bsms-api", 30*time.Minute, 3*time.Minute)
	require.NoError(t, err)
	resetToken, err := tokens.GenerateResetToken("user-1", "+251911223344")
	require.NoError(t, err)

	// 1. Current password.
	_, err = service.ResetPassword(context.Background(), resetToken, testPassword)
	assert.Equal(t, "Cannot reuse recent passwords", messageOf(t, err))

	// 2. Historical password.
	_, err = service.ResetPassword(context.Background(), resetToken, "previous-pass")
	assert.Equal(t, "Cannot reuse recent passwords", messageOf(t, err))
}

/*
TestResetPassword_RevokesSessions verifies every session dies with the old
password.
*/
func TestResetPassword_RevokesSessions(t *testing.T) {
	service, _, sessions, _ := newTestService(t, verifiedUser(t))

	_, err := service.Login(context.Background(), auth.LoginInput{PhoneNumber: "+251911223344", Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, 1, sessions.activeCount("user-1"))

	tokens, err := sec.NewTokenService("test-secret-key", "bsms-api", 30*time.Minute, 3*time.Minute)
	require.NoError(t, err)
	resetToken, err := tokens.GenerateResetToken("user-1", "+251911223344")
	require.NoError(t, err)

	updated, err := service.ResetPassword(context.Background(), resetToken, "brand-new-pass")
	require.NoError(t, err)

	assert.Zero(t, sessions.activeCount("user-1"))
	// The outgoing hash joined the history.
	assert.Len(t, updated.PasswordHistory, 1)
	assert.True(t, sec.CheckPasswordHash(testPassword, updated.PasswordHistory[0]))
}

/*
TestResetPassword_BadToken verifies forged and phone-mismatched tokens are
rejected.
*/
func TestResetPassword_BadToken(t *testing.T) {
	service, users, _, _ := newTestService(t, verifiedUser(t))

	// 1. Garbage token.
	_, err := service.ResetPassword(context.Background(), "not-a-jwt", "brand-new-pass")
	assert.Equal(t, "Invalid or expired reset token", messageOf(t, err))

	// 2. Token minted before a phone number change.
	tokens, err := sec.NewTokenService("test-secret-key", "bsms-api", 30*time.Minute, 3*time.Minute)
	require.NoError(t, err)
	resetToken, err := tokens.GenerateResetToken("user-1", "+251911223344")
	require.NoError(t, err)
	users.user.PhoneNumber = "+251911000000"
	_, err = service.ResetPassword(context.Background(), resetToken, "brand-new-pass")
	assert.Equal(t, "Invalid reset token", messageOf(t, err))
}

/*
TestChangePassword verifies the authenticated rotation path: wrong current
password, history reuse, and the eviction depth.
*/
func TestChangePassword(t *testing.T) {
	service, users, _, _ := newTestService(t, verifiedUser(t))

	// 1. Wrong current password.
	err := service.ChangePassword(context.Background(), "user-1", "wrong", "brand-new-pass")
	assert.Equal(t, 400, statusOf(t, err))
	assert.Equal(t, "Current password is incorrect", messageOf(t, err))

	// 2. Successful rotation pushes the old hash into history.
	require.NoError(t, service.ChangePassword(context.Background(), "user-1", testPassword, "second-pass"))
	assert.True(t, sec.CheckPasswordHash("second-pass", users.user.PasswordHash))
	require.Len(t, users.user.PasswordHistory, 1)

	// 3. The original password is now in history and cannot return.
	err = service.ChangePassword(context.Background(), "user-1", "second-pass", testPassword)
	assert.Equal(t, "Cannot reuse recent passwords", messageOf(t, err))

	// 4. History keeps only the most recent entries.
	for index, next := range []string{"third-pass", "fourth-pass", "fifth-pass", "sixth-pass"} {
		current := []string{"second-pass", "third-pass", "fourth-pass", "fifth-pass"}[index]
		require.NoError(t, service.ChangePassword(context.Background(), "user-1", current, next))
	}
	assert.Len(t, users.user.PasswordHistory, 4)
	// The original password fell off the end of the history window.
	assert.False(t, func() bool {
		for _, hash := range users.user.PasswordHistory {
			if sec.CheckPasswordHash(testPassword, hash) {
				return true
			}
		}
		return false
	}())
}
