// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethio-transit/bsms-api/internal/identity"
	"github.com/ethio-transit/bsms-api/internal/notify"
	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
	"github.com/ethio-transit/bsms-api/internal/platform/constants"
	"github.com/ethio-transit/bsms-api/internal/platform/sec"
	"github.com/ethio-transit/bsms-api/pkg/phone"
	"github.com/ethio-transit/bsms-api/pkg/uuid"
)

// # Service

// Service implements credential, OTP, session, and password use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to lockout, OTP, or
// password-history logic must be reviewed by the security team.
type Service struct {
	userRepository    identity.UserRepository
	sessionRepository SessionRepository
	tokenService      *sec.TokenService
	sender            notify.Sender

	// echoOTP surfaces generated passcodes in API responses. Development
	// only; production relies exclusively on SMS delivery.
	echoOTP bool
}

// NewService constructs a new auth [Service] with necessary dependencies.
func NewService(
	userRepo identity.UserRepository,
	sessionRepo SessionRepository,
	tokenService *sec.TokenService,
	sender notify.Sender,
	echoOTP bool,
) *Service {
	return &Service{
		userRepository:    userRepo,
		sessionRepository: sessionRepo,
		tokenService:      tokenService,
		sender:            sender,
		echoOTP:           echoOTP,
	}
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	PhoneNumber string
	Password    string
	UserAgent   string
	IPAddress   string
}

// LoginResult carries the outcome of a login or OTP-login attempt.
//
// Either AccessToken is set (fully authenticated) or RequiresVerification is
// true (an OTP challenge was issued instead of a session).
type LoginResult struct {
	Message              string
	RequiresVerification bool
	User                 *identity.User
	AccessToken          string
	OTP                  string
}

/*
Login validates operator credentials and issues a session-bound access token.

Description: Failed password checks count toward the lockout threshold; the
account flips to INACTIVE at the limit. Unverified accounts receive an OTP
challenge instead of a session. A successful login rotates the active session,
signing the account out everywhere else.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginResult: Session token, or an OTP challenge for unverified accounts
  - error: Unauthorized, Forbidden, or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginResult, error) {
	// Generic message for bad numbers and unknown accounts alike, to prevent
	// phone number enumeration.
	canonicalPhone, err := phone.Canonical(input.PhoneNumber)
	if err != nil {
		return nil, apperr.Unauthorized("Incorrect credentials.")
	}

	// Only a missing account collapses into the generic rejection; a storage
	// failure is not a credential problem and must surface as one.
	user, err := service.userRepository.FindByPhone(context, canonicalPhone)
	if err != nil {
		if !apperr.IsAppError(err) {
			return nil, fmt.Errorf("auth_service_lookup_failed: %w", err)
		}
		return nil, apperr.Unauthorized("Incorrect credentials.")
	}

	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		return nil, service.recordFailedAttempt(context, user)
	}

	// Password is right, but a locked or disabled account still cannot enter.
	if user.Status != identity.StatusActive {
		return nil, apperr.Forbidden("Account is locked")
	}

	// First login on a new account: prove control of the phone number before
	// any session exists.
	if !user.IsVerified {
		code, err := service.issueOTP(context, user, constants.OTPLifetime)
		if err != nil {
			return nil, err
		}

		result := &LoginResult{
			Message:              "OTP sent. Please verify your account.",
			RequiresVerification: true,
		}
		if service.echoOTP {
			result.OTP = code
		}
		return result, nil
	}

	if err := service.userRepository.ResetLoginAttempts(context, user.ID); err != nil {
		return nil, fmt.Errorf("auth_service_reset_attempts_failed: %w", err)
	}

	session := &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		UserAgent: input.UserAgent,
		IPAddress: input.IPAddress,
	}
	if err := service.sessionRepository.RotateActive(context, session); err != nil {
		return nil, fmt.Errorf("auth_service_session_rotate_failed: %w", err)
	}

	if err := service.userRepository.TouchLastOnline(context, user.ID); err != nil {
		return nil, fmt.Errorf("auth_service_touch_online_failed: %w", err)
	}

	accessToken, err := service.tokenService.GenerateAccessToken(user.ID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	return &LoginResult{
		Message:     "Login successful",
		User:        user,
		AccessToken: accessToken,
	}, nil
}

/*
recordFailedAttempt increments the lockout counter and shapes the rejection.

Description: The account flips to INACTIVE once the counter reaches the limit;
below it, the rejection tells the operator how many attempts remain.
*/
func (service *Service) recordFailedAttempt(context context.Context, user *identity.User) error {
	attempts, err := service.userRepository.IncrementLoginAttempts(context, user.ID)
	if err != nil {
		return fmt.Errorf("auth_service_increment_attempts_failed: %w", err)
	}

	if attempts >= constants.MaxLoginAttempts {
		lockErr := service.userRepository.SetStatus(context, user.ID, identity.StatusInactive, "Locked after repeated failed login attempts")
		if lockErr != nil {
			return fmt.Errorf("auth_service_lock_failed: %w", lockErr)
		}
		return apperr.Unauthorized("Account is locked")
	}

	remaining := constants.MaxLoginAttempts - attempts
	return apperr.Unauthorized(fmt.Sprintf(
		"Incorrect credentials. You have %d attempt(s) left before your account is locked.", remaining))
}

// # OTP Verification Flow

/*
VerifyOTP validates a passcode and issues a short-lived reset token.

Description: Every attempt, valid or not, counts toward the lockout threshold,
so a passcode cannot be brute-forced within its lifetime. Success marks the
account verified and returns a reset token for the password-reset screen.

Parameters:
  - context: context.Context
  - phoneNumber: string
  - code: string

Returns:
  - string: Signed reset token bound to the account and phone number
  - error: NotFound, Unauthorized (locked), or BadRequest (bad passcode)
*/
func (service *Service) VerifyOTP(context context.Context, phoneNumber, code string) (string, error) {
	user, err := service.consumeOTP(context, phoneNumber, code)
	if err != nil {
		return "", err
	}

	resetToken, err := service.tokenService.GenerateResetToken(user.ID, user.PhoneNumber)
	if err != nil {
		return "", fmt.Errorf("auth_service_reset_token_failed: %w", err)
	}

	return resetToken, nil
}

/*
VerifyOTPAndLogin validates a passcode and establishes a session in one step.

Description: The post-enrollment path: the operator just proved control of the
phone number, so a session is issued immediately. An already-active session is
reused rather than rotated, so verifying on the same device does not sign the
operator out elsewhere mid-flow.

Parameters:
  - context: context.Context
  - phoneNumber: string
  - code: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginResult: Session token and account details
  - error: NotFound, Unauthorized (locked), or BadRequest (bad passcode)
*/
func (service *Service) VerifyOTPAndLogin(context context.Context, phoneNumber, code, userAgent, ipAddress string) (*LoginResult, error) {
	user, err := service.consumeOTP(context, phoneNumber, code)
	if err != nil {
		return nil, err
	}

	session, err := service.sessionRepository.ReuseOrCreate(context, &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		UserAgent: userAgent,
		IPAddress: ipAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("auth_service_session_reuse_failed: %w", err)
	}

	if err := service.userRepository.TouchLastOnline(context, user.ID); err != nil {
		return nil, fmt.Errorf("auth_service_touch_online_failed: %w", err)
	}

	accessToken, err := service.tokenService.GenerateAccessToken(user.ID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	return &LoginResult{
		Message:     "OTP verified successfully",
		User:        user,
		AccessToken: accessToken,
	}, nil
}

/*
consumeOTP applies lockout accounting and validates the supplied passcode.

Description: Shared core of both verification paths. On success the account is
marked verified, the passcode is cleared so it cannot be replayed, and the
lockout counter resets.
*/
func (service *Service) consumeOTP(context context.Context, phoneNumber, code string) (*identity.User, error) {
	canonicalPhone, err := phone.Canonical(phoneNumber)
	if err != nil {
		return nil, apperr.NotFound("User")
	}

	user, err := service.userRepository.FindByPhone(context, canonicalPhone)
	if err != nil {
		if !apperr.IsAppError(err) {
			return nil, fmt.Errorf("auth_service_lookup_failed: %w", err)
		}
		return nil, apperr.NotFound("User")
	}

	// The attempt is charged before the passcode is inspected, so guessing
	// burns through the same budget as guessing passwords.
	attempts, err := service.userRepository.IncrementLoginAttempts(context, user.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_increment_attempts_failed: %w", err)
	}
	if attempts >= constants.MaxLoginAttempts {
		lockErr := service.userRepository.SetStatus(context, user.ID, identity.StatusInactive, "Locked after repeated failed OTP attempts")
		if lockErr != nil {
			return nil, fmt.Errorf("auth_service_lock_failed: %w", lockErr)
		}
		return nil, apperr.Unauthorized("Account is locked")
	}

	expired := user.OTPExpiresAt == nil || time.Now().After(*user.OTPExpiresAt)
	if user.OTP == "" || user.OTP != code || expired {
		return nil, apperr.BadRequest("Invalid or expired OTP")
	}

	if err := service.userRepository.MarkVerified(context, user.ID); err != nil {
		return nil, fmt.Errorf("auth_service_mark_verified_failed: %w", err)
	}
	if err := service.userRepository.ClearOTP(context, user.ID); err != nil {
		return nil, fmt.Errorf("auth_service_clear_otp_failed: %w", err)
	}
	if err := service.userRepository.ResetLoginAttempts(context, user.ID); err != nil {
		return nil, fmt.Errorf("auth_service_reset_attempts_failed: %w", err)
	}

	user.IsVerified = true
	user.OTP = ""
	user.OTPExpiresAt = nil
	user.LoginAttemptCount = 0

	return user, nil
}

// # OTP Issuance

// OTPResult carries the outcome of an OTP issuance request.
type OTPResult struct {
	Message string
	OTP     string
}

/*
ForgotPassword issues a recovery passcode to a verified, active account.

Description: Recovery passcodes are shorter-lived than first-login ones since
the operator is actively waiting at the reset screen.

Parameters:
  - context: context.Context
  - phoneNumber: string

Returns:
  - *OTPResult: Confirmation (passcode echoed only in development)
  - error: NotFound or Forbidden (inactive or unverified account)
*/
func (service *Service) ForgotPassword(context context.Context, phoneNumber string) (*OTPResult, error) {
	user, err := service.eligibleForOTP(context, phoneNumber)
	if err != nil {
		return nil, err
	}
	if !user.IsVerified {
		return nil, apperr.Forbidden("Account is not verified")
	}

	code, err := service.issueOTP(context, user, constants.ForgotPasswordOTPLifetime)
	if err != nil {
		return nil, err
	}

	result := &OTPResult{Message: "OTP sent successfully"}
	if service.echoOTP {
		result.OTP = code
	}
	return result, nil
}

/*
ResendOTP re-issues a first-login verification passcode.

Description: Unlike ForgotPassword, an unverified account is the expected
caller here, so only existence and active status are checked.

Parameters:
  - context: context.Context
  - phoneNumber: string

Returns:
  - *OTPResult: Confirmation (passcode echoed only in development)
  - error: NotFound or Forbidden (inactive account)
*/
func (service *Service) ResendOTP(context context.Context, phoneNumber string) (*OTPResult, error) {
	user, err := service.eligibleForOTP(context, phoneNumber)
	if err != nil {
		return nil, err
	}

	code, err := service.issueOTP(context, user, constants.OTPLifetime)
	if err != nil {
		return nil, err
	}

	result := &OTPResult{Message: "OTP sent successfully"}
	if service.echoOTP {
		result.OTP = code
	}
	return result, nil
}

// eligibleForOTP resolves the account behind a phone number and rejects
// deleted or disabled ones.
func (service *Service) eligibleForOTP(context context.Context, phoneNumber string) (*identity.User, error) {
	canonicalPhone, err := phone.Canonical(phoneNumber)
	if err != nil {
		return nil, apperr.NotFound("User")
	}

	user, err := service.userRepository.FindByPhone(context, canonicalPhone)
	if err != nil {
		if !apperr.IsAppError(err) {
			return nil, fmt.Errorf("auth_service_lookup_failed: %w", err)
		}
		return nil, apperr.NotFound("User")
	}
	if user.Status != identity.StatusActive {
		return nil, apperr.Forbidden("Account is not active")
	}

	return user, nil
}

// issueOTP generates a passcode, stores it with its deadline, and delivers it.
func (service *Service) issueOTP(context context.Context, user *identity.User, lifetime time.Duration) (string, error) {
	code, err := generateOTP()
	if err != nil {
		return "", fmt.Errorf("auth_service_otp_generation_failed: %w", err)
	}

	expiresAt := time.Now().Add(lifetime)
	if err := service.userRepository.SetOTP(context, user.ID, code, expiresAt); err != nil {
		return "", fmt.Errorf("auth_service_otp_store_failed: %w", err)
	}

	if err := service.sender.Send(context, user.PhoneNumber, "Your OTP: "+code); err != nil {
		return "", fmt.Errorf("auth_service_otp_send_failed: %w", err)
	}

	return code, nil
}

// generateOTP draws a uniformly random six-digit passcode.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", err
	}
	return strconv.Itoa(otpMin + int(n.Int64())), nil
}

// # Password Lifecycle

/*
ResetPassword completes the forgot-password flow.

Description: The reset token must match the account's current phone number,
the account must be verified, and the new password must differ from the
current one and the last few before it. Success revokes every active session;
the caller is expected to log in again with the new password.

Parameters:
  - context: context.Context
  - resetToken: string
  - newPassword: string

Returns:
  - *identity.User: The account whose password changed
  - error: Unauthorized (bad token), NotFound, or BadRequest (reuse)
*/
func (service *Service) ResetPassword(context context.Context, resetToken, newPassword string) (*identity.User, error) {
	claims, err := service.tokenService.VerifyResetToken(resetToken)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired reset token")
	}

	user, err := service.userRepository.FindByID(context, claims.Subject)
	if err != nil {
		if !apperr.IsAppError(err) {
			return nil, fmt.Errorf("auth_service_lookup_failed: %w", err)
		}
		return nil, apperr.NotFound("User")
	}
	if user.IsDeleted {
		return nil, apperr.NotFound("User")
	}

	// A phone number change after token issuance invalidates the token.
	if claims.PhoneNumber != user.PhoneNumber {
		return nil, apperr.Unauthorized("Invalid reset token")
	}

	if !user.IsVerified {
		return nil, apperr.BadRequest("Please verify your number first")
	}

	if matchesAnyHash(newPassword, append(user.PasswordHistory, user.PasswordHash)) {
		return nil, apperr.BadRequest("Cannot reuse recent passwords")
	}

	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	history := pushHistory(user.PasswordHistory, user.PasswordHash)
	if err := service.userRepository.UpdatePassword(context, user.ID, newHash, history); err != nil {
		return nil, fmt.Errorf("auth_service_reset_password_update_failed: %w", err)
	}

	// Every stolen or idle session dies with the old password.
	if err := service.sessionRepository.DeactivateAllForUser(context, user.ID); err != nil {
		return nil, fmt.Errorf("auth_service_reset_revoke_failed: %w", err)
	}

	user.PasswordHash = newHash
	user.PasswordHistory = history

	return user, nil
}

/*
ChangePassword rotates the password of an authenticated operator.

Description: Unlike ResetPassword, the current session survives: the operator
proved the current password moments ago, so forcing a re-login adds nothing.
Reuse is checked against history only; matching the current password is caught
by the history push on the previous change.

Parameters:
  - context: context.Context
  - userID: string (the authenticated caller)
  - currentPassword: string
  - newPassword: string

Returns:
  - error: NotFound, BadRequest (wrong current password or reuse), or storage
    failures
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword string) error {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return err
	}
	if user.IsDeleted {
		return apperr.NotFound("User")
	}

	if !sec.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return apperr.BadRequest("Current password is incorrect")
	}

	if matchesAnyHash(newPassword, user.PasswordHistory) {
		return apperr.BadRequest("Cannot reuse recent passwords")
	}

	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	history := pushHistory(user.PasswordHistory, user.PasswordHash)
	if err := service.userRepository.UpdatePassword(context, user.ID, newHash, history); err != nil {
		return fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	return nil
}

// matchesAnyHash reports whether the candidate password matches any of the
// given bcrypt hashes.
func matchesAnyHash(password string, hashes []string) bool {
	for _, hash := range hashes {
		if sec.CheckPasswordHash(password, hash) {
			return true
		}
	}
	return false
}

// pushHistory appends the outgoing hash and evicts the oldest entries beyond
// the retention depth. Newest entries sit at the end.
func pushHistory(history []string, outgoingHash string) []string {
	history = append(history, outgoingHash)
	if overflow := len(history) - constants.PasswordHistoryDepth; overflow > 0 {
		history = history[overflow:]
	}
	return history
}
