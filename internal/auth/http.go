// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ethio-transit/bsms-api/internal/identity"
	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
	"github.com/ethio-transit/bsms-api/internal/platform/constants"
	requestutil "github.com/ethio-transit/bsms-api/internal/platform/request"
	"github.com/ethio-transit/bsms-api/internal/platform/respond"
	"github.com/ethio-transit/bsms-api/internal/platform/validate"
)

// Guard is a route-level middleware injected by the server.
type Guard func(http.Handler) http.Handler

// Handler implements the HTTP layer for authentication.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new auth [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

/*
Routes returns a [chi.Router] configured with the authentication endpoints.

Parameters:
  - requireAuth: Guard enforcing an authenticated session
  - loginQuota: Guard applying the per-IP daily quota to credential endpoints
*/
func (handler *Handler) Routes(requireAuth Guard, loginQuota Guard) chi.Router {
	router := chi.NewRouter()

	// Every unauthenticated endpoint shares the per-IP daily quota, so an
	// attacker cannot sidestep the login cap by hammering the OTP endpoints.
	router.Group(func(public chi.Router) {
		public.Use(loginQuota)
		public.Post("/login", handler.login)
		public.Post("/verify-otp", handler.verifyOTP)
		public.Post("/verify-and-login", handler.verifyOTPAndLogin)
		public.Post("/forgot-password", handler.forgotPassword)
		public.Post("/resend-otp", handler.resendOTP)
		public.Post("/reset", handler.resetPassword)
	})

	router.With(requireAuth).Patch("/change-password", handler.changePassword)

	return router
}

// # Response Shapes

// userSummary is the trimmed account view returned by login flows; the full
// entity stays server-side.
type userSummary struct {
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
	Name        string `json:"name"`
}

func summarize(user *identity.User) *userSummary {
	if user == nil {
		return nil
	}
	return &userSummary{
		PhoneNumber: user.PhoneNumber,
		Role:        string(user.Role),
		Name:        user.FullName(),
	}
}

// loginResponse is the data block of login and OTP-login responses.
type loginResponse struct {
	User   *userSummary `json:"user,omitempty"`
	Access string       `json:"access,omitempty"`
	OTP    string       `json:"otp,omitempty"`
}

// # Authentication Endpoints

// loginRequest defines the expected JSON payload for a login attempt.
type loginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

/*
POST /api/v1/auth/login.

Description: Verifies credentials and issues a session-bound access token.
Unverified accounts receive an OTP challenge instead. The sourceapp header
identifies the calling client and is mandatory.

Response:
  - 200: Access token, or an OTP confirmation for unverified accounts
  - 400: Missing sourceapp header or invalid payload
  - 401: Bad credentials or locked account
  - 403: Disabled account
  - 429: Daily attempt quota exhausted
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	if err := requireSourceApp(request); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	err := v.
		Required(identity.FieldPhoneNumber, input.PhoneNumber).
		Required(identity.FieldPassword, input.Password).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.Login(request.Context(), LoginInput{
		PhoneNumber: input.PhoneNumber,
		Password:    input.Password,
		UserAgent:   request.UserAgent(),
		IPAddress:   request.RemoteAddr,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, result.Message, &loginResponse{
		User:   summarize(result.User),
		Access: result.AccessToken,
		OTP:    result.OTP,
	})
}

// # OTP Endpoints

// otpRequest defines the payload shared by the OTP verification endpoints.
type otpRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
}

/*
POST /api/v1/auth/verify-otp.

Description: Validates a passcode and returns a short-lived reset token for
the password-reset screen. Attempts count toward the lockout threshold.

Response:
  - 200: Reset token
  - 400: Invalid or expired OTP
  - 401: Account locked by repeated attempts
  - 404: Unknown phone number
*/
func (handler *Handler) verifyOTP(writer http.ResponseWriter, request *http.Request) {
	input, err := decodeOTPRequest(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	resetToken, err := handler.authService.VerifyOTP(request.Context(), input.PhoneNumber, input.OTP)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "OTP verified successfully", map[string]string{
		"resetToken": resetToken,
	})
}

/*
POST /api/v1/auth/verify-and-login.

Description: Validates a first-login passcode and establishes a session in
one step.

Response:
  - 200: Access token and account details
  - 400: Invalid or expired OTP
  - 401: Account locked by repeated attempts
  - 404: Unknown phone number
*/
func (handler *Handler) verifyOTPAndLogin(writer http.ResponseWriter, request *http.Request) {
	input, err := decodeOTPRequest(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.VerifyOTPAndLogin(
		request.Context(), input.PhoneNumber, input.OTP, request.UserAgent(), request.RemoteAddr)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, result.Message, &loginResponse{
		User:   summarize(result.User),
		Access: result.AccessToken,
	})
}

// phoneRequest identifies the account for OTP issuance endpoints.
type phoneRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

/*
POST /api/v1/auth/forgot-password.

Description: Issues a recovery passcode to a verified, active account.

Response:
  - 200: Confirmation (passcode echoed only in development)
  - 403: Inactive or unverified account
  - 404: Unknown phone number
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	input, err := decodePhoneRequest(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.ForgotPassword(request.Context(), input.PhoneNumber)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, result.Message, otpData(result))
}

/*
POST /api/v1/auth/resend-otp.

Description: Re-issues a first-login verification passcode.

Response:
  - 200: Confirmation (passcode echoed only in development)
  - 403: Inactive account
  - 404: Unknown phone number
*/
func (handler *Handler) resendOTP(writer http.ResponseWriter, request *http.Request) {
	input, err := decodePhoneRequest(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.ResendOTP(request.Context(), input.PhoneNumber)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, result.Message, otpData(result))
}

// # Password Endpoints

// resetPasswordRequest defines the payload completing the forgot-password flow.
type resetPasswordRequest struct {
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

/*
POST /api/v1/auth/reset.

Description: Completes the forgot-password flow and immediately logs the
operator in with the new password, so the reset screen lands straight in the
app. The sourceapp header is mandatory, as on login.

Response:
  - 200: Access token and account details
  - 400: Missing sourceapp, password reuse, or unverified account
  - 401: Invalid or expired reset token
  - 404: Unknown account
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	if err := requireSourceApp(request); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	err := v.
		Required("resetToken", input.ResetToken).
		MinLen("newPassword", input.NewPassword, 8).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.ResetPassword(request.Context(), input.ResetToken, input.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.Login(request.Context(), LoginInput{
		PhoneNumber: user.PhoneNumber,
		Password:    input.NewPassword,
		UserAgent:   request.UserAgent(),
		IPAddress:   request.RemoteAddr,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, result.Message, &loginResponse{
		User:   summarize(result.User),
		Access: result.AccessToken,
	})
}

// changePasswordRequest defines the payload for an authenticated rotation.
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

/*
PATCH /api/v1/auth/change-password.

Description: Rotates the authenticated operator's password after re-proving
the current one. The current session survives.

Response:
  - 200: Confirmation
  - 400: Wrong current password or password reuse
  - 401: Authentication required
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	err = v.
		Required("currentPassword", input.CurrentPassword).
		MinLen("newPassword", input.NewPassword, 8).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.authService.ChangePassword(request.Context(), userID, input.CurrentPassword, input.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "Password changed successfully", nil)
}

// # Request Helpers

// requireSourceApp enforces the client-identification header on flows that
// mint sessions.
func requireSourceApp(request *http.Request) error {
	if request.Header.Get(constants.HeaderSourceApp) == "" {
		return apperr.BadRequest("UNAUTHORIZED")
	}
	return nil
}

func decodeOTPRequest(request *http.Request) (*otpRequest, error) {
	var input otpRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		return nil, err
	}

	v := &validate.Validator{}
	err := v.
		Required(identity.FieldPhoneNumber, input.PhoneNumber).
		OTP("otp", input.OTP).
		Err()
	if err != nil {
		return nil, err
	}

	return &input, nil
}

func decodePhoneRequest(request *http.Request) (*phoneRequest, error) {
	var input phoneRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		return nil, err
	}

	v := &validate.Validator{}
	if err := v.Required(identity.FieldPhoneNumber, input.PhoneNumber).Err(); err != nil {
		return nil, err
	}

	return &input, nil
}

// otpData shapes the optional development-mode passcode echo.
func otpData(result *OTPResult) interface{} {
	if result.OTP == "" {
		return nil
	}
	return map[string]string{"otp": result.OTP}
}
