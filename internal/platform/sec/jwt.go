// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer.
package sec

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// # Token Types

const (
	// TokenTypeAccess marks tokens that authenticate regular API requests.
	TokenTypeAccess = "ACCESS"

	// TokenTypeReset marks short-lived tokens minted after OTP verification,
	// accepted only by the password-reset endpoint.
	TokenTypeReset = "RESET"
)

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// # Why a session ID claim?
//
// Every access token is bound to a server-side session row. Revoking the
// session (logout, credential rotation, account lockout) invalidates every
// token minted against it, without waiting for the token to expire.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	Type      string `json:"typ"`
	SessionID string `json:"sid"`
}

// UserID returns the subject of the token.
func (c *AuthClaims) UserID() string {
	return c.Subject
}

// ResetClaims represents the payload of a password-reset token.
//
// The phone number is embedded so the reset endpoint can confirm the token
// was minted for the account actually being reset.
type ResetClaims struct {
	jwt.RegisteredClaims

	Type        string `json:"typ"`
	PhoneNumber string `json:"phn"`
}

// # Token Service

// TokenService handles generation and verification of JWT tokens using HS256.
type TokenService struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	resetTTL  time.Duration
}

// NewTokenService creates a new TokenService signing with the shared secret.
func NewTokenService(secret, issuer string, accessTTL, resetTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("sec: jwt secret must not be empty")
	}
	return &TokenService{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: accessTTL,
		resetTTL:  resetTTL,
	}, nil
}

// AccessTTL returns the configured lifetime of access tokens.
func (service *TokenService) AccessTTL() time.Duration {
	return service.accessTTL
}

// GenerateAccessToken creates a new JWT access token bound to a session.
func (service *TokenService) GenerateAccessToken(userID, sessionID string) (string, error) {
	currentTime := time.Now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(service.accessTTL)),
		},
		Type:      TokenTypeAccess,
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// GenerateResetToken creates a short-lived password-reset token.
func (service *TokenService) GenerateResetToken(userID, phoneNumber string) (string, error) {
	currentTime := time.Now()
	claims := ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(service.resetTTL)),
		},
		Type:        TokenTypeReset,
		PhoneNumber: phoneNumber,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign reset token: %w", err)
	}

	return signedToken, nil
}

// VerifyAccessToken checks the signature and full validity (including expiry)
// of an access token.
func (service *TokenService) VerifyAccessToken(tokenString string) (*AuthClaims, error) {
	claims := &AuthClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, service.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}
	if !token.Valid || claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("sec: invalid token claims")
	}
	return claims, nil
}

// ResolveAccessToken checks only the signature of an access token, skipping
// time-based claim validation.
//
// The auth gate needs the subject of an EXPIRED token to decide whether the
// account behind it must be blacklisted, so identity resolution and validity
// checking are deliberately separate steps.
func (service *TokenService) ResolveAccessToken(tokenString string) (*AuthClaims, error) {
	claims := &AuthClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, service.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}
	if !token.Valid || claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("sec: invalid token claims")
	}
	return claims, nil
}

// VerifyResetToken checks the signature and validity of a password-reset token.
func (service *TokenService) VerifyResetToken(tokenString string) (*ResetClaims, error) {
	claims := &ResetClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, service.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("sec: invalid reset token: %w", err)
	}
	if !token.Valid || claims.Type != TokenTypeReset {
		return nil, fmt.Errorf("sec: invalid reset token claims")
	}
	return claims, nil
}

// keyFunc validates the signing algorithm before releasing the shared secret.
func (service *TokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
	}
	return service.secret, nil
}
