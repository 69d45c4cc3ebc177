// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

/*
Package identity implements the user account and permission management layer.

It defines the core domain entities (User, Permission, PermissionGroup) and
logic for account lifecycle, profile management, and permission resolution.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to user identity.
*/
package identity

import (
	"context"
	"time"

	"github.com/ethio-transit/bsms-api/internal/platform/ctxkey"
	"github.com/ethio-transit/bsms-api/internal/platform/sec"
)

// # Account Status

// AccountStatus represents the activation state of an account.
type AccountStatus string

const (
	// StatusActive accounts may log in and use the API.
	StatusActive AccountStatus = "ACTIVE"

	// StatusInactive accounts are blocked at login and at the auth gate.
	// An account becomes inactive through an admin toggle or automatic lockout.
	StatusInactive AccountStatus = "INACTIVE"
)

// IsValid reports whether the status is one of the known states.
func (s AccountStatus) IsValid() bool {
	return s == StatusActive || s == StatusInactive
}

// # Domain Entities

// User represents a registered operator of the BSMS platform.
type User struct {
	ID           string `json:"id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	PhoneNumber  string `json:"phoneNumber"`
	PasswordHash string `json:"-"` // Explicitly omitted from JSON for security.

	// PasswordHistory holds the most recent previous password hashes,
	// newest last, used to block password reuse.
	PasswordHistory []string `json:"-"`

	Role   sec.UserRole  `json:"role"`
	Status AccountStatus `json:"status"`

	// StatusReason records why the account was last activated or deactivated
	// (admin note or automatic lockout message).
	StatusReason string `json:"statusReason,omitempty"`

	IsVerified bool `json:"isVerified"`
	IsDeleted  bool `json:"-"`

	// LoginAttemptCount tracks consecutive failed credential checks.
	LoginAttemptCount int `json:"-"`

	// OTP state for login verification and password recovery.
	OTP          string     `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`

	// PermissionGroupIDs links the account to its permission groups. The
	// effective permission set is the union across all groups.
	PermissionGroupIDs []string `json:"permissionGroups,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"`
}

// FullName returns the display name of the account.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u.Status == StatusActive && !u.IsDeleted
}

// Permission represents a single named capability within a realm.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Realm       string    `json:"realm"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PermissionGroup bundles permissions for assignment to accounts.
//
// Only enabled, non-deleted groups contribute to an account's effective
// permission set; disabling a group withdraws its grants without unlinking
// its members.
type PermissionGroup struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Realm       string       `json:"realm"`
	Enabled     bool         `json:"enabled"`
	IsDeleted   bool         `json:"-"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// # Field Identifiers

// Global field names for validation and identity mapping in the account domain.
const (
	FieldFirstName   = "firstName"
	FieldLastName    = "lastName"
	FieldPhoneNumber = "phoneNumber"
	FieldPassword    = "password"
	FieldRole        = "role"
	FieldStatus      = "status"
	FieldReason      = "reason"
	FieldIsVerified  = "isVerified"
)

// # Context Helpers

// ContextWithUser returns a new context with the authenticated account attached.
//
// The accessor lives here rather than in ctxutil because only packages that
// already depend on identity need the fully hydrated entity.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, ctxkey.KeyUser, user)
}

// UserFromContext retrieves the authenticated account loaded by the auth gate.
// Returns nil if the request is anonymous.
func UserFromContext(ctx context.Context) *User {
	user, ok := ctx.Value(ctxkey.KeyUser).(*User)
	if !ok {
		return nil
	}
	return user
}
