// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package identity

import (
	"context"
	"time"

	"github.com/ethio-transit/bsms-api/pkg/pagination"
)

// # User Data Access

// ListFilter narrows the account listing query.
type ListFilter struct {
	// Search matches against the folded full name and the phone number.
	Search string

	// Role restricts results to a single role when non-empty.
	Role string

	// Status restricts results to a single account status when non-empty.
	Status string

	Page pagination.Params
}

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID, including soft-deleted rows.

		Callers that must exclude deleted accounts check User.IsDeleted; the
		auth gate needs the row either way to produce the right error.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or database retrieval failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByPhone returns the non-deleted account with the given canonical
		phone number.

		Parameters:
		  - context: context.Context
		  - phoneNumber: string (canonical +251 form)

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or database retrieval failures
	*/
	FindByPhone(context context.Context, phoneNumber string) (*User, error)

	/*
		List returns a page of non-deleted accounts matching the filter.

		Parameters:
		  - context: context.Context
		  - filter: ListFilter

		Returns:
		  - []User: Matching accounts
		  - int: Total matching row count (for pagination metadata)
		  - error: Database retrieval failures
	*/
	List(context context.Context, filter ListFilter) ([]User, int, error)

	/*
		Create persists a brand-new user account to the storage.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: apperr.Conflict on duplicate phone, or persistence failures
	*/
	Create(context context.Context, user *User) error

	/*
		Update persists changes to mutable profile fields
		(first name, last name, permission group, role).

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: Persistence failures
	*/
	Update(context context.Context, user *User) error

	/*
		UpdatePassword replaces the password hash and history atomically.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - newHash: string
		  - history: []string (previous hashes, newest last, already evicted to depth)

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, userID, newHash string, history []string) error

	/*
		SetStatus flips the account activation state and records the reason.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - status: AccountStatus
		  - reason: string

		Returns:
		  - error: Persistence failures
	*/
	SetStatus(context context.Context, userID string, status AccountStatus, reason string) error

	/*
		IncrementLoginAttempts bumps the consecutive-failure counter.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - int: The counter value AFTER the increment
		  - error: Persistence failures
	*/
	IncrementLoginAttempts(context context.Context, userID string) (int, error)

	/*
		ResetLoginAttempts zeroes the consecutive-failure counter.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	ResetLoginAttempts(context context.Context, userID string) error

	/*
		TouchLastOnline stamps the last-online marker on the account.

		Called when a session is established. The column is write-only in
		the API; it feeds reporting queries.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	TouchLastOnline(context context.Context, userID string) error

	/*
		SetOTP stores a one-time code and its expiry on the account.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - code: string
		  - expiresAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	SetOTP(context context.Context, userID, code string, expiresAt time.Time) error

	/*
		ClearOTP removes any stored one-time code from the account.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	ClearOTP(context context.Context, userID string) error

	/*
		MarkVerified updates the account to isverified = true.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	MarkVerified(context context.Context, userID string) error

	/*
		SoftDelete marks the account as deleted without removing the row.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	SoftDelete(context context.Context, id string) error
}

// # Permission Data Access

// PermissionRepository defines the data access contract for permissions and groups.
type PermissionRepository interface {

	/*
		GroupByID returns a permission group with its permissions hydrated.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *PermissionGroup: Hydrated group
		  - error: apperr.NotFound or database retrieval failures
	*/
	GroupByID(context context.Context, id string) (*PermissionGroup, error)

	/*
		GroupByName returns a permission group looked up by (name, realm).

		Role names double as group names, so enrollment resolves the group
		to assign from the requested role.

		Parameters:
		  - context: context.Context
		  - name: string
		  - realm: string

		Returns:
		  - *PermissionGroup: Hydrated group
		  - error: apperr.NotFound or database retrieval failures
	*/
	GroupByName(context context.Context, name, realm string) (*PermissionGroup, error)

	/*
		PermissionNamesForUser resolves the flattened permission names granted
		to an account through its permission groups.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - []string: Distinct permission names; empty if the groups grant none
		  - error: apperr.NotFound if the account has no group, or database failures
	*/
	PermissionNamesForUser(context context.Context, userID string) ([]string, error)

	/*
		EnsurePermission inserts a permission if absent and returns its ID.

		Used by startup seeding; must be idempotent.

		Parameters:
		  - context: context.Context
		  - name: string
		  - realm: string
		  - description: string

		Returns:
		  - string: Permission ID
		  - error: Persistence failures
	*/
	EnsurePermission(context context.Context, name, realm, description string) (string, error)

	/*
		EnsureGroup inserts a permission group if absent, replaces its
		permission set, and returns its ID.

		Parameters:
		  - context: context.Context
		  - name: string
		  - realm: string
		  - permissionIDs: []string

		Returns:
		  - string: Group ID
		  - error: Persistence failures
	*/
	EnsureGroup(context context.Context, name, realm string, permissionIDs []string) (string, error)
}
