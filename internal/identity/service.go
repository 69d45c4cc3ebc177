// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

/*
Service layer for the account domain.

It handles operator enrollment, profile management, administrative account
controls (status toggles, role changes, soft deletion), and permission
resolution for the authorization middleware.

Architecture:

  - Service: Orchestrates business logic and validation.
  - Repository: Abstracted interfaces for PostgreSQL storage.
  - Security: Password hashing is delegated to the sec package.
*/
package identity

import (
	"context"
	"fmt"

	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
	"github.com/ethio-transit/bsms-api/internal/platform/constants"
	"github.com/ethio-transit/bsms-api/internal/platform/sec"
	"github.com/ethio-transit/bsms-api/internal/platform/validate"
	"github.com/ethio-transit/bsms-api/pkg/pagination"
	"github.com/ethio-transit/bsms-api/pkg/phone"
	"github.com/ethio-transit/bsms-api/pkg/pointer"
	"github.com/ethio-transit/bsms-api/pkg/uuid"
)

// # Definitions & Constructors

// Service implements account management use cases.
//
// # Review Process
//
// This service controls who can access the system. Any changes to role
// protection or status transitions must be reviewed by the security team.
type Service struct {
	userRepository       UserRepository
	permissionRepository PermissionRepository
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(userRepo UserRepository, permissionRepo PermissionRepository) *Service {
	return &Service{
		userRepository:       userRepo,
		permissionRepository: permissionRepo,
	}
}

// # Enrollment

// CreateUserInput holds the data required to enroll a new operator.
type CreateUserInput struct {
	FirstName   string
	LastName    string
	PhoneNumber string
	Password    string
	Role        string
}

/*
CreateUser validates, hashes, and persists a brand new operator account.

Description: Accounts start unverified; the first login triggers an OTP
challenge that proves control of the phone number before a session is issued.
Permission groups are not chosen by the caller: the account is bound to the
group whose name matches the requested role, so a role always carries a
well-defined permission set.

Parameters:
  - context: context.Context
  - input: CreateUserInput

Returns:
  - *User: Created entity
  - error: Validation, Conflict (if phone exists), or storage errors
*/
func (service *Service) CreateUser(context context.Context, input CreateUserInput) (*User, error) {
	v := &validate.Validator{}
	err := v.
		Required(FieldFirstName, input.FirstName).
		MaxLen(FieldFirstName, input.FirstName, 50).
		Required(FieldLastName, input.LastName).
		MaxLen(FieldLastName, input.LastName, 50).
		Phone(FieldPhoneNumber, input.PhoneNumber).
		MinLen(FieldPassword, input.Password, 8).
		OneOf(FieldRole, input.Role, string(sec.RoleSuperAdmin), string(sec.RoleCashier)).
		Err()
	if err != nil {
		return nil, err
	}

	// All phone spellings collapse to the +251 form before storage, so the
	// uniqueness check below covers every variant of the same number.
	canonicalPhone, err := phone.Canonical(input.PhoneNumber)
	if err != nil {
		return nil, validate.RequiredError(FieldPhoneNumber, "Must be a valid Ethiopian phone number")
	}

	// Verify phone uniqueness. Return a client-safe Conflict error.
	_, err = service.userRepository.FindByPhone(context, canonicalPhone)
	if err == nil {
		return nil, apperr.Conflict("Phone number is already registered")
	}

	// Bind the account to the permission group named after its role.
	group, err := service.permissionRepository.GroupByName(context, input.Role, constants.PermissionRealm)
	if err != nil {
		if apperr.IsAppError(err) {
			return nil, apperr.BadRequest("No permission group found for role " + input.Role)
		}
		return nil, err
	}

	// Prevent storing plain-text passwords. Default cost is used for balance
	// between security and CPU utilization during enrollment.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("identity_service_hash_failed: %w", err)
	}

	// Construct the new User entity. Time-sortable ID to prevent PG index fragmentation.
	user := &User{
		ID:                 uuid.New(),
		FirstName:          input.FirstName,
		LastName:           input.LastName,
		PhoneNumber:        canonicalPhone,
		PasswordHash:       hashedPassword,
		PasswordHistory:    []string{},
		Role:               sec.UserRole(input.Role),
		Status:             StatusActive,
		IsVerified:         false,
		PermissionGroupIDs: []string{group.ID},
	}

	if err := service.userRepository.Create(context, user); err != nil {
		return nil, fmt.Errorf("identity_service_create_failed: %w", err)
	}

	return user, nil
}

// # Listing

/*
GetUsers returns a page of accounts matching the filter.

Description: Free-text search covers names (accent-folded) and phone numbers.

Parameters:
  - context: context.Context
  - filter: ListFilter

Returns:
  - []User: Matching accounts
  - pagination.Meta: Page metadata for the response envelope
  - error: Storage errors
*/
func (service *Service) GetUsers(context context.Context, filter ListFilter) ([]User, pagination.Meta, error) {
	users, total, err := service.userRepository.List(context, filter)
	if err != nil {
		return nil, pagination.Meta{}, fmt.Errorf("identity_service_list_failed: %w", err)
	}

	meta := pagination.NewMeta(filter.Page.Page, filter.Page.Limit, total)
	return users, meta, nil
}

// # Profile Management

// UpdateProfileInput holds the self-service editable fields.
//
// Pointers distinguish "not provided" from "set to empty"; protected fields
// (phone, password, role, verification) are rejected at the transport layer
// before this struct is ever populated.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
}

/*
UpdateProfile applies self-service changes to the calling account.

Parameters:
  - context: context.Context
  - userID: string (the authenticated caller)
  - input: UpdateProfileInput

Returns:
  - *User: Updated entity
  - error: NotFound, validation, or storage errors
*/
func (service *Service) UpdateProfile(context context.Context, userID string, input UpdateProfileInput) (*User, error) {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted {
		return nil, apperr.NotFound("User")
	}

	firstName := pointer.Fallback(input.FirstName, user.FirstName)
	lastName := pointer.Fallback(input.LastName, user.LastName)

	v := &validate.Validator{}
	err = v.
		Required(FieldFirstName, firstName).
		MaxLen(FieldFirstName, firstName, 50).
		Required(FieldLastName, lastName).
		MaxLen(FieldLastName, lastName, 50).
		Err()
	if err != nil {
		return nil, err
	}

	user.FirstName = firstName
	user.LastName = lastName

	if err := service.userRepository.Update(context, user); err != nil {
		return nil, fmt.Errorf("identity_service_update_profile_failed: %w", err)
	}

	return user, nil
}

// # Administrative Controls

// UpdateUserInput holds the admin-editable fields of any account.
type UpdateUserInput struct {
	FirstName *string
	LastName  *string
	Role      *string
}

/*
UpdateAnyUser applies administrative changes to the target account.

Description: Looks the target up by its ID. Super admin accounts cannot be
downgraded to a lesser role. Changing the role re-binds the account to the
permission group named after the new role, keeping role and grants in sync.

Parameters:
  - context: context.Context
  - targetID: string
  - input: UpdateUserInput

Returns:
  - *User: Updated entity
  - error: NotFound, Forbidden (protected role), validation, or storage errors
*/
func (service *Service) UpdateAnyUser(context context.Context, targetID string, input UpdateUserInput) (*User, error) {
	user, err := service.userRepository.FindByID(context, targetID)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted {
		return nil, apperr.NotFound("User")
	}

	if input.Role != nil && sec.UserRole(*input.Role) != user.Role {
		newRole := sec.UserRole(*input.Role)
		if !newRole.IsValid() {
			return nil, validate.RequiredError(FieldRole, "Unknown role")
		}
		if user.Role.IsProtected() {
			return nil, apperr.Forbidden("Super admin role cannot be changed")
		}

		group, err := service.permissionRepository.GroupByName(context, string(newRole), constants.PermissionRealm)
		if err != nil {
			if apperr.IsAppError(err) {
				return nil, apperr.BadRequest("No permission group found for role " + string(newRole))
			}
			return nil, err
		}

		user.Role = newRole
		user.PermissionGroupIDs = []string{group.ID}
	}

	user.FirstName = pointer.Fallback(input.FirstName, user.FirstName)
	user.LastName = pointer.Fallback(input.LastName, user.LastName)

	v := &validate.Validator{}
	err = v.
		Required(FieldFirstName, user.FirstName).
		MaxLen(FieldFirstName, user.FirstName, 50).
		Required(FieldLastName, user.LastName).
		MaxLen(FieldLastName, user.LastName, 50).
		Err()
	if err != nil {
		return nil, err
	}

	if err := service.userRepository.Update(context, user); err != nil {
		return nil, fmt.Errorf("identity_service_update_user_failed: %w", err)
	}

	return user, nil
}

/*
ToggleAccountStatus flips the target account between ACTIVE and INACTIVE.

Description: The target's current status decides the direction of the flip, so
the endpoint is a single switch rather than a pair of enable/disable calls.
The flip also clears the failed-attempt counter, so an operator locked out by
repeated failures gets a clean slate on re-activation.

Parameters:
  - context: context.Context
  - targetID: string
  - reason: string (free-text audit note)

Returns:
  - *User: Updated entity
  - error: NotFound or storage errors
*/
func (service *Service) ToggleAccountStatus(context context.Context, targetID string, reason string) (*User, error) {
	user, err := service.userRepository.FindByID(context, targetID)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted {
		return nil, apperr.NotFound("User")
	}

	status := StatusInactive
	if user.Status == StatusInactive {
		status = StatusActive
	}

	if err := service.userRepository.SetStatus(context, targetID, status, reason); err != nil {
		return nil, fmt.Errorf("identity_service_set_status_failed: %w", err)
	}
	if err := service.userRepository.ResetLoginAttempts(context, targetID); err != nil {
		return nil, fmt.Errorf("identity_service_reset_attempts_failed: %w", err)
	}

	user.Status = status
	user.StatusReason = reason
	user.LoginAttemptCount = 0

	return user, nil
}

/*
SoftDelete marks the target account as deleted.

Description: Super admin accounts are shielded from deletion. The row is kept
for audit purposes; every read path excludes deleted accounts.

Parameters:
  - context: context.Context
  - targetID: string

Returns:
  - error: NotFound, Forbidden (protected role), or storage errors
*/
func (service *Service) SoftDelete(context context.Context, targetID string) error {
	user, err := service.userRepository.FindByID(context, targetID)
	if err != nil {
		return err
	}
	if user.IsDeleted {
		return apperr.NotFound("User")
	}

	if user.Role.IsProtected() {
		return apperr.Forbidden("Super admin account cannot be deleted")
	}

	if err := service.userRepository.SoftDelete(context, targetID); err != nil {
		return fmt.Errorf("identity_service_soft_delete_failed: %w", err)
	}

	return nil
}

// # Verification Probe

// CheckResult is the payload returned by the verification probe endpoint.
type CheckResult struct {
	IsVerified bool `json:"isVerified"`
}

/*
CheckUser reports whether the account behind a phone number has completed OTP
verification.

Description: The login screen calls this before the credentials are entered,
so the probe is unauthenticated (and rate limited at the transport layer).
Missing, deleted, and disabled accounts all collapse into the same response to
avoid enumerating which phone numbers hold an active account.

Parameters:
  - context: context.Context
  - phoneNumber: string

Returns:
  - *CheckResult: Verification flag
  - error: apperr.Unauthorized for anything but an active account
*/
func (service *Service) CheckUser(context context.Context, phoneNumber string) (*CheckResult, error) {
	canonicalPhone, err := phone.Canonical(phoneNumber)
	if err != nil {
		return nil, apperr.Unauthorized("User not found")
	}

	user, err := service.userRepository.FindByPhone(context, canonicalPhone)
	if err != nil || user.Status != StatusActive {
		return nil, apperr.Unauthorized("User not found")
	}

	return &CheckResult{IsVerified: user.IsVerified}, nil
}

// # Authorization Support

/*
PermissionNames resolves the flattened permission names for an account.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []string: Distinct permission names
  - error: apperr.NotFound if the account has no permission group
*/
func (service *Service) PermissionNames(context context.Context, userID string) ([]string, error) {
	return service.permissionRepository.PermissionNamesForUser(context, userID)
}
