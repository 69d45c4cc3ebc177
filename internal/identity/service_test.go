// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethio-transit/bsms-api/internal/identity"
	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
	"github.com/ethio-transit/bsms-api/internal/platform/sec"
)

// # Test Doubles

// fakeUserRepository is an in-memory UserRepository keyed by account ID.
type fakeUserRepository struct {
	users map[string]*identity.User
}

func newFakeUserRepository(users ...*identity.User) *fakeUserRepository {
	repo := &fakeUserRepository{users: map[string]*identity.User{}}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (repo *fakeUserRepository) FindByID(_ context.Context, id string) (*identity.User, error) {
	user, ok := repo.users[id]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	clone := *user
	return &clone, nil
}

func (repo *fakeUserRepository) FindByPhone(_ context.Context, phoneNumber string) (*identity.User, error) {
	for _, user := range repo.users {
		if user.PhoneNumber == phoneNumber && !user.IsDeleted {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (repo *fakeUserRepository) List(_ context.Context, _ identity.ListFilter) ([]identity.User, int, error) {
	users := make([]identity.User, 0, len(repo.users))
	for _, user := range repo.users {
		if !user.IsDeleted {
			users = append(users, *user)
		}
	}
	return users, len(users), nil
}

func (repo *fakeUserRepository) Create(_ context.Context, user *identity.User) error {
	clone := *user
	repo.users[user.ID] = &clone
	return nil
}

func (repo *fakeUserRepository) Update(_ context.Context, user *identity.User) error {
	stored, ok := repo.users[user.ID]
	if !ok {
		return apperr.NotFound("User")
	}
	stored.FirstName = user.FirstName
	stored.LastName = user.LastName
	stored.Role = user.Role
	stored.PermissionGroupIDs = user.PermissionGroupIDs
	return nil
}

func (repo *fakeUserRepository) UpdatePassword(_ context.Context, userID, newHash string, history []string) error {
	stored, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	stored.PasswordHash = newHash
	stored.PasswordHistory = history
	return nil
}

func (repo *fakeUserRepository) SetStatus(_ context.Context, userID string, status identity.AccountStatus, reason string) error {
	stored, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	stored.Status = status
	stored.StatusReason = reason
	return nil
}

func (repo *fakeUserRepository) IncrementLoginAttempts(_ context.Context, userID string) (int, error) {
	stored, ok := repo.users[userID]
	if !ok {
		return 0, apperr.NotFound("User")
	}
	stored.LoginAttemptCount++
	return stored.LoginAttemptCount, nil
}

func (repo *fakeUserRepository) ResetLoginAttempts(_ context.Context, userID string) error {
	stored, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	stored.LoginAttemptCount = 0
	return nil
}

func (repo *fakeUserRepository) TouchLastOnline(_ context.Context, userID string) error {
	if _, ok := repo.users[userID]; !ok {
		return apperr.NotFound("User")
	}
	return nil
}

func (repo *fakeUserRepository) SetOTP(_ context.Context, userID, code string, expiresAt time.Time) error {
	stored, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	stored.OTP = code
	stored.OTPExpiresAt = &expiresAt
	return nil
}

func (repo *fakeUserRepository) ClearOTP(_ context.Context, userID string) error {
	stored, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	stored.OTP = ""
	stored.OTPExpiresAt = nil
	return nil
}

func (repo *fakeUserRepository) MarkVerified(_ context.Context, userID string) error {
	stored, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	stored.IsVerified = true
	return nil
}

func (repo *fakeUserRepository) SoftDelete(_ context.Context, id string) error {
	stored, ok := repo.users[id]
	if !ok {
		return apperr.NotFound("User")
	}
	stored.IsDeleted = true
	return nil
}

// fakePermissionRepository serves groups keyed by both ID and name.
type fakePermissionRepository struct {
	groups map[string]*identity.PermissionGroup
	grants map[string][]string
}

func newFakePermissionRepository(groups ...*identity.PermissionGroup) *fakePermissionRepository {
	repo := &fakePermissionRepository{
		groups: map[string]*identity.PermissionGroup{},
		grants: map[string][]string{},
	}
	for _, group := range groups {
		repo.groups[group.ID] = group
	}
	return repo
}

func (repo *fakePermissionRepository) GroupByID(_ context.Context, id string) (*identity.PermissionGroup, error) {
	group, ok := repo.groups[id]
	if !ok {
		return nil, apperr.NotFound("Permission group")
	}
	return group, nil
}

func (repo *fakePermissionRepository) GroupByName(_ context.Context, name, realm string) (*identity.PermissionGroup, error) {
	for _, group := range repo.groups {
		// Disabled and deleted groups do not resolve by name, mirroring the
		// store's binding query.
		if group.Name == name && group.Realm == realm && group.Enabled && !group.IsDeleted {
			return group, nil
		}
	}
	return nil, apperr.NotFound("Permission group")
}

func (repo *fakePermissionRepository) PermissionNamesForUser(_ context.Context, userID string) ([]string, error) {
	names, ok := repo.grants[userID]
	if !ok {
		return nil, apperr.NotFound("User permission group")
	}
	return names, nil
}

func (repo *fakePermissionRepository) EnsurePermission(_ context.Context, name, _, _ string) (string, error) {
	return "perm-" + name, nil
}

func (repo *fakePermissionRepository) EnsureGroup(_ context.Context, name, realm string, _ []string) (string, error) {
	id := "group-" + name
	repo.groups[id] = &identity.PermissionGroup{ID: id, Name: name, Realm: realm, Enabled: true}
	return id, nil
}

// # Fixtures

func cashierGroup() *identity.PermissionGroup {
	return &identity.PermissionGroup{ID: "group-cashier", Name: "cashier", Realm: "BSMS", Enabled: true}
}

func superAdminGroup() *identity.PermissionGroup {
	return &identity.PermissionGroup{ID: "group-super", Name: "super_admin", Realm: "BSMS", Enabled: true}
}

func activeCashier() *identity.User {
	return &identity.User{
		ID:                 "user-1",
		FirstName:          "Abebe",
		LastName:           "Kebede",
		PhoneNumber:        "+251911223344",
		PasswordHash:       "$2a$10$hash",
		Role:               sec.RoleCashier,
		Status:             identity.StatusActive,
		IsVerified:         true,
		PermissionGroupIDs: []string{"group-cashier"},
	}
}

// # Enrollment

/*
TestCreateUser_BindsGroupByRole verifies that a new account lands in the
permission group named after its role.
*/
func TestCreateUser_BindsGroupByRole(t *testing.T) {
	users := newFakeUserRepository()
	service := identity.NewService(users, newFakePermissionRepository(cashierGroup()))

	user, err := service.CreateUser(context.Background(), identity.CreateUserInput{
		FirstName:   "Sara",
		LastName:    "Tesfaye",
		PhoneNumber: "0911556677",
		Password:    "s3cret-pass",
		Role:        "cashier",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"group-cashier"}, user.PermissionGroupIDs)
	// Phone is stored canonically regardless of the spelling supplied.
	assert.Equal(t, "+251911556677", user.PhoneNumber)
	// Accounts start unverified and active.
	assert.False(t, user.IsVerified)
	assert.Equal(t, identity.StatusActive, user.Status)
	// The password never survives in plain text.
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)
}

/*
TestCreateUser_NoGroupForRole verifies enrollment fails when no permission
group matches the requested role.
*/
func TestCreateUser_NoGroupForRole(t *testing.T) {
	service := identity.NewService(newFakeUserRepository(), newFakePermissionRepository())

	_, err := service.CreateUser(context.Background(), identity.CreateUserInput{
		FirstName:   "Sara",
		LastName:    "Tesfaye",
		PhoneNumber: "0911556677",
		Password:    "s3cret-pass",
		Role:        "cashier",
	})

	var appError *apperr.AppError
	require.True(t, errors.As(err, &appError))
	assert.Equal(t, 400, appError.HTTPStatus)
	assert.Contains(t, appError.Message, "No permission group found for role")
}

/*
TestCreateUser_DisabledGroupDoesNotBind verifies a disabled or deleted
permission group behaves like a missing one during enrollment.
*/
func TestCreateUser_DisabledGroupDoesNotBind(t *testing.T) {
	disabled := cashierGroup()
	disabled.Enabled = false
	deleted := superAdminGroup()
	deleted.IsDeleted = true
	service := identity.NewService(newFakeUserRepository(), newFakePermissionRepository(disabled, deleted))

	for _, role := range []string{"cashier", "super_admin"} {
		_, err := service.CreateUser(context.Background(), identity.CreateUserInput{
			FirstName:   "Sara",
			LastName:    "Tesfaye",
			PhoneNumber: "0911556677",
			Password:    "s3cret-pass",
			Role:        role,
		})

		var appError *apperr.AppError
		require.True(t, errors.As(err, &appError))
		assert.Equal(t, 400, appError.HTTPStatus)
		assert.Contains(t, appError.Message, "No permission group found for role")
	}
}

/*
TestCreateUser_DuplicatePhone verifies that two spellings of the same phone
number cannot enroll twice.
*/
func TestCreateUser_DuplicatePhone(t *testing.T) {
	users := newFakeUserRepository(activeCashier())
	service := identity.NewService(users, newFakePermissionRepository(cashierGroup()))

	_, err := service.CreateUser(context.Background(), identity.CreateUserInput{
		FirstName:   "Sara",
		LastName:    "Tesfaye",
		PhoneNumber: "0911223344", // local spelling of the existing +251911223344
		Password:    "s3cret-pass",
		Role:        "cashier",
	})

	var appError *apperr.AppError
	require.True(t, errors.As(err, &appError))
	assert.Equal(t, 409, appError.HTTPStatus)
}

// # Administrative Controls

/*
TestUpdateAnyUser_RoleChangeRebindsGroup verifies a role change swaps the
account into the new role's permission group.
*/
func TestUpdateAnyUser_RoleChangeRebindsGroup(t *testing.T) {
	users := newFakeUserRepository(activeCashier())
	service := identity.NewService(users, newFakePermissionRepository(cashierGroup(), superAdminGroup()))

	newRole := "super_admin"
	user, err := service.UpdateAnyUser(context.Background(), "user-1", identity.UpdateUserInput{Role: &newRole})

	require.NoError(t, err)
	assert.Equal(t, sec.RoleSuperAdmin, user.Role)
	assert.Equal(t, []string{"group-super"}, user.PermissionGroupIDs)
}

/*
TestUpdateAnyUser_SuperAdminRoleLocked verifies the super admin role cannot be
changed.
*/
func TestUpdateAnyUser_SuperAdminRoleLocked(t *testing.T) {
	admin := activeCashier()
	admin.Role = sec.RoleSuperAdmin
	users := newFakeUserRepository(admin)
	service := identity.NewService(users, newFakePermissionRepository(cashierGroup(), superAdminGroup()))

	newRole := "cashier"
	_, err := service.UpdateAnyUser(context.Background(), "user-1", identity.UpdateUserInput{Role: &newRole})

	var appError *apperr.AppError
	require.True(t, errors.As(err, &appError))
	assert.Equal(t, 403, appError.HTTPStatus)
}

/*
TestToggleAccountStatus_Flips verifies the status switch flips in both
directions and clears the lockout counter.
*/
func TestToggleAccountStatus_Flips(t *testing.T) {
	locked := activeCashier()
	locked.Status = identity.StatusInactive
	locked.LoginAttemptCount = 5
	users := newFakeUserRepository(locked)
	service := identity.NewService(users, newFakePermissionRepository())

	// 1. INACTIVE flips to ACTIVE and the counter resets.
	user, err := service.ToggleAccountStatus(context.Background(), "user-1", "appeal approved")
	require.NoError(t, err)
	assert.Equal(t, identity.StatusActive, user.Status)
	assert.Equal(t, "appeal approved", user.StatusReason)
	assert.Zero(t, user.LoginAttemptCount)

	// 2. ACTIVE flips back to INACTIVE.
	user, err = service.ToggleAccountStatus(context.Background(), "user-1", "fraud review")
	require.NoError(t, err)
	assert.Equal(t, identity.StatusInactive, user.Status)
}

/*
TestSoftDelete_ProtectsSuperAdmin verifies super admin accounts cannot be
deleted while regular accounts can.
*/
func TestSoftDelete_ProtectsSuperAdmin(t *testing.T) {
	admin := activeCashier()
	admin.ID = "user-admin"
	admin.PhoneNumber = "+251911000000"
	admin.Role = sec.RoleSuperAdmin
	users := newFakeUserRepository(activeCashier(), admin)
	service := identity.NewService(users, newFakePermissionRepository())

	// 1. Super admin is shielded.
	err := service.SoftDelete(context.Background(), "user-admin")
	var appError *apperr.AppError
	require.True(t, errors.As(err, &appError))
	assert.Equal(t, 403, appError.HTTPStatus)

	// 2. Regular account deletes, then disappears from reads.
	require.NoError(t, service.SoftDelete(context.Background(), "user-1"))
	err = service.SoftDelete(context.Background(), "user-1")
	assert.Error(t, err)
}

// # Verification Check

/*
TestCheckUser verifies the lookup reports verification state for active
accounts only.
*/
func TestCheckUser(t *testing.T) {
	verified := activeCashier()
	disabled := activeCashier()
	disabled.ID = "user-2"
	disabled.PhoneNumber = "+251911999999"
	disabled.Status = identity.StatusInactive
	users := newFakeUserRepository(verified, disabled)
	service := identity.NewService(users, newFakePermissionRepository())

	// 1. Active account, local phone spelling.
	result, err := service.CheckUser(context.Background(), "0911223344")
	require.NoError(t, err)
	assert.True(t, result.IsVerified)

	// 2. Disabled accounts are indistinguishable from unknown numbers.
	_, err = service.CheckUser(context.Background(), "0911999999")
	var appError *apperr.AppError
	require.True(t, errors.As(err, &appError))
	assert.Equal(t, 401, appError.HTTPStatus)
	assert.Equal(t, "User not found", appError.Message)

	// 3. Unknown number.
	_, err = service.CheckUser(context.Background(), "0911888888")
	assert.Error(t, err)
}
