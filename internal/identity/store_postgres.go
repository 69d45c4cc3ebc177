// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

// PostgreSQL implementations of the identity repositories.
//
// # Architecture
//
// Repositories in this file are strictly separated from domain logic. They
// implement domain-defined interfaces (e.g., [UserRepository]) using the
// [pgxpool.Pool] connection manager.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
	"github.com/ethio-transit/bsms-api/internal/platform/dberr"
	"github.com/ethio-transit/bsms-api/pkg/textnorm"
	"github.com/ethio-transit/bsms-api/pkg/uuid"
)

// userColumns is the canonical users.account column list shared by all reads.
// The table is aliased "a" so the group aggregate can correlate.
const userColumns = `
	a.id, a.firstname, a.lastname, a.phonenumber, a.passwordhash, a.passwordhistory,
	a.role, a.status, a.statusreason, a.isverified, a.isdeleted, a.loginattemptcount,
	a.otp, a.otpexpiresat,
	COALESCE((SELECT array_agg(ag.groupid::text) FROM users.accountgroup ag WHERE ag.accountid = a.id), '{}'),
	a.createdat, a.updatedat, a.deletedat`

// # User Repository

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// scanUser hydrates a User from a pgx row.
func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.PhoneNumber,
		&user.PasswordHash,
		&user.PasswordHistory,
		&user.Role,
		&user.Status,
		&user.StatusReason,
		&user.IsVerified,
		&user.IsDeleted,
		&user.LoginAttemptCount,
		&user.OTP,
		&user.OTPExpiresAt,
		&user.PermissionGroupIDs,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

/*
Create persists a new account record into the users.account table.

Description: Deep-persists account metadata, ensuring timestamps are initialized
if not provided. The folded search name is derived here so that lookups stay
consistent regardless of which code path wrote the row.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: apperr.Conflict on duplicate phone, or connectivity errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO users.account (
			id, firstname, lastname, phonenumber, passwordhash, passwordhistory,
			role, status, statusreason, isverified, isdeleted, loginattemptcount,
			searchname, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	tx, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("identity_user_repo_create_begin_failed: %w", err)
	}
	defer func() { _ = tx.Rollback(context) }()

	_, err = tx.Exec(context, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.PasswordHash,
		user.PasswordHistory,
		user.Role,
		user.Status,
		user.StatusReason,
		user.IsVerified,
		user.IsDeleted,
		user.LoginAttemptCount,
		textnorm.FoldSearch(user.FullName()),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "identity_user_repo_create")
	}

	for _, groupID := range user.PermissionGroupIDs {
		const linkQuery = `INSERT INTO users.accountgroup (accountid, groupid) VALUES ($1, $2)`
		if _, err := tx.Exec(context, linkQuery, user.ID, groupID); err != nil {
			return dberr.Wrap(err, "identity_user_repo_create_group")
		}
	}

	if err := tx.Commit(context); err != nil {
		return fmt.Errorf("identity_user_repo_create_commit_failed: %w", err)
	}

	return nil
}

/*
FindByID retrieves an account by its primary key.

Description: Soft-deleted rows are returned as well; callers inspect
User.IsDeleted to decide how to respond.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users.account a WHERE a.id = $1`

	user, err := scanUser(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("identity_user_repo_find_by_id_failed: %w", err)
	}

	return user, nil
}

/*
FindByPhone retrieves a non-deleted account by its canonical phone number.

Parameters:
  - context: context.Context
  - phoneNumber: string (canonical +251 form)

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByPhone(context context.Context, phoneNumber string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users.account a WHERE a.phonenumber = $1 AND a.isdeleted = FALSE`

	user, err := scanUser(repository.pool.QueryRow(context, query, phoneNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("identity_user_repo_find_by_phone_failed: %w", err)
	}

	return user, nil
}

/*
List returns a page of non-deleted accounts matching the filter, plus the
total matching count.

Description: Free-text search folds the query through the same normalization
applied to searchname at write time, so accented names match their plain
spellings. Phone fragments are matched literally.

Parameters:
  - context: context.Context
  - filter: ListFilter

Returns:
  - []User: Matching accounts, newest first
  - int: Total matching row count
  - error: Database errors
*/
func (repository *PostgresUserRepository) List(context context.Context, filter ListFilter) ([]User, int, error) {
	where := ` WHERE a.isdeleted = FALSE`
	args := []any{}

	if filter.Search != "" {
		args = append(args, "%"+textnorm.FoldSearch(filter.Search)+"%")
		where += fmt.Sprintf(` AND (a.searchname LIKE $%d OR a.phonenumber LIKE $%d)`, len(args), len(args))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		where += fmt.Sprintf(` AND a.role = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(` AND a.status = $%d`, len(args))
	}

	// Total count first, for pagination metadata.
	var total int
	countQuery := `SELECT COUNT(*) FROM users.account a` + where
	if err := repository.pool.QueryRow(context, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("identity_user_repo_list_count_failed: %w", err)
	}

	args = append(args, filter.Page.Limit, filter.Page.Offset())
	listQuery := `SELECT ` + userColumns + ` FROM users.account a` + where +
		fmt.Sprintf(` ORDER BY a.createdat DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := repository.pool.Query(context, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("identity_user_repo_list_failed: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("identity_user_repo_list_scan_failed: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("identity_user_repo_list_rows_failed: %w", err)
	}

	return users, total, nil
}

/*
Update persists changes to mutable profile fields.

Description: Only name, role, and permission group are written here; phone,
password, verification, and status transitions all have dedicated methods so
that each transition stays auditable.

Parameters:
  - context: context.Context
  - user: *User

Returns:
  - error: Database errors
*/
func (repository *PostgresUserRepository) Update(context context.Context, user *User) error {
	const query = `
		UPDATE users.account
		SET firstname = $2, lastname = $3, role = $4, searchname = $5, updatedat = $6
		WHERE id = $1`

	user.UpdatedAt = time.Now()

	tx, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("identity_user_repo_update_begin_failed: %w", err)
	}
	defer func() { _ = tx.Rollback(context) }()

	_, err = tx.Exec(context, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Role,
		textnorm.FoldSearch(user.FullName()),
		user.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "identity_user_repo_update")
	}

	// Group membership is replaced wholesale to mirror the entity state.
	if _, err := tx.Exec(context, `DELETE FROM users.accountgroup WHERE accountid = $1`, user.ID); err != nil {
		return fmt.Errorf("identity_user_repo_update_groups_clear_failed: %w", err)
	}
	for _, groupID := range user.PermissionGroupIDs {
		const linkQuery = `INSERT INTO users.accountgroup (accountid, groupid) VALUES ($1, $2)`
		if _, err := tx.Exec(context, linkQuery, user.ID, groupID); err != nil {
			return dberr.Wrap(err, "identity_user_repo_update_group")
		}
	}

	if err := tx.Commit(context); err != nil {
		return fmt.Errorf("identity_user_repo_update_commit_failed: %w", err)
	}

	return nil
}

/*
UpdatePassword replaces the password hash and history in one statement.

Parameters:
  - context: context.Context
  - userID: string
  - newHash: string
  - history: []string (already trimmed to the retention depth)

Returns:
  - error: Database errors
*/
func (repository *PostgresUserRepository) UpdatePassword(context context.Context, userID, newHash string, history []string) error {
	const query = `
		UPDATE users.account
		SET passwordhash = $2, passwordhistory = $3, passwordchangedat = $4, updatedat = $4
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, newHash, history, time.Now())
	if err != nil {
		return fmt.Errorf("identity_user_repo_update_password_failed: %w", err)
	}

	return nil
}

/*
SetStatus flips the account activation state and records the reason.

Parameters:
  - context: context.Context
  - userID: string
  - status: AccountStatus
  - reason: string

Returns:
  - error: Database errors
*/
func (repository *PostgresUserRepository) SetStatus(context context.Context, userID string, status AccountStatus, reason string) error {
	const query = `
		UPDATE users.account
		SET status = $2, statusreason = $3, updatedat = $4
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, status, reason, time.Now())
	if err != nil {
		return fmt.Errorf("identity_user_repo_set_status_failed: %w", err)
	}

	return nil
}

/*
IncrementLoginAttempts bumps the consecutive-failure counter atomically.

Description: The increment and read happen in a single statement so that
concurrent failed attempts cannot observe the same counter value.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - int: The counter value after the increment
  - error: Database errors
*/
func (repository *PostgresUserRepository) IncrementLoginAttempts(context context.Context, userID string) (int, error) {
	const query = `
		UPDATE users.account
		SET loginattemptcount = loginattemptcount + 1, lastloginattempt = $2, updatedat = $2
		WHERE id = $1
		RETURNING loginattemptcount`

	var count int
	if err := repository.pool.QueryRow(context, query, userID, time.Now()).Scan(&count); err != nil {
		return 0, fmt.Errorf("identity_user_repo_increment_attempts_failed: %w", err)
	}

	return count, nil
}

/*
ResetLoginAttempts zeroes the consecutive-failure counter.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Database errors
*/
func (repository *PostgresUserRepository) ResetLoginAttempts(context context.Context, userID string) error {
	const query = `UPDATE users.account SET loginattemptcount = 0, updatedat = $2 WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("identity_user_repo_reset_attempts_failed: %w", err)
	}

	return nil
}

/*
TouchLastOnline stamps the last-online marker on the account.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Database errors
*/
func (repository *PostgresUserRepository) TouchLastOnline(context context.Context, userID string) error {
	const query = `UPDATE users.account SET lastonlineat = $2 WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("identity_user_repo_touch_last_online_failed: %w", err)
	}

	return nil
}

/*
SetOTP stores a one-time code and its expiry on the account.

Parameters:
  - context: context.Context
  - userID: string
  - code: string
  - expiresAt: time.Time

Returns:
  - error: Database errors
*/
func (repository *PostgresUserRepository) SetOTP(context context.Context, userID, code string, expiresAt time.Time) error {
	const query = `UPDATE users.account SET otp = $2, otpexpiresat = $3, updatedat = $4 WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, code, expiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("identity_user_repo_set_otp_failed: %w", err)
	}

	return nil
}

/*
ClearOTP removes any stored one-time code from the account.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Database errors
*/
func (repository *PostgresUserRepository) ClearOTP(context context.Context, userID string) error {
	const query = `UPDATE users.account SET otp = '', otpexpiresat = NULL, updatedat = $2 WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("identity_user_repo_clear_otp_failed: %w", err)
	}

	return nil
}

/*
MarkVerified updates the account to isverified = true.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Database errors
*/
func (repository *PostgresUserRepository) MarkVerified(context context.Context, userID string) error {
	const query = `UPDATE users.account SET isverified = TRUE, updatedat = $2 WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("identity_user_repo_mark_verified_failed: %w", err)
	}

	return nil
}

/*
SoftDelete marks the account as deleted without removing the row.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Database errors
*/
func (repository *PostgresUserRepository) SoftDelete(context context.Context, id string) error {
	const query = `
		UPDATE users.account
		SET isdeleted = TRUE, deletedat = $2, updatedat = $2
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("identity_user_repo_soft_delete_failed: %w", err)
	}

	return nil
}

// # Permission Repository

// PostgresPermissionRepository implements the PermissionRepository interface using pgx.
type PostgresPermissionRepository struct {
	pool *pgxpool.Pool
}

// NewPermissionRepository creates a new PostgreSQL implementation of the PermissionRepository.
func NewPermissionRepository(pool *pgxpool.Pool) *PostgresPermissionRepository {
	return &PostgresPermissionRepository{pool: pool}
}

/*
GroupByID returns a permission group with its permissions hydrated.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *PermissionGroup: Hydrated group
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresPermissionRepository) GroupByID(context context.Context, id string) (*PermissionGroup, error) {
	const groupQuery = `
		SELECT id, groupname, realm, enabled, isdeleted, createdat
		FROM users.permissiongroup
		WHERE id = $1`

	group := &PermissionGroup{}
	err := repository.pool.QueryRow(context, groupQuery, id).Scan(
		&group.ID, &group.Name, &group.Realm, &group.Enabled, &group.IsDeleted, &group.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Permission group")
		}
		return nil, fmt.Errorf("identity_permission_repo_group_failed: %w", err)
	}

	const permQuery = `
		SELECT p.id, p.permissionname, p.realm, p.description, p.createdat
		FROM users.permission p
		JOIN users.grouppermission gp ON gp.permissionid = p.id
		WHERE gp.groupid = $1
		ORDER BY p.permissionname`

	rows, err := repository.pool.Query(context, permQuery, id)
	if err != nil {
		return nil, fmt.Errorf("identity_permission_repo_group_perms_failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		permission := Permission{}
		if err := rows.Scan(&permission.ID, &permission.Name, &permission.Realm, &permission.Description, &permission.CreatedAt); err != nil {
			return nil, fmt.Errorf("identity_permission_repo_group_scan_failed: %w", err)
		}
		group.Permissions = append(group.Permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity_permission_repo_group_rows_failed: %w", err)
	}

	return group, nil
}

// GroupByName resolves a permission group by its (name, realm) pair. Role
// names double as group names, so enrollment uses this to bind accounts to
// the group matching their role. Disabled and deleted groups do not resolve:
// an account must never be bound to a group that grants nothing.
func (repository *PostgresPermissionRepository) GroupByName(context context.Context, name, realm string) (*PermissionGroup, error) {
	const query = `
		SELECT id
		FROM users.permissiongroup
		WHERE groupname = $1 AND realm = $2 AND enabled AND isdeleted = FALSE`

	var id string
	err := repository.pool.QueryRow(context, query, name, realm).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Permission group")
		}
		return nil, fmt.Errorf("identity_permission_repo_group_by_name_failed: %w", err)
	}

	return repository.GroupByID(context, id)
}

/*
PermissionNamesForUser resolves the flattened permission names granted to an
account through its permission groups.

Description: A single join replaces the two-stage population the service would
otherwise perform. Accounts without a group are reported as NotFound so the
authorization layer can distinguish "no group" (404) from "group grants
nothing" (403).

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []string: Distinct permission names
  - error: apperr.NotFound if the account has no group, or database errors
*/
func (repository *PostgresPermissionRepository) PermissionNamesForUser(context context.Context, userID string) ([]string, error) {
	const existsQuery = `
		SELECT EXISTS (SELECT 1 FROM users.account WHERE id = $1 AND isdeleted = FALSE),
		       EXISTS (SELECT 1 FROM users.accountgroup WHERE accountid = $1)`

	var userExists, hasGroups bool
	if err := repository.pool.QueryRow(context, existsQuery, userID).Scan(&userExists, &hasGroups); err != nil {
		return nil, fmt.Errorf("identity_permission_repo_user_group_failed: %w", err)
	}
	if !userExists {
		return nil, apperr.NotFound("User")
	}
	if !hasGroups {
		return nil, apperr.NotFound("User permission group")
	}

	// Disabled or deleted groups grant nothing; their links survive so a
	// re-enabled group restores its members' permissions.
	const namesQuery = `
		SELECT DISTINCT p.permissionname
		FROM users.accountgroup ag
		JOIN users.permissiongroup g ON g.id = ag.groupid AND g.enabled AND g.isdeleted = FALSE
		JOIN users.grouppermission gp ON gp.groupid = ag.groupid
		JOIN users.permission p ON p.id = gp.permissionid
		WHERE ag.accountid = $1`

	rows, err := repository.pool.Query(context, namesQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("identity_permission_repo_names_failed: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("identity_permission_repo_names_scan_failed: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity_permission_repo_names_rows_failed: %w", err)
	}

	return names, nil
}

/*
EnsurePermission inserts a permission if absent and returns its ID.

Parameters:
  - context: context.Context
  - name: string
  - realm: string
  - description: string

Returns:
  - string: Permission ID
  - error: Database errors
*/
func (repository *PostgresPermissionRepository) EnsurePermission(context context.Context, name, realm, description string) (string, error) {
	const query = `
		INSERT INTO users.permission (id, permissionname, realm, description, createdat)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (permissionname, realm) DO UPDATE SET description = EXCLUDED.description
		RETURNING id`

	var id string
	err := repository.pool.QueryRow(context, query,
		uuid.New(), name, realm, description, time.Now(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("identity_permission_repo_ensure_failed: %w", err)
	}

	return id, nil
}

/*
EnsureGroup inserts a permission group if absent, replaces its permission set,
and returns its ID.

Description: Runs in a transaction so a failed seed never leaves a group with
half its permissions.

Parameters:
  - context: context.Context
  - name: string
  - realm: string
  - permissionIDs: []string

Returns:
  - string: Group ID
  - error: Database errors
*/
func (repository *PostgresPermissionRepository) EnsureGroup(context context.Context, name, realm string, permissionIDs []string) (string, error) {
	tx, err := repository.pool.Begin(context)
	if err != nil {
		return "", fmt.Errorf("identity_permission_repo_ensure_group_begin_failed: %w", err)
	}
	defer func() { _ = tx.Rollback(context) }()

	const groupQuery = `
		INSERT INTO users.permissiongroup (id, groupname, realm, createdat)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (groupname, realm) DO UPDATE SET groupname = EXCLUDED.groupname
		RETURNING id`

	var groupID string
	if err := tx.QueryRow(context, groupQuery, uuid.New(), name, realm, time.Now()).Scan(&groupID); err != nil {
		return "", fmt.Errorf("identity_permission_repo_ensure_group_failed: %w", err)
	}

	if _, err := tx.Exec(context, `DELETE FROM users.grouppermission WHERE groupid = $1`, groupID); err != nil {
		return "", fmt.Errorf("identity_permission_repo_ensure_group_clear_failed: %w", err)
	}

	for _, permissionID := range permissionIDs {
		const linkQuery = `INSERT INTO users.grouppermission (groupid, permissionid) VALUES ($1, $2)`
		if _, err := tx.Exec(context, linkQuery, groupID, permissionID); err != nil {
			return "", fmt.Errorf("identity_permission_repo_ensure_group_link_failed: %w", err)
		}
	}

	if err := tx.Commit(context); err != nil {
		return "", fmt.Errorf("identity_permission_repo_ensure_group_commit_failed: %w", err)
	}

	return groupID, nil
}
