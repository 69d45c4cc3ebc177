// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

// PostgreSQL implementation of the session store.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
)

// sessionColumns is the canonical projection shared by every session query.
const sessionColumns = `id, userid, isactive, useragent, ipaddress, createdat, updatedat`

// PostgresSessionRepository implements the SessionRepository interface using pgx.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of the SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

// scanSession hydrates a Session from any row matching sessionColumns.
func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.IsActive,
		&session.UserAgent,
		&session.IPAddress,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

/*
FindByID retrieves a session by its unique ID.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Session: Hydrated session entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresSessionRepository) FindByID(context context.Context, id string) (*Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM users.session
		WHERE id = $1`

	session, err := scanSession(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("auth_session_repo_find_failed: %w", err)
	}

	return session, nil
}

/*
FindActiveByUser retrieves the account's currently active session.

Description: The partial unique index on (userid) WHERE isactive guarantees at
most one row can match.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *Session: The active session
  - error: apperr.NotFound when no session is active, or database errors
*/
func (repository *PostgresSessionRepository) FindActiveByUser(context context.Context, userID string) (*Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM users.session
		WHERE userid = $1 AND isactive`

	session, err := scanSession(repository.pool.QueryRow(context, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("auth_session_repo_find_active_failed: %w", err)
	}

	return session, nil
}

/*
RotateActive deactivates every session the account holds and creates a fresh
active one in the same transaction.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Database errors
*/
func (repository *PostgresSessionRepository) RotateActive(context context.Context, session *Session) error {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("auth_session_repo_rotate_begin_failed: %w", err)
	}
	defer func() { _ = transaction.Rollback(context) }()

	now := time.Now()

	const deactivateQuery = `
		UPDATE users.session
		SET isactive = FALSE, updatedat = $2
		WHERE userid = $1 AND isactive`

	if _, err := transaction.Exec(context, deactivateQuery, session.UserID, now); err != nil {
		return fmt.Errorf("auth_session_repo_rotate_deactivate_failed: %w", err)
	}

	session.IsActive = true
	session.CreatedAt = now
	session.UpdatedAt = now

	const insertQuery = `
		INSERT INTO users.session (id, userid, isactive, useragent, ipaddress, createdat, updatedat)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = transaction.Exec(context, insertQuery,
		session.ID,
		session.UserID,
		session.IsActive,
		session.UserAgent,
		session.IPAddress,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("auth_session_repo_rotate_insert_failed: %w", err)
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("auth_session_repo_rotate_commit_failed: %w", err)
	}

	return nil
}

/*
ReuseOrCreate returns the account's active session, creating one only when
none exists.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - *Session: The session now anchoring tokens
  - error: Database errors
*/
func (repository *PostgresSessionRepository) ReuseOrCreate(context context.Context, session *Session) (*Session, error) {
	existing, err := repository.FindActiveByUser(context, session.UserID)
	if err == nil {
		return existing, nil
	}
	if !apperr.IsAppError(err) {
		return nil, err
	}

	now := time.Now()
	session.IsActive = true
	session.CreatedAt = now
	session.UpdatedAt = now

	// Two concurrent OTP verifications can both miss the lookup above. The
	// conflict target is the one-active-per-user partial index; the loser
	// inserts nothing and reuses the winner's session.
	const insertQuery = `
		INSERT INTO users.session (id, userid, isactive, useragent, ipaddress, createdat, updatedat)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (userid) WHERE isactive DO NOTHING`

	tag, err := repository.pool.Exec(context, insertQuery,
		session.ID,
		session.UserID,
		session.IsActive,
		session.UserAgent,
		session.IPAddress,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("auth_session_repo_create_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.FindActiveByUser(context, session.UserID)
	}

	return session, nil
}

/*
DeactivateAllForUser marks every session of the account inactive.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Database errors
*/
func (repository *PostgresSessionRepository) DeactivateAllForUser(context context.Context, userID string) error {
	const query = `
		UPDATE users.session
		SET isactive = FALSE, updatedat = $2
		WHERE userid = $1 AND isactive`

	if _, err := repository.pool.Exec(context, query, userID, time.Now()); err != nil {
		return fmt.Errorf("auth_session_repo_deactivate_all_failed: %w", err)
	}

	return nil
}
