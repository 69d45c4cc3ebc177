// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package auth

import (
	"context"
)

// # Session Repository

// SessionRepository defines the contract for session persistence.
//
// Implementations must uphold the one-active-session invariant: after
// RotateActive or ReuseOrCreate returns, the account has exactly one active
// session.
type SessionRepository interface {
	/*
		FindByID retrieves a session by its unique ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Session: Hydrated session entity
		  - error: apperr.NotFound or database errors
	*/
	FindByID(context context.Context, id string) (*Session, error)

	/*
		FindActiveByUser retrieves the account's currently active session.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - *Session: The active session
		  - error: apperr.NotFound when no session is active, or database errors
	*/
	FindActiveByUser(context context.Context, userID string) (*Session, error)

	/*
		RotateActive deactivates every session the account holds and creates a
		fresh active one in the same transaction.

		Description: A crash between the two steps must not leave the account
		with either zero usable sessions and a minted token, or two active
		sessions, so both statements share one transaction.

		Parameters:
		  - context: context.Context
		  - session: *Session (new session to activate)

		Returns:
		  - error: Database errors
	*/
	RotateActive(context context.Context, session *Session) error

	/*
		ReuseOrCreate returns the account's active session, creating one only
		when none exists.

		Description: OTP-verification login keeps an already-active session
		alive instead of rotating it, so verifying a code on the same device
		does not sign the operator out elsewhere mid-flow.

		Parameters:
		  - context: context.Context
		  - session: *Session (candidate; ID is ignored when an active session
		    is reused)

		Returns:
		  - *Session: The session now anchoring tokens
		  - error: Database errors
	*/
	ReuseOrCreate(context context.Context, session *Session) (*Session, error)

	/*
		DeactivateAllForUser marks every session of the account inactive.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Database errors
	*/
	DeactivateAllForUser(context context.Context, userID string) error
}
