// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Unrestricted system access; cannot be deleted or downgraded
	RoleSuperAdmin UserRole = "super_admin"

	// Default role for ticket-office operators
	RoleCashier UserRole = "cashier"
)

// IsValid reports whether the role is one of the known roles.
func (r UserRole) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleCashier:
		return true
	default:
		return false
	}
}

// # Role Protection

// IsProtected reports whether accounts holding this role are shielded from
// deletion and role downgrades.
func (r UserRole) IsProtected() bool {
	return r == RoleSuperAdmin
}
