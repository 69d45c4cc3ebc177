// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package middleware

import (
	"context"
	"net/http"

	"github.com/ethio-transit/bsms-api/internal/identity"
	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
	"github.com/ethio-transit/bsms-api/internal/platform/ctxutil"
	"github.com/ethio-transit/bsms-api/internal/platform/respond"
)

// PermissionResolver flattens the permission names granted to an account
// through its permission groups.
type PermissionResolver interface {
	PermissionNames(context context.Context, userID string) ([]string, error)
}

// RequirePermission blocks requests whose caller lacks the named permission.
//
// # Usage
//
// Must be registered in the router AFTER [AuthGate]; it reads the account the
// gate loaded into the context.
//
// # Flow
//  1. Read the authenticated account from context; absent means the gate did
//     not run or rejected the request.
//  2. Flatten the account's permission names across all its groups.
//  3. Reject with 403 when the required permission is missing.
//  4. Attach the resolved names to the context for downstream handlers.
func RequirePermission(resolver PermissionResolver, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			user := identity.UserFromContext(request.Context())
			if user == nil {
				respond.Error(writer, request, apperr.Unauthorized("Unauthorized"))
				return
			}

			names, err := resolver.PermissionNames(request.Context(), user.ID)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			if !containsName(names, permission) {
				respond.Error(writer, request, apperr.Forbidden("Forbidden: missing permission"))
				return
			}

			ctx := ctxutil.WithPermissions(request.Context(), names)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

func containsName(names []string, target string) bool {
	for _, name := range names {
		if name == target {
			return true
		}
	}
	return false
}
