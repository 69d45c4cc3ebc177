// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

// Startup seeding of the permission catalog.
//
// Seeding is idempotent: every boot reconciles the catalog with the sets
// below, so adding a permission here is all that is needed to roll it out.
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethio-transit/bsms-api/internal/platform/constants"
	"github.com/ethio-transit/bsms-api/pkg/slice"
)

// # Permission Catalog

// Permission names checked by route guards.
const (
	PermGetUsers     = "get users"
	PermCreateUser   = "create user"
	PermUpdateUser   = "update user"
	PermDeleteUser   = "delete user"
	PermGetCustomers = "get customers"
)

// seededPermission pairs a permission name with its human description.
type seededPermission struct {
	name        string
	description string
}

var seedCatalog = []seededPermission{
	{PermGetUsers, "List and search operator accounts"},
	{PermCreateUser, "Enroll new operator accounts"},
	{PermUpdateUser, "Edit any operator account"},
	{PermDeleteUser, "Soft-delete operator accounts"},
	{PermGetCustomers, "View customer records"},
}

// seedGroups maps group names to the permissions they grant.
var seedGroups = map[string][]string{
	"super_admin": {PermGetUsers, PermDeleteUser, PermCreateUser, PermUpdateUser},
	"cashier":     {PermGetUsers, PermUpdateUser, PermGetCustomers},
}

/*
SeedPermissions reconciles the permission catalog and default groups.

Description: Called once at startup, before the server accepts traffic.
Permissions are upserted by (name, realm); groups get their permission sets
replaced wholesale so removals propagate too.

Parameters:
  - context: context.Context
  - repository: PermissionRepository
  - logger: *slog.Logger

Returns:
  - error: Storage errors (seeding failure aborts startup)
*/
func SeedPermissions(context context.Context, repository PermissionRepository, logger *slog.Logger) error {
	ids := make(map[string]string, len(seedCatalog))

	for _, permission := range seedCatalog {
		id, err := repository.EnsurePermission(context, permission.name, constants.PermissionRealm, permission.description)
		if err != nil {
			return fmt.Errorf("identity_seed_permission_failed: %w", err)
		}
		ids[permission.name] = id
	}

	for groupName, permissionNames := range seedGroups {
		permissionIDs := slice.Map(permissionNames, func(name string) string { return ids[name] })
		if _, err := repository.EnsureGroup(context, groupName, constants.PermissionRealm, permissionIDs); err != nil {
			return fmt.Errorf("identity_seed_group_failed: %w", err)
		}

		logger.Info("permission_group_seeded",
			slog.String("group", groupName),
			slog.Int("permissions", len(permissionIDs)),
		)
	}

	return nil
}
