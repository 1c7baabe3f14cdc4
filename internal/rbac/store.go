// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package rbac

import (
	"context"

	"github.com/taskora/taskora/pkg/pagination"
)

// PrincipalRecord carries the raw user and tenant state used to build a
// Principal. Status interpretation happens in the service layer.
type PrincipalRecord struct {
	UserID       int64
	Email        string
	FirstName    string
	LastName     string
	UserStatus   string
	TenantID     int64
	TenantName   string
	TenantStatus string
}

// PrincipalRepository resolves the identity side of authorization: who the
// user is, which tenant they belong to, and what they are allowed to do.
type PrincipalRepository interface {
	// FindPrincipalRecord loads the user joined with their tenant.
	// Returns dberr.ErrNotFound when no such user exists.
	FindPrincipalRecord(ctx context.Context, userID int64) (*PrincipalRecord, error)

	// ListUserPermissions returns the deduplicated union of permission names
	// across all roles assigned to the user.
	ListUserPermissions(ctx context.Context, userID int64) ([]string, error)
}

// RoleRepository persists tenant-scoped roles and their permission grants.
type RoleRepository interface {
	// Create inserts the role and its permission grants atomically, filling
	// the ID and timestamps. Fails with a conflict on a duplicate name
	// within the tenant.
	Create(ctx context.Context, role *Role) error

	// FindByID loads a role with its permission names. Scoped to the tenant.
	FindByID(ctx context.Context, tenantID, roleID int64) (*Role, error)

	// ListByTenant returns the tenant's roles, system roles first, with
	// permission names populated.
	ListByTenant(ctx context.Context, tenantID int64, params pagination.Params) ([]Role, int64, error)

	// Update rewrites the role's name, description, and permission grants.
	Update(ctx context.Context, role *Role) error

	// Delete removes the role. Grants and assignments cascade.
	Delete(ctx context.Context, tenantID, roleID int64) error

	// CountAssignments reports how many users currently hold the role.
	CountAssignments(ctx context.Context, roleID int64) (int64, error)

	// BootstrapTenant seeds the system roles for a new tenant and assigns
	// the Owner role to the founding user, all in one transaction.
	BootstrapTenant(ctx context.Context, tenantID, ownerUserID int64) error
}

// PermissionRepository reads the global permission catalogue.
type PermissionRepository interface {
	// List returns the full catalogue ordered by category then name.
	List(ctx context.Context) ([]Permission, error)

	// MissingNames returns which of the given permission names do not exist
	// in the catalogue.
	MissingNames(ctx context.Context, names []string) ([]string, error)
}

// MemberRepository is the administration view over a tenant's users.
type MemberRepository interface {
	// List returns the tenant's members with their role names.
	List(ctx context.Context, tenantID int64, params pagination.Params) ([]Member, int64, error)

	// Find loads a single member. Scoped to the tenant.
	Find(ctx context.Context, tenantID, userID int64) (*Member, error)

	// UpdateStatus flips a member's status. Returns dberr.ErrNotFound when
	// the user does not belong to the tenant.
	UpdateStatus(ctx context.Context, tenantID, userID int64, status string) error

	// AssignRole grants the role to the user. Idempotent.
	AssignRole(ctx context.Context, tenantID, userID, roleID int64) error

	// UnassignRole removes the role from the user.
	UnassignRole(ctx context.Context, tenantID, userID, roleID int64) error
}
