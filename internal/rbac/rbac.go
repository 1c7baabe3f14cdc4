// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

/*
Package rbac implements tenant-scoped role-based access control.

It owns the role and permission model, resolves a user's effective permission
set, and exposes the management surface for roles, assignments, and tenant
membership administration.

Architecture:

  - Principal: The per-request authenticated identity with a resolved
    permission set, constructed fresh for every request.
  - Roles: Tenant-scoped bundles of permissions. System roles (Owner, Admin,
    Member) are seeded at tenant creation and cannot be edited or deleted.
  - Permissions: A global catalogue of capability names ("tasks.edit"),
    grouped by category and seeded by migration.

A user's effective permissions are the deduplicated union over every role
assigned to them. Checks are O(1) set-membership tests.
*/
package rbac

import (
	"sort"
	"time"
)

// # System Roles

// Built-in role names seeded for every new tenant.
const (
	RoleOwner  = "Owner"
	RoleAdmin  = "Admin"
	RoleMember = "Member"
)

// # Permission Catalogue

// Capability names gating API operations. The catalogue itself is global and
// seeded by migration; these constants exist so route wiring never spells a
// permission as a raw string.
const (
	PermProjectsView   = "projects.view"
	PermProjectsCreate = "projects.create"
	PermProjectsEdit   = "projects.edit"
	PermProjectsDelete = "projects.delete"

	PermTasksView   = "tasks.view"
	PermTasksCreate = "tasks.create"
	PermTasksEdit   = "tasks.edit"
	PermTasksDelete = "tasks.delete"
	PermTasksAssign = "tasks.assign"

	PermTimeView   = "time.view"
	PermTimeLog    = "time.log"
	PermTimeManage = "time.manage"

	PermUsersView   = "users.view"
	PermUsersManage = "users.manage"

	PermRolesManage = "roles.manage"

	PermBillingView   = "billing.view"
	PermBillingManage = "billing.manage"

	PermReportsView = "reports.view"

	PermTenantManage = "tenant.manage"
)

// # Entities

// Role is a tenant-scoped named bundle of permissions.
//
// # Rules
//   - Name is unique within a tenant.
//   - IsSystemRole marks built-in roles; they cannot be renamed, re-permissioned,
//     or deleted through the API.
type Role struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	IsSystemRole bool      `json:"is_system_role"`
	Permissions  []string  `json:"permissions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Permission is a global, tenant-independent capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`     // e.g. "tasks.edit"
	Category    string `json:"category"` // e.g. "tasks"
	Description string `json:"description,omitempty"`
}

// Member is the directory view of a user within a tenant, including the
// names of their assigned roles. It is a read model for administration
// endpoints, not the credential entity (see the auth package for that).
type Member struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Status    string    `json:"status"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// # Principal

// Principal is the authenticated identity attached to a request.
//
// # Lifecycle
//
// A Principal is constructed fresh on every request from the verified access
// token's user ID. It is never persisted and never cached across requests, so
// a role or status change takes effect on the user's very next request.
//
// # Invariant
//
// A principal belongs to exactly one tenant; its permission set is resolved
// only through that tenant's role assignments.
type Principal struct {
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	TenantID   int64  `json:"tenant_id"`
	TenantName string `json:"tenant_name"`

	// permissions is the deduplicated union over all assigned roles.
	permissions map[string]struct{}
}

// NewPrincipal constructs a principal with a preloaded permission set.
func NewPrincipal(userID int64, email, firstName, lastName string, tenantID int64, tenantName string, permissions []string) *Principal {
	set := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		set[p] = struct{}{}
	}

	return &Principal{
		UserID:     userID,
		Email:      email,
		FirstName:  firstName,
		LastName:   lastName,
		TenantID:   tenantID,
		TenantName: tenantName,

		permissions: set,
	}
}

// HasPermission reports whether the principal holds the named capability.
// It is a side-effect-free set lookup, so handlers can compose multiple
// gates cheaply.
func (p *Principal) HasPermission(name string) bool {
	_, ok := p.permissions[name]
	return ok
}

// HasAnyPermission reports whether the principal holds at least one of the
// named capabilities.
func (p *Principal) HasAnyPermission(names ...string) bool {
	for _, name := range names {
		if p.HasPermission(name) {
			return true
		}
	}
	return false
}

// PermissionNames returns the principal's permissions as a sorted slice, for
// JSON presentation (e.g. the /auth/me endpoint).
func (p *Principal) PermissionNames() []string {
	names := make([]string, 0, len(p.permissions))
	for name := range p.permissions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
