// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/taskora/taskora/internal/platform/apperr"
	"github.com/taskora/taskora/internal/platform/constants"
	"github.com/taskora/taskora/internal/platform/dberr"
	"github.com/taskora/taskora/pkg/pagination"
)

// SessionRevoker terminates every active session a user holds. Deactivating
// a member must cut off their refresh tokens immediately, not at access-token
// expiry; the auth package provides the implementation.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID int64) error
}

// Service implements authorization use cases: principal resolution, role
// management, and tenant member administration.
//
// # Review Process
//
// This service decides who may do what. Any change to principal resolution
// or permission math must be reviewed by the security team.
type Service struct {
	principalRepository  PrincipalRepository
	roleRepository       RoleRepository
	permissionRepository PermissionRepository
	memberRepository     MemberRepository
	sessionRevoker       SessionRevoker
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	principalRepo PrincipalRepository,
	roleRepo RoleRepository,
	permissionRepo PermissionRepository,
	memberRepo MemberRepository,
	sessionRevoker SessionRevoker,
) *Service {
	return &Service{
		principalRepository:  principalRepo,
		roleRepository:       roleRepo,
		permissionRepository: permissionRepo,
		memberRepository:     memberRepo,
		sessionRevoker:       sessionRevoker,
	}
}

// ResolvePrincipal builds the per-request principal for a verified token's
// user ID. It is called on every authenticated request, so status and role
// changes take effect immediately.
//
// # Returns
//   - [apperr.Unauthorized] "User not found or inactive" when the user is
//     missing or not active.
//   - [apperr.Forbidden] "Organization is suspended" when the user's tenant
//     is suspended or cancelled.
func (service *Service) ResolvePrincipal(ctx context.Context, userID int64) (*Principal, error) {
	// ── 1. Identity and Status ────────────────────────────────────────────

	record, err := service.principalRepository.FindPrincipalRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, apperr.Unauthorized("User not found or inactive")
		}
		return nil, fmt.Errorf("rbac_service_principal_lookup_failed: %w", err)
	}

	// A deactivated user is indistinguishable from a missing one on purpose.
	if record.UserStatus != constants.UserStatusActive {
		return nil, apperr.Unauthorized("User not found or inactive")
	}

	if record.TenantStatus != constants.TenantStatusActive {
		return nil, apperr.Forbidden("Organization is suspended")
	}

	// ── 2. Permission Union ───────────────────────────────────────────────

	permissions, err := service.principalRepository.ListUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac_service_permission_union_failed: %w", err)
	}

	return NewPrincipal(
		record.UserID,
		record.Email,
		record.FirstName,
		record.LastName,
		record.TenantID,
		record.TenantName,
		permissions,
	), nil
}

// BootstrapTenant seeds the system roles for a freshly created tenant and
// makes the founding user its Owner. Called exactly once, at registration.
func (service *Service) BootstrapTenant(ctx context.Context, tenantID, ownerUserID int64) error {
	if err := service.roleRepository.BootstrapTenant(ctx, tenantID, ownerUserID); err != nil {
		return fmt.Errorf("rbac_service_bootstrap_failed: %w", err)
	}
	return nil
}

// ── Roles ────────────────────────────────────────────────────────────────────

// RoleInput holds the data for creating or updating a custom role.
type RoleInput struct {
	Name        string
	Description string
	Permissions []string
}

// CreateRole adds a custom role to the tenant.
//
// # Business Rules
//   - Role names are unique within a tenant.
//   - Every granted permission must exist in the catalogue.
//   - Custom roles are never system roles.
func (service *Service) CreateRole(ctx context.Context, tenantID int64, input RoleInput) (*Role, error) {
	if err := service.checkPermissionsExist(ctx, input.Permissions); err != nil {
		return nil, err
	}

	role := &Role{
		TenantID:    tenantID,
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Permissions: input.Permissions,
	}

	if err := service.roleRepository.Create(ctx, role); err != nil {
		return nil, err
	}

	return role, nil
}

// GetRole returns a single role with its permissions, scoped to the tenant.
func (service *Service) GetRole(ctx context.Context, tenantID, roleID int64) (*Role, error) {
	return service.roleRepository.FindByID(ctx, tenantID, roleID)
}

// ListRoles returns the tenant's roles, system roles first.
func (service *Service) ListRoles(ctx context.Context, tenantID int64, params pagination.Params) ([]Role, int64, error) {
	return service.roleRepository.ListByTenant(ctx, tenantID, params)
}

// UpdateRole rewrites a custom role's name, description, and grants.
//
// # Business Rules
//   - System roles are immutable; attempts return 422.
func (service *Service) UpdateRole(ctx context.Context, tenantID, roleID int64, input RoleInput) (*Role, error) {
	role, err := service.roleRepository.FindByID(ctx, tenantID, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystemRole {
		return nil, apperr.Unprocessable("System roles cannot be modified")
	}

	if err := service.checkPermissionsExist(ctx, input.Permissions); err != nil {
		return nil, err
	}

	role.Name = strings.TrimSpace(input.Name)
	role.Description = strings.TrimSpace(input.Description)
	role.Permissions = input.Permissions

	if err := service.roleRepository.Update(ctx, role); err != nil {
		return nil, err
	}

	return role, nil
}

// DeleteRole removes a custom role.
//
// # Business Rules
//   - System roles cannot be deleted.
//   - A role still assigned to users cannot be deleted; reassign first.
func (service *Service) DeleteRole(ctx context.Context, tenantID, roleID int64) error {
	role, err := service.roleRepository.FindByID(ctx, tenantID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return apperr.Unprocessable("System roles cannot be deleted")
	}

	assigned, err := service.roleRepository.CountAssignments(ctx, roleID)
	if err != nil {
		return fmt.Errorf("rbac_service_count_assignments_failed: %w", err)
	}
	if assigned > 0 {
		return apperr.Conflict("Role is still assigned to users")
	}

	return service.roleRepository.Delete(ctx, tenantID, roleID)
}

// ListPermissions returns the global catalogue.
func (service *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return service.permissionRepository.List(ctx)
}

// checkPermissionsExist validates every name against the catalogue and
// reports the unknown ones in a single validation error.
func (service *Service) checkPermissionsExist(ctx context.Context, names []string) error {
	missing, err := service.permissionRepository.MissingNames(ctx, names)
	if err != nil {
		return fmt.Errorf("rbac_service_permission_check_failed: %w", err)
	}
	if len(missing) > 0 {
		return apperr.ValidationError("Unknown permissions: " + strings.Join(missing, ", "))
	}
	return nil
}

// ── Members ──────────────────────────────────────────────────────────────────

// ListMembers returns the tenant's users with their role names.
func (service *Service) ListMembers(ctx context.Context, tenantID int64, params pagination.Params) ([]Member, int64, error) {
	return service.memberRepository.List(ctx, tenantID, params)
}

// GetMember returns a single member, scoped to the tenant.
func (service *Service) GetMember(ctx context.Context, tenantID, userID int64) (*Member, error) {
	return service.memberRepository.Find(ctx, tenantID, userID)
}

// SetMemberStatus activates or deactivates a member.
//
// # Business Rules
//   - Admins cannot deactivate themselves; a tenant must keep at least one
//     working administrator.
//   - Deactivation revokes every session the user holds, so their refresh
//     tokens die with the account.
func (service *Service) SetMemberStatus(ctx context.Context, actor *Principal, userID int64, status string) error {
	if status != constants.UserStatusActive && status != constants.UserStatusInactive {
		return apperr.ValidationError("Status must be 'active' or 'inactive'")
	}
	if userID == actor.UserID && status == constants.UserStatusInactive {
		return apperr.Unprocessable("You cannot deactivate your own account")
	}

	if err := service.memberRepository.UpdateStatus(ctx, actor.TenantID, userID, status); err != nil {
		return err
	}

	if status == constants.UserStatusInactive {
		if err := service.sessionRevoker.RevokeAll(ctx, userID); err != nil {
			return fmt.Errorf("rbac_service_revoke_sessions_failed: %w", err)
		}
	}

	return nil
}

// AssignRole grants a role to a member of the same tenant.
func (service *Service) AssignRole(ctx context.Context, tenantID, userID, roleID int64) error {
	return service.memberRepository.AssignRole(ctx, tenantID, userID, roleID)
}

// UnassignRole removes a role from a member.
//
// # Business Rules
//   - The Owner role cannot be removed from the last user holding it.
func (service *Service) UnassignRole(ctx context.Context, tenantID, userID, roleID int64) error {
	role, err := service.roleRepository.FindByID(ctx, tenantID, roleID)
	if err != nil {
		return err
	}

	if role.IsSystemRole && role.Name == RoleOwner {
		holders, err := service.roleRepository.CountAssignments(ctx, roleID)
		if err != nil {
			return fmt.Errorf("rbac_service_count_owners_failed: %w", err)
		}
		if holders <= 1 {
			return apperr.Unprocessable("A tenant must keep at least one Owner")
		}
	}

	return service.memberRepository.UnassignRole(ctx, tenantID, userID, roleID)
}
