// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package rbac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskora/taskora/internal/platform/apperr"
	"github.com/taskora/taskora/internal/platform/constants"
	"github.com/taskora/taskora/internal/platform/dberr"
	"github.com/taskora/taskora/internal/rbac"
	"github.com/taskora/taskora/pkg/pagination"
)

// ── Fakes ────────────────────────────────────────────────────────────────────

type fakePrincipalRepo struct {
	record      *rbac.PrincipalRecord
	permissions []string
}

func (f *fakePrincipalRepo) FindPrincipalRecord(_ context.Context, userID int64) (*rbac.PrincipalRecord, error) {
	if f.record == nil || f.record.UserID != userID {
		return nil, dberr.ErrNotFound
	}
	return f.record, nil
}

func (f *fakePrincipalRepo) ListUserPermissions(_ context.Context, _ int64) ([]string, error) {
	return f.permissions, nil
}

type fakeRoleRepo struct {
	roles       map[int64]*rbac.Role
	assignments map[int64]int64
	bootstraps  int
}

func (f *fakeRoleRepo) Create(_ context.Context, role *rbac.Role) error {
	role.ID = int64(len(f.roles) + 1)
	f.roles[role.ID] = role
	return nil
}

func (f *fakeRoleRepo) FindByID(_ context.Context, tenantID, roleID int64) (*rbac.Role, error) {
	role, ok := f.roles[roleID]
	if !ok || role.TenantID != tenantID {
		return nil, apperr.NotFound("Role")
	}
	return role, nil
}

func (f *fakeRoleRepo) ListByTenant(_ context.Context, tenantID int64, _ pagination.Params) ([]rbac.Role, int64, error) {
	var out []rbac.Role
	for _, role := range f.roles {
		if role.TenantID == tenantID {
			out = append(out, *role)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeRoleRepo) Update(_ context.Context, role *rbac.Role) error {
	f.roles[role.ID] = role
	return nil
}

func (f *fakeRoleRepo) Delete(_ context.Context, _, roleID int64) error {
	delete(f.roles, roleID)
	return nil
}

func (f *fakeRoleRepo) CountAssignments(_ context.Context, roleID int64) (int64, error) {
	return f.assignments[roleID], nil
}

func (f *fakeRoleRepo) BootstrapTenant(_ context.Context, _, _ int64) error {
	f.bootstraps++
	return nil
}

type fakePermissionRepo struct {
	known map[string]bool
}

func (f *fakePermissionRepo) List(_ context.Context) ([]rbac.Permission, error) {
	return nil, nil
}

func (f *fakePermissionRepo) MissingNames(_ context.Context, names []string) ([]string, error) {
	var missing []string
	for _, name := range names {
		if !f.known[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

type fakeMemberRepo struct {
	statusUpdates map[int64]string
	unassigned    bool
}

func (f *fakeMemberRepo) List(_ context.Context, _ int64, _ pagination.Params) ([]rbac.Member, int64, error) {
	return nil, 0, nil
}

func (f *fakeMemberRepo) Find(_ context.Context, _, _ int64) (*rbac.Member, error) {
	return nil, apperr.NotFound("User")
}

func (f *fakeMemberRepo) UpdateStatus(_ context.Context, _, userID int64, status string) error {
	f.statusUpdates[userID] = status
	return nil
}

func (f *fakeMemberRepo) AssignRole(_ context.Context, _, _, _ int64) error {
	return nil
}

func (f *fakeMemberRepo) UnassignRole(_ context.Context, _, _, _ int64) error {
	f.unassigned = true
	return nil
}

type fakeSessionRevoker struct {
	revoked []int64
}

func (f *fakeSessionRevoker) RevokeAll(_ context.Context, userID int64) error {
	f.revoked = append(f.revoked, userID)
	return nil
}

type serviceFixture struct {
	service    *rbac.Service
	principals *fakePrincipalRepo
	roles      *fakeRoleRepo
	members    *fakeMemberRepo
	sessions   *fakeSessionRevoker
}

func newServiceFixture() *serviceFixture {
	principals := &fakePrincipalRepo{}
	roles := &fakeRoleRepo{roles: map[int64]*rbac.Role{}, assignments: map[int64]int64{}}
	permissions := &fakePermissionRepo{known: map[string]bool{
		rbac.PermTasksView: true,
		rbac.PermTasksEdit: true,
	}}
	members := &fakeMemberRepo{statusUpdates: map[int64]string{}}
	sessions := &fakeSessionRevoker{}

	return &serviceFixture{
		service:    rbac.NewService(principals, roles, permissions, members, sessions),
		principals: principals,
		roles:      roles,
		members:    members,
		sessions:   sessions,
	}
}

func activeRecord(userID int64) *rbac.PrincipalRecord {
	return &rbac.PrincipalRecord{
		UserID:       userID,
		Email:        "jane@example.com",
		FirstName:    "Jane",
		LastName:     "Doe",
		UserStatus:   constants.UserStatusActive,
		TenantID:     10,
		TenantName:   "Acme",
		TenantStatus: constants.TenantStatusActive,
	}
}

// ── Principal Resolution ─────────────────────────────────────────────────────

/*
TestService_ResolvePrincipal_Success verifies a healthy user resolves to a
principal carrying the permission union from their roles.
*/
func TestService_ResolvePrincipal_Success(t *testing.T) {
	fx := newServiceFixture()
	fx.principals.record = activeRecord(1)
	fx.principals.permissions = []string{rbac.PermTasksView, rbac.PermTasksEdit}

	principal, err := fx.service.ResolvePrincipal(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), principal.UserID)
	assert.Equal(t, int64(10), principal.TenantID)
	assert.Equal(t, "Acme", principal.TenantName)
	assert.True(t, principal.HasPermission(rbac.PermTasksView))
	assert.False(t, principal.HasPermission(rbac.PermRolesManage))
}

/*
TestService_ResolvePrincipal_StatusMapping verifies missing users, inactive
users, and non-active tenants map to the documented error contract. A missing
and a deactivated user must be indistinguishable to the caller.
*/
func TestService_ResolvePrincipal_StatusMapping(t *testing.T) {
	tests := []struct {
		name         string
		record       *rbac.PrincipalRecord
		wantCode     string
		wantMessage  string
		wantHTTPCode int
	}{
		{
			name:         "unknown_user",
			record:       nil,
			wantCode:     "UNAUTHORIZED",
			wantMessage:  "User not found or inactive",
			wantHTTPCode: 401,
		},
		{
			name: "inactive_user",
			record: func() *rbac.PrincipalRecord {
				r := activeRecord(1)
				r.UserStatus = constants.UserStatusInactive
				return r
			}(),
			wantCode:     "UNAUTHORIZED",
			wantMessage:  "User not found or inactive",
			wantHTTPCode: 401,
		},
		{
			name: "suspended_tenant",
			record: func() *rbac.PrincipalRecord {
				r := activeRecord(1)
				r.TenantStatus = constants.TenantStatusSuspended
				return r
			}(),
			wantCode:     "FORBIDDEN",
			wantMessage:  "Organization is suspended",
			wantHTTPCode: 403,
		},
		{
			name: "cancelled_tenant",
			record: func() *rbac.PrincipalRecord {
				r := activeRecord(1)
				r.TenantStatus = constants.TenantStatusCancelled
				return r
			}(),
			wantCode:     "FORBIDDEN",
			wantMessage:  "Organization is suspended",
			wantHTTPCode: 403,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newServiceFixture()
			fx.principals.record = tt.record

			_, err := fx.service.ResolvePrincipal(context.Background(), 1)
			require.Error(t, err)

			appErr := apperr.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantMessage, appErr.Message)
			assert.Equal(t, tt.wantHTTPCode, appErr.HTTPStatus)
		})
	}
}

// ── Role Management ──────────────────────────────────────────────────────────

/*
TestService_CreateRole_UnknownPermissions verifies grants are validated
against the catalogue before anything is written.
*/
func TestService_CreateRole_UnknownPermissions(t *testing.T) {
	fx := newServiceFixture()

	_, err := fx.service.CreateRole(context.Background(), 10, rbac.RoleInput{
		Name:        "Reviewer",
		Permissions: []string{rbac.PermTasksView, "tasks.bogus"},
	})
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Contains(t, appErr.Message, "tasks.bogus")
	assert.Empty(t, fx.roles.roles)
}

/*
TestService_CreateRole_TrimsInput verifies name and description whitespace
is normalized before persistence.
*/
func TestService_CreateRole_TrimsInput(t *testing.T) {
	fx := newServiceFixture()

	role, err := fx.service.CreateRole(context.Background(), 10, rbac.RoleInput{
		Name:        "  Reviewer  ",
		Description: " Reviews tasks ",
		Permissions: []string{rbac.PermTasksView},
	})
	require.NoError(t, err)

	assert.Equal(t, "Reviewer", role.Name)
	assert.Equal(t, "Reviews tasks", role.Description)
	assert.Equal(t, int64(10), role.TenantID)
	assert.False(t, role.IsSystemRole)
}

/*
TestService_UpdateRole_SystemRoleImmutable verifies built-in roles reject
edits with a 422.
*/
func TestService_UpdateRole_SystemRoleImmutable(t *testing.T) {
	fx := newServiceFixture()
	fx.roles.roles[1] = &rbac.Role{ID: 1, TenantID: 10, Name: rbac.RoleAdmin, IsSystemRole: true}

	_, err := fx.service.UpdateRole(context.Background(), 10, 1, rbac.RoleInput{Name: "Superadmin"})
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 422, appErr.HTTPStatus)
	assert.Equal(t, "System roles cannot be modified", appErr.Message)
}

/*
TestService_DeleteRole verifies the deletion guards: system roles are
immortal, assigned roles conflict, and unassigned custom roles delete.
*/
func TestService_DeleteRole(t *testing.T) {
	t.Run("system_role", func(t *testing.T) {
		fx := newServiceFixture()
		fx.roles.roles[1] = &rbac.Role{ID: 1, TenantID: 10, Name: rbac.RoleOwner, IsSystemRole: true}

		err := fx.service.DeleteRole(context.Background(), 10, 1)
		require.Error(t, err)
		assert.Equal(t, "System roles cannot be deleted", apperr.As(err).Message)
	})

	t.Run("still_assigned", func(t *testing.T) {
		fx := newServiceFixture()
		fx.roles.roles[2] = &rbac.Role{ID: 2, TenantID: 10, Name: "Reviewer"}
		fx.roles.assignments[2] = 3

		err := fx.service.DeleteRole(context.Background(), 10, 2)
		require.Error(t, err)

		appErr := apperr.As(err)
		require.NotNil(t, appErr)
		assert.Equal(t, "CONFLICT", appErr.Code)
		assert.Equal(t, "Role is still assigned to users", appErr.Message)
	})

	t.Run("unassigned_custom_role", func(t *testing.T) {
		fx := newServiceFixture()
		fx.roles.roles[2] = &rbac.Role{ID: 2, TenantID: 10, Name: "Reviewer"}

		require.NoError(t, fx.service.DeleteRole(context.Background(), 10, 2))
		assert.NotContains(t, fx.roles.roles, int64(2))
	})

	t.Run("wrong_tenant", func(t *testing.T) {
		fx := newServiceFixture()
		fx.roles.roles[2] = &rbac.Role{ID: 2, TenantID: 99, Name: "Reviewer"}

		err := fx.service.DeleteRole(context.Background(), 10, 2)
		require.Error(t, err)
		assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
	})
}

// ── Member Administration ────────────────────────────────────────────────────

/*
TestService_SetMemberStatus verifies the status enum check, the
self-deactivation guard, and that deactivation revokes every session the
user holds.
*/
func TestService_SetMemberStatus(t *testing.T) {
	actor := rbac.NewPrincipal(1, "admin@example.com", "Ada", "Min", 10, "Acme", nil)

	t.Run("invalid_status", func(t *testing.T) {
		fx := newServiceFixture()

		err := fx.service.SetMemberStatus(context.Background(), actor, 2, "banned")
		require.Error(t, err)
		assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
	})

	t.Run("self_deactivation", func(t *testing.T) {
		fx := newServiceFixture()

		err := fx.service.SetMemberStatus(context.Background(), actor, 1, constants.UserStatusInactive)
		require.Error(t, err)
		assert.Equal(t, "You cannot deactivate your own account", apperr.As(err).Message)
		assert.Empty(t, fx.members.statusUpdates)
	})

	t.Run("deactivation_revokes_sessions", func(t *testing.T) {
		fx := newServiceFixture()

		require.NoError(t, fx.service.SetMemberStatus(context.Background(), actor, 2, constants.UserStatusInactive))
		assert.Equal(t, constants.UserStatusInactive, fx.members.statusUpdates[2])
		assert.Equal(t, []int64{2}, fx.sessions.revoked)
	})

	t.Run("reactivation_keeps_sessions", func(t *testing.T) {
		fx := newServiceFixture()

		require.NoError(t, fx.service.SetMemberStatus(context.Background(), actor, 2, constants.UserStatusActive))
		assert.Empty(t, fx.sessions.revoked)
	})
}

/*
TestService_UnassignRole_LastOwner verifies the Owner role cannot be removed
from the only user holding it, but can once a second Owner exists.
*/
func TestService_UnassignRole_LastOwner(t *testing.T) {
	fx := newServiceFixture()
	fx.roles.roles[1] = &rbac.Role{ID: 1, TenantID: 10, Name: rbac.RoleOwner, IsSystemRole: true}
	fx.roles.assignments[1] = 1

	err := fx.service.UnassignRole(context.Background(), 10, 5, 1)
	require.Error(t, err)
	assert.Equal(t, "A tenant must keep at least one Owner", apperr.As(err).Message)
	assert.False(t, fx.members.unassigned)

	fx.roles.assignments[1] = 2
	require.NoError(t, fx.service.UnassignRole(context.Background(), 10, 5, 1))
	assert.True(t, fx.members.unassigned)
}
