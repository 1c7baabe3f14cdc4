// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package rbac_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskora/taskora/internal/rbac"
)

/*
TestPrincipal_HasPermission verifies the O(1) capability check, including
the empty-set case for a user with no roles.
*/
func TestPrincipal_HasPermission(t *testing.T) {
	principal := rbac.NewPrincipal(1, "jane@example.com", "Jane", "Doe", 10, "Acme", []string{
		rbac.PermTasksView,
		rbac.PermTasksEdit,
	})

	assert.True(t, principal.HasPermission(rbac.PermTasksView))
	assert.True(t, principal.HasPermission(rbac.PermTasksEdit))
	assert.False(t, principal.HasPermission(rbac.PermTasksDelete))
	assert.False(t, principal.HasPermission(rbac.PermRolesManage))

	empty := rbac.NewPrincipal(2, "bob@example.com", "Bob", "Ray", 10, "Acme", nil)
	assert.False(t, empty.HasPermission(rbac.PermTasksView))
}

/*
TestPrincipal_HasAnyPermission verifies the disjunctive gate used by
endpoints reachable through more than one capability.
*/
func TestPrincipal_HasAnyPermission(t *testing.T) {
	principal := rbac.NewPrincipal(1, "jane@example.com", "Jane", "Doe", 10, "Acme", []string{
		rbac.PermUsersView,
	})

	assert.True(t, principal.HasAnyPermission(rbac.PermUsersView, rbac.PermUsersManage))
	assert.True(t, principal.HasAnyPermission(rbac.PermUsersManage, rbac.PermUsersView))
	assert.False(t, principal.HasAnyPermission(rbac.PermUsersManage, rbac.PermRolesManage))
	assert.False(t, principal.HasAnyPermission())
}

/*
TestPrincipal_PermissionNames verifies deduplication and the sorted output
used by presentation layers.
*/
func TestPrincipal_PermissionNames(t *testing.T) {
	principal := rbac.NewPrincipal(1, "jane@example.com", "Jane", "Doe", 10, "Acme", []string{
		rbac.PermTasksView,
		rbac.PermProjectsView,
		rbac.PermTasksView, // duplicate across roles
	})

	assert.Equal(t, []string{rbac.PermProjectsView, rbac.PermTasksView}, principal.PermissionNames())
}
