// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

// PostgreSQL implementations of the rbac repositories.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskora/taskora/internal/platform/apperr"
	"github.com/taskora/taskora/internal/platform/dberr"
	"github.com/taskora/taskora/pkg/pagination"
)

// ── Principal Repository ─────────────────────────────────────────────────────

// PostgresPrincipalRepository implements PrincipalRepository using pgx.
type PostgresPrincipalRepository struct {
	pool *pgxpool.Pool
}

// NewPrincipalRepository creates a new PostgreSQL implementation of PrincipalRepository.
func NewPrincipalRepository(pool *pgxpool.Pool) *PostgresPrincipalRepository {
	return &PostgresPrincipalRepository{pool: pool}
}

// FindPrincipalRecord loads the user joined with their tenant, regardless of
// either status. The service layer decides what each status means.
func (repository *PostgresPrincipalRepository) FindPrincipalRecord(ctx context.Context, userID int64) (*PrincipalRecord, error) {
	const query = `
		SELECT u.id, u.email, u.first_name, u.last_name, u.status,
		       t.id, t.name, t.status
		FROM users u
		JOIN tenants t ON t.id = u.tenant_id
		WHERE u.id = $1`

	record := &PrincipalRecord{}
	err := repository.pool.QueryRow(ctx, query, userID).Scan(
		&record.UserID,
		&record.Email,
		&record.FirstName,
		&record.LastName,
		&record.UserStatus,
		&record.TenantID,
		&record.TenantName,
		&record.TenantStatus,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dberr.ErrNotFound
		}
		return nil, fmt.Errorf("postgres_principal_repo_find_failed: %w", err)
	}

	return record, nil
}

// ListUserPermissions returns the union of permission names over every role
// assigned to the user. DISTINCT handles overlapping roles.
func (repository *PostgresPrincipalRepository) ListUserPermissions(ctx context.Context, userID int64) ([]string, error) {
	const query = `
		SELECT DISTINCT p.name
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY p.name`

	rows, err := repository.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_principal_repo_list_permissions_failed: %w", err)
	}
	defer rows.Close()

	permissions := make([]string, 0, 16)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres_principal_repo_scan_permission_failed: %w", err)
		}
		permissions = append(permissions, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_principal_repo_iterate_permissions_failed: %w", err)
	}

	return permissions, nil
}

// ── Role Repository ──────────────────────────────────────────────────────────

// PostgresRoleRepository implements the RoleRepository interface using pgx.
type PostgresRoleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository creates a new PostgreSQL implementation of RoleRepository.
func NewRoleRepository(pool *pgxpool.Pool) *PostgresRoleRepository {
	return &PostgresRoleRepository{pool: pool}
}

// Create inserts the role and its permission grants in one transaction.
func (repository *PostgresRoleRepository) Create(ctx context.Context, role *Role) error {
	tx, err := repository.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres_role_repo_begin_failed: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertRole = `
		INSERT INTO roles (tenant_id, name, description, is_system_role, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $4)
		RETURNING id`

	now := time.Now()
	err = tx.QueryRow(ctx, insertRole, role.TenantID, role.Name, role.Description, now).Scan(&role.ID)
	if err != nil {
		return dberr.Wrap(err, "A role with this name already exists")
	}
	role.CreatedAt = now
	role.UpdatedAt = now

	if err := insertGrants(ctx, tx, role.ID, role.Permissions); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres_role_repo_commit_failed: %w", err)
	}

	return nil
}

// FindByID loads a role with its permission names, scoped to the tenant.
func (repository *PostgresRoleRepository) FindByID(ctx context.Context, tenantID, roleID int64) (*Role, error) {
	const query = `
		SELECT id, tenant_id, name, description, is_system_role, created_at, updated_at
		FROM roles
		WHERE id = $1 AND tenant_id = $2`

	role := &Role{}
	err := repository.pool.QueryRow(ctx, query, roleID, tenantID).Scan(
		&role.ID,
		&role.TenantID,
		&role.Name,
		&role.Description,
		&role.IsSystemRole,
		&role.CreatedAt,
		&role.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Role")
		}
		return nil, fmt.Errorf("postgres_role_repo_find_failed: %w", err)
	}

	permissions, err := repository.rolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = permissions

	return role, nil
}

// ListByTenant returns the tenant's roles together with their permission
// names, system roles first.
func (repository *PostgresRoleRepository) ListByTenant(ctx context.Context, tenantID int64, params pagination.Params) ([]Role, int64, error) {
	const countQuery = "SELECT COUNT(*) FROM roles WHERE tenant_id = $1"

	var total int64
	if err := repository.pool.QueryRow(ctx, countQuery, tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres_role_repo_count_failed: %w", err)
	}

	const query = `
		SELECT r.id, r.tenant_id, r.name, r.description, r.is_system_role,
		       r.created_at, r.updated_at,
		       COALESCE(ARRAY_AGG(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE r.tenant_id = $1
		GROUP BY r.id
		ORDER BY r.is_system_role DESC, r.name
		LIMIT $2 OFFSET $3`

	rows, err := repository.pool.Query(ctx, query, tenantID, params.Limit, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_role_repo_list_failed: %w", err)
	}
	defer rows.Close()

	roles := make([]Role, 0, params.Limit)
	for rows.Next() {
		var role Role
		err := rows.Scan(
			&role.ID,
			&role.TenantID,
			&role.Name,
			&role.Description,
			&role.IsSystemRole,
			&role.CreatedAt,
			&role.UpdatedAt,
			&role.Permissions,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres_role_repo_scan_failed: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres_role_repo_iterate_failed: %w", err)
	}

	return roles, total, nil
}

// Update rewrites the role row and replaces its permission grants.
func (repository *PostgresRoleRepository) Update(ctx context.Context, role *Role) error {
	tx, err := repository.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres_role_repo_begin_failed: %w", err)
	}
	defer tx.Rollback(ctx)

	const updateRole = `
		UPDATE roles
		SET name = $3, description = $4, updated_at = $5
		WHERE id = $1 AND tenant_id = $2`

	role.UpdatedAt = time.Now()
	tag, err := tx.Exec(ctx, updateRole, role.ID, role.TenantID, role.Name, role.Description, role.UpdatedAt)
	if err != nil {
		return dberr.Wrap(err, "A role with this name already exists")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Role")
	}

	if _, err := tx.Exec(ctx, "DELETE FROM role_permissions WHERE role_id = $1", role.ID); err != nil {
		return fmt.Errorf("postgres_role_repo_clear_grants_failed: %w", err)
	}

	if err := insertGrants(ctx, tx, role.ID, role.Permissions); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres_role_repo_commit_failed: %w", err)
	}

	return nil
}

// Delete removes the role. role_permissions and user_roles rows cascade.
func (repository *PostgresRoleRepository) Delete(ctx context.Context, tenantID, roleID int64) error {
	const query = "DELETE FROM roles WHERE id = $1 AND tenant_id = $2"

	tag, err := repository.pool.Exec(ctx, query, roleID, tenantID)
	if err != nil {
		return fmt.Errorf("postgres_role_repo_delete_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Role")
	}

	return nil
}

// CountAssignments reports how many users currently hold the role.
func (repository *PostgresRoleRepository) CountAssignments(ctx context.Context, roleID int64) (int64, error) {
	const query = "SELECT COUNT(*) FROM user_roles WHERE role_id = $1"

	var count int64
	if err := repository.pool.QueryRow(ctx, query, roleID).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres_role_repo_count_assignments_failed: %w", err)
	}

	return count, nil
}

// BootstrapTenant seeds the three system roles for a new tenant, grants each
// its permission slice of the catalogue, and assigns Owner to the founding
// user. Everything happens in one transaction so a new tenant is never left
// half-seeded.
func (repository *PostgresRoleRepository) BootstrapTenant(ctx context.Context, tenantID, ownerUserID int64) error {
	tx, err := repository.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres_role_repo_begin_failed: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	seedRole := func(name, description string) (int64, error) {
		const query = `
			INSERT INTO roles (tenant_id, name, description, is_system_role, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, $4, $4)
			RETURNING id`

		var id int64
		if err := tx.QueryRow(ctx, query, tenantID, name, description, now).Scan(&id); err != nil {
			return 0, fmt.Errorf("postgres_role_repo_seed_role_failed: %w", err)
		}
		return id, nil
	}

	ownerID, err := seedRole(RoleOwner, "Full access to everything, including billing and tenant settings")
	if err != nil {
		return err
	}
	adminID, err := seedRole(RoleAdmin, "Manages projects, tasks, and people; no billing or tenant settings")
	if err != nil {
		return err
	}
	memberID, err := seedRole(RoleMember, "Works on assigned projects and logs time")
	if err != nil {
		return err
	}

	// Owner gets the entire catalogue.
	const grantAll = `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions`
	if _, err := tx.Exec(ctx, grantAll, ownerID); err != nil {
		return fmt.Errorf("postgres_role_repo_grant_owner_failed: %w", err)
	}

	// Admin gets everything except billing and tenant management.
	const grantAdmin = `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions
		WHERE category NOT IN ('billing', 'tenant')`
	if _, err := tx.Exec(ctx, grantAdmin, adminID); err != nil {
		return fmt.Errorf("postgres_role_repo_grant_admin_failed: %w", err)
	}

	// Member gets the day-to-day working set.
	const grantMember = `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions
		WHERE name = ANY($2)`
	memberPermissions := []string{
		PermProjectsView,
		PermTasksView, PermTasksCreate, PermTasksEdit,
		PermTimeView, PermTimeLog,
		PermUsersView,
		PermReportsView,
	}
	if _, err := tx.Exec(ctx, grantMember, memberID, memberPermissions); err != nil {
		return fmt.Errorf("postgres_role_repo_grant_member_failed: %w", err)
	}

	const assignOwner = `
		INSERT INTO user_roles (user_id, role_id, created_at)
		VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, assignOwner, ownerUserID, ownerID, now); err != nil {
		return fmt.Errorf("postgres_role_repo_assign_owner_failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres_role_repo_commit_failed: %w", err)
	}

	return nil
}

// rolePermissions loads the permission names granted to a single role.
func (repository *PostgresRoleRepository) rolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	const query = `
		SELECT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name`

	rows, err := repository.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("postgres_role_repo_permissions_failed: %w", err)
	}
	defer rows.Close()

	permissions := make([]string, 0, 8)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres_role_repo_scan_permission_failed: %w", err)
		}
		permissions = append(permissions, name)
	}

	return permissions, rows.Err()
}

// insertGrants links a role to permissions by name inside an open transaction.
func insertGrants(ctx context.Context, tx pgx.Tx, roleID int64, permissions []string) error {
	if len(permissions) == 0 {
		return nil
	}

	const query = `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions WHERE name = ANY($2)`

	if _, err := tx.Exec(ctx, query, roleID, permissions); err != nil {
		return fmt.Errorf("postgres_role_repo_insert_grants_failed: %w", err)
	}

	return nil
}

// ── Permission Repository ────────────────────────────────────────────────────

// PostgresPermissionRepository implements PermissionRepository using pgx.
type PostgresPermissionRepository struct {
	pool *pgxpool.Pool
}

// NewPermissionRepository creates a new PostgreSQL implementation of PermissionRepository.
func NewPermissionRepository(pool *pgxpool.Pool) *PostgresPermissionRepository {
	return &PostgresPermissionRepository{pool: pool}
}

// List returns the full catalogue ordered by category then name.
func (repository *PostgresPermissionRepository) List(ctx context.Context) ([]Permission, error) {
	const query = `
		SELECT id, name, category, description
		FROM permissions
		ORDER BY category, name`

	rows, err := repository.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres_permission_repo_list_failed: %w", err)
	}
	defer rows.Close()

	permissions := make([]Permission, 0, 32)
	for rows.Next() {
		var permission Permission
		if err := rows.Scan(&permission.ID, &permission.Name, &permission.Category, &permission.Description); err != nil {
			return nil, fmt.Errorf("postgres_permission_repo_scan_failed: %w", err)
		}
		permissions = append(permissions, permission)
	}

	return permissions, rows.Err()
}

// MissingNames returns which of the given names are absent from the catalogue.
func (repository *PostgresPermissionRepository) MissingNames(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	const query = `
		SELECT candidate
		FROM UNNEST($1::text[]) AS candidate
		WHERE candidate NOT IN (SELECT name FROM permissions)`

	rows, err := repository.pool.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("postgres_permission_repo_missing_failed: %w", err)
	}
	defer rows.Close()

	missing := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres_permission_repo_scan_failed: %w", err)
		}
		missing = append(missing, name)
	}

	return missing, rows.Err()
}

// ── Member Repository ────────────────────────────────────────────────────────

// PostgresMemberRepository implements the MemberRepository interface using pgx.
type PostgresMemberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository creates a new PostgreSQL implementation of MemberRepository.
func NewMemberRepository(pool *pgxpool.Pool) *PostgresMemberRepository {
	return &PostgresMemberRepository{pool: pool}
}

// List returns the tenant's members with their role names, newest first.
func (repository *PostgresMemberRepository) List(ctx context.Context, tenantID int64, params pagination.Params) ([]Member, int64, error) {
	const countQuery = "SELECT COUNT(*) FROM users WHERE tenant_id = $1"

	var total int64
	if err := repository.pool.QueryRow(ctx, countQuery, tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres_member_repo_count_failed: %w", err)
	}

	const query = `
		SELECT u.id, u.email, u.first_name, u.last_name, u.status, u.created_at,
		       COALESCE(ARRAY_AGG(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		WHERE u.tenant_id = $1
		GROUP BY u.id
		ORDER BY u.created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := repository.pool.Query(ctx, query, tenantID, params.Limit, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_member_repo_list_failed: %w", err)
	}
	defer rows.Close()

	members := make([]Member, 0, params.Limit)
	for rows.Next() {
		var member Member
		err := rows.Scan(
			&member.ID,
			&member.Email,
			&member.FirstName,
			&member.LastName,
			&member.Status,
			&member.CreatedAt,
			&member.Roles,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres_member_repo_scan_failed: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres_member_repo_iterate_failed: %w", err)
	}

	return members, total, nil
}

// Find loads a single member with their role names, scoped to the tenant.
func (repository *PostgresMemberRepository) Find(ctx context.Context, tenantID, userID int64) (*Member, error) {
	const query = `
		SELECT u.id, u.email, u.first_name, u.last_name, u.status, u.created_at,
		       COALESCE(ARRAY_AGG(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		WHERE u.id = $1 AND u.tenant_id = $2
		GROUP BY u.id`

	member := &Member{}
	err := repository.pool.QueryRow(ctx, query, userID, tenantID).Scan(
		&member.ID,
		&member.Email,
		&member.FirstName,
		&member.LastName,
		&member.Status,
		&member.CreatedAt,
		&member.Roles,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_member_repo_find_failed: %w", err)
	}

	return member, nil
}

// UpdateStatus flips a member's status, scoped to the tenant.
func (repository *PostgresMemberRepository) UpdateStatus(ctx context.Context, tenantID, userID int64, status string) error {
	const query = `
		UPDATE users
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2`

	tag, err := repository.pool.Exec(ctx, query, userID, tenantID, status)
	if err != nil {
		return fmt.Errorf("postgres_member_repo_update_status_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}

	return nil
}

// AssignRole grants the role to the user. The role and user must belong to
// the same tenant; ON CONFLICT makes the call idempotent.
func (repository *PostgresMemberRepository) AssignRole(ctx context.Context, tenantID, userID, roleID int64) error {
	const query = `
		INSERT INTO user_roles (user_id, role_id, created_at)
		SELECT u.id, r.id, NOW()
		FROM users u
		JOIN roles r ON r.tenant_id = u.tenant_id
		WHERE u.id = $1 AND r.id = $2 AND u.tenant_id = $3
		ON CONFLICT (user_id, role_id) DO NOTHING`

	tag, err := repository.pool.Exec(ctx, query, userID, roleID, tenantID)
	if err != nil {
		return fmt.Errorf("postgres_member_repo_assign_role_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the pair does not exist in this tenant or the grant was
		// already present. Distinguish so callers get a clean 404.
		exists, err := repository.pairExists(ctx, tenantID, userID, roleID)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound("User or role")
		}
	}

	return nil
}

// UnassignRole removes the role from the user, scoped to the tenant.
func (repository *PostgresMemberRepository) UnassignRole(ctx context.Context, tenantID, userID, roleID int64) error {
	const query = `
		DELETE FROM user_roles ur
		USING users u, roles r
		WHERE ur.user_id = u.id AND ur.role_id = r.id
		  AND ur.user_id = $1 AND ur.role_id = $2
		  AND u.tenant_id = $3 AND r.tenant_id = $3`

	tag, err := repository.pool.Exec(ctx, query, userID, roleID, tenantID)
	if err != nil {
		return fmt.Errorf("postgres_member_repo_unassign_role_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Role assignment")
	}

	return nil
}

func (repository *PostgresMemberRepository) pairExists(ctx context.Context, tenantID, userID, roleID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1
			FROM users u
			JOIN roles r ON r.tenant_id = u.tenant_id
			WHERE u.id = $1 AND r.id = $2 AND u.tenant_id = $3
		)`

	var exists bool
	if err := repository.pool.QueryRow(ctx, query, userID, roleID, tenantID).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres_member_repo_pair_exists_failed: %w", err)
	}

	return exists, nil
}
