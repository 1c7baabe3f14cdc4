// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

// PostgreSQL implementations of the auth repositories.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskora/taskora/internal/platform/dberr"
)

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// CreateTenantWithOwner inserts the tenant and its founding user atomically.
// A duplicate email or slug surfaces as a 409 conflict.
func (repository *PostgresUserRepository) CreateTenantWithOwner(ctx context.Context, tenant *Tenant, user *User) error {
	tx, err := repository.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_begin_failed: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	const insertTenant = `
		INSERT INTO tenants (name, slug, status, plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id`
	err = tx.QueryRow(ctx, insertTenant, tenant.Name, tenant.Slug, tenant.Status, tenant.Plan, now).Scan(&tenant.ID)
	if err != nil {
		return dberr.Wrap(err, "An organization with this name already exists")
	}
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	const insertUser = `
		INSERT INTO users (tenant_id, email, first_name, last_name, password_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id`
	err = tx.QueryRow(ctx, insertUser,
		tenant.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.Status,
		now,
	).Scan(&user.ID)
	if err != nil {
		return dberr.Wrap(err, "Email is already registered")
	}
	user.TenantID = tenant.ID
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres_user_repo_commit_failed: %w", err)
	}

	return nil
}

// FindByEmail loads a user and their tenant by email.
func (repository *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*User, *Tenant, error) {
	const query = `
		SELECT u.id, u.tenant_id, u.email, u.first_name, u.last_name, u.password_hash,
		       u.status, u.last_login_at, u.created_at, u.updated_at,
		       t.id, t.name, t.slug, t.status, t.plan, t.created_at, t.updated_at
		FROM users u
		JOIN tenants t ON t.id = u.tenant_id
		WHERE LOWER(u.email) = LOWER($1)`

	return repository.scanUserWithTenant(repository.pool.QueryRow(ctx, query, email))
}

// FindByID loads a user and their tenant by ID.
func (repository *PostgresUserRepository) FindByID(ctx context.Context, userID int64) (*User, *Tenant, error) {
	const query = `
		SELECT u.id, u.tenant_id, u.email, u.first_name, u.last_name, u.password_hash,
		       u.status, u.last_login_at, u.created_at, u.updated_at,
		       t.id, t.name, t.slug, t.status, t.plan, t.created_at, t.updated_at
		FROM users u
		JOIN tenants t ON t.id = u.tenant_id
		WHERE u.id = $1`

	return repository.scanUserWithTenant(repository.pool.QueryRow(ctx, query, userID))
}

// UpdateLastLogin stamps the user's last successful login time.
func (repository *PostgresUserRepository) UpdateLastLogin(ctx context.Context, userID int64) error {
	const query = "UPDATE users SET last_login_at = NOW() WHERE id = $1"
	if _, err := repository.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("postgres_user_repo_last_login_failed: %w", err)
	}
	return nil
}

// UpdatePassword replaces only the password hash for a specific user.
func (repository *PostgresUserRepository) UpdatePassword(ctx context.Context, userID int64, newHash string) error {
	const query = "UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1"
	if _, err := repository.pool.Exec(ctx, query, userID, newHash); err != nil {
		return fmt.Errorf("postgres_user_repo_update_password_failed: %w", err)
	}
	return nil
}

// SlugExists reports whether a tenant already claimed the slug.
func (repository *PostgresUserRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	const query = "SELECT EXISTS (SELECT 1 FROM tenants WHERE slug = $1)"

	var exists bool
	if err := repository.pool.QueryRow(ctx, query, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres_user_repo_slug_exists_failed: %w", err)
	}

	return exists, nil
}

func (repository *PostgresUserRepository) scanUserWithTenant(row pgx.Row) (*User, *Tenant, error) {
	user := &User{}
	tenant := &Tenant{}
	err := row.Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.Status,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
		&tenant.ID,
		&tenant.Name,
		&tenant.Slug,
		&tenant.Status,
		&tenant.Plan,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, dberr.ErrNotFound
		}
		return nil, nil, fmt.Errorf("postgres_user_repo_scan_failed: %w", err)
	}

	return user, tenant, nil
}

// ── Session Repository ───────────────────────────────────────────────────────

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

const sessionColumns = "id, user_id, token_hash, device_name, user_agent, ip_address, is_revoked, expires_at, last_used_at, created_at"

// Create inserts a session, filling its ID and CreatedAt.
func (repository *PostgresSessionRepository) Create(ctx context.Context, session *Session) error {
	const query = `
		INSERT INTO sessions (user_id, token_hash, device_name, user_agent, ip_address, is_revoked, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
		RETURNING id`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	err := repository.pool.QueryRow(ctx, query,
		session.UserID,
		session.TokenHash,
		session.DeviceName,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.CreatedAt,
	).Scan(&session.ID)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	return nil
}

// FindByTokenHash retrieves a live session by its unique token hash.
func (repository *PostgresSessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE token_hash = $1 AND is_revoked = FALSE AND expires_at > NOW()`

	session := &Session{}
	err := repository.pool.QueryRow(ctx, query, tokenHash).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.DeviceName,
		&session.UserAgent,
		&session.IPAddress,
		&session.IsRevoked,
		&session.ExpiresAt,
		&session.LastUsedAt,
		&session.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dberr.ErrNotFound
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

// ListActiveByUser returns the user's live sessions, newest first.
func (repository *PostgresSessionRepository) ListActiveByUser(ctx context.Context, userID int64) ([]Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > NOW()
		ORDER BY created_at DESC`

	rows, err := repository.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_failed: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0, 4)
	for rows.Next() {
		var session Session
		err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.TokenHash,
			&session.DeviceName,
			&session.UserAgent,
			&session.IPAddress,
			&session.IsRevoked,
			&session.ExpiresAt,
			&session.LastUsedAt,
			&session.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres_session_repo_scan_failed: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// Revoke marks a specific session as revoked.
func (repository *PostgresSessionRepository) Revoke(ctx context.Context, sessionID int64) error {
	const query = "UPDATE sessions SET is_revoked = TRUE WHERE id = $1"
	if _, err := repository.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_failed: %w", err)
	}
	return nil
}

// RevokeOwned revokes a session only if the user owns it. Revocation is
// idempotent: re-revoking an already-revoked session, or a session that no
// longer exists, is a no-op success. Only a session owned by somebody else
// reports dberr.ErrNotFound.
func (repository *PostgresSessionRepository) RevokeOwned(ctx context.Context, sessionID, userID int64) error {
	const query = `
		UPDATE sessions SET is_revoked = TRUE
		WHERE id = $1 AND user_id = $2`

	tag, err := repository.pool.Exec(ctx, query, sessionID, userID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_owned_failed: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: the session is either gone (idempotent no-op) or belongs to
	// another user (reads as not found).
	const existsQuery = "SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)"

	var exists bool
	if err := repository.pool.QueryRow(ctx, existsQuery, sessionID).Scan(&exists); err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_owned_check_failed: %w", err)
	}
	if exists {
		return dberr.ErrNotFound
	}

	return nil
}

// RevokeAll marks all live sessions for a user as revoked.
func (repository *PostgresSessionRepository) RevokeAll(ctx context.Context, userID int64) error {
	const query = "UPDATE sessions SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE"
	if _, err := repository.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", err)
	}
	return nil
}

// RevokeOthers revokes every live session except the one given.
func (repository *PostgresSessionRepository) RevokeOthers(ctx context.Context, userID, keepSessionID int64) error {
	const query = `
		UPDATE sessions SET is_revoked = TRUE
		WHERE user_id = $1 AND id <> $2 AND is_revoked = FALSE`

	if _, err := repository.pool.Exec(ctx, query, userID, keepSessionID); err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_others_failed: %w", err)
	}
	return nil
}

// TouchLastUsed stamps the session's last use time.
func (repository *PostgresSessionRepository) TouchLastUsed(ctx context.Context, sessionID int64) error {
	const query = "UPDATE sessions SET last_used_at = NOW() WHERE id = $1"
	if _, err := repository.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("postgres_session_repo_touch_failed: %w", err)
	}
	return nil
}

// DeleteExpired permanently removes all sessions past their expiration date.
// Intended for a periodic janitor, not the request path.
func (repository *PostgresSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = "DELETE FROM sessions WHERE expires_at <= NOW()"

	tag, err := repository.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
