// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package auth

import (
	"context"
	"time"
)

// UserRepository persists credentials and their owning tenants.
type UserRepository interface {
	// CreateTenantWithOwner inserts the tenant and its founding user in one
	// transaction, filling both IDs. Fails with a conflict on a duplicate
	// email or tenant slug.
	CreateTenantWithOwner(ctx context.Context, tenant *Tenant, user *User) error

	// FindByEmail loads a user and their tenant by email, regardless of
	// status. Returns dberr.ErrNotFound when no such user exists.
	FindByEmail(ctx context.Context, email string) (*User, *Tenant, error)

	// FindByID loads a user and their tenant by ID, regardless of status.
	FindByID(ctx context.Context, userID int64) (*User, *Tenant, error)

	// UpdateLastLogin stamps the user's last successful login time.
	UpdateLastLogin(ctx context.Context, userID int64) error

	// UpdatePassword replaces the user's password hash.
	UpdatePassword(ctx context.Context, userID int64, newHash string) error

	// SlugExists reports whether a tenant already claimed the slug.
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// SessionRepository persists refresh sessions.
type SessionRepository interface {
	// Create inserts a session, filling its ID and CreatedAt.
	Create(ctx context.Context, session *Session) error

	// FindByTokenHash retrieves a live (unrevoked, unexpired) session by its
	// token hash. Returns dberr.ErrNotFound otherwise.
	FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// ListActiveByUser returns the user's live sessions, newest first.
	ListActiveByUser(ctx context.Context, userID int64) ([]Session, error)

	// Revoke marks a session as revoked.
	Revoke(ctx context.Context, sessionID int64) error

	// RevokeOwned revokes a session only if the user owns it. Re-revoking a
	// revoked session, or revoking a session that no longer exists, is a
	// no-op success; a session owned by someone else returns
	// dberr.ErrNotFound.
	RevokeOwned(ctx context.Context, sessionID, userID int64) error

	// RevokeAll revokes every live session the user holds.
	RevokeAll(ctx context.Context, userID int64) error

	// RevokeOthers revokes every live session except the one given.
	RevokeOthers(ctx context.Context, userID, keepSessionID int64) error

	// TouchLastUsed stamps the session's last use time.
	TouchLastUsed(ctx context.Context, sessionID int64) error

	// DeleteExpired removes sessions past their expiry, returning the count.
	DeleteExpired(ctx context.Context) (int64, error)
}

// ResetTokenStore holds short-lived, single-use password reset tokens.
// Tokens are stored hashed, keyed to the user, and expire on their own.
type ResetTokenStore interface {
	// Save stores the token hash for the user with the given lifetime.
	Save(ctx context.Context, tokenHash string, userID int64, ttl time.Duration) error

	// Consume atomically retrieves and deletes the token, returning the
	// user it belongs to. Returns dberr.ErrNotFound for unknown or expired
	// tokens; a token can never be consumed twice.
	Consume(ctx context.Context, tokenHash string) (int64, error)
}

// LoginThrottle counts failed login attempts inside a sliding window.
type LoginThrottle interface {
	// Fail records a failed attempt and returns the running count. The
	// counter expires window after the first failure.
	Fail(ctx context.Context, key string, window time.Duration) (int64, error)

	// Count returns the current failure count without recording anything.
	Count(ctx context.Context, key string) (int64, error)

	// Clear drops the counter after a successful login.
	Clear(ctx context.Context, key string) error
}
