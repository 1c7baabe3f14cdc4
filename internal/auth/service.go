// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskora/taskora/internal/platform/apperr"
	"github.com/taskora/taskora/internal/platform/constants"
	"github.com/taskora/taskora/internal/platform/dberr"
	"github.com/taskora/taskora/internal/platform/sec"
	"github.com/taskora/taskora/pkg/slug"
)

const (
	// MaxLoginFailures is how many failed attempts a single email+IP pair
	// gets inside the throttle window before login returns 429.
	MaxLoginFailures = 10

	// LoginFailureWindow is the sliding window for failure counting.
	LoginFailureWindow = 15 * time.Minute

	// ResetTokenTTL is how long a password reset token stays valid.
	ResetTokenTTL = 1 * time.Hour

	// resetTokenBytes is the entropy of a reset token before encoding.
	resetTokenBytes = 32

	// slugAttempts bounds the numbered-suffix search for a free tenant slug.
	slugAttempts = 50
)

// TokenProvider defines the contract for issuing and verifying the JWT pair.
// The sec package provides the production implementation.
type TokenProvider interface {
	IssueAccessToken(userID, tenantID int64, timeToLive time.Duration) (string, error)
	IssueRefreshToken(userID, tenantID int64, timeToLive time.Duration) (string, error)
	VerifyRefreshToken(tokenString string) (*sec.AuthClaims, error)
}

// TenantBootstrapper seeds a new tenant's system roles and makes the founding
// user its Owner. The rbac package provides the implementation.
type TenantBootstrapper interface {
	BootstrapTenant(ctx context.Context, tenantID, ownerUserID int64) error
}

// Mailer delivers account emails. Actual delivery is out of scope for this
// service; the production binary wires whatever transport operations choose.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// TTLConfig carries the token lifetimes the service issues with.
type TTLConfig struct {
	AccessToken  time.Duration
	RefreshToken time.Duration
	RememberMe   time.Duration
}

// Service implements authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, throttling,
// or token rotation logic must be reviewed by the security team.
type Service struct {
	userRepository    UserRepository
	sessionRepository SessionRepository
	resetTokens       ResetTokenStore
	throttle          LoginThrottle
	tokenProvider     TokenProvider
	bootstrapper      TenantBootstrapper
	mailer            Mailer
	ttl               TTLConfig
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	userRepo UserRepository,
	sessionRepo SessionRepository,
	resetTokens ResetTokenStore,
	throttle LoginThrottle,
	tokenProv TokenProvider,
	bootstrapper TenantBootstrapper,
	mailer Mailer,
	ttl TTLConfig,
) *Service {
	return &Service{
		userRepository:    userRepo,
		sessionRepository: sessionRepo,
		resetTokens:       resetTokens,
		throttle:          throttle,
		tokenProvider:     tokenProv,
		bootstrapper:      bootstrapper,
		mailer:            mailer,
		ttl:               ttl,
	}
}

// AuthSession represents a successfully established user session.
type AuthSession struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	User                  *User
	Tenant                *Tenant
}

// RegisterInput holds the data required to create a tenant and its owner.
type RegisterInput struct {
	TenantName string
	Email      string
	Password   string
	FirstName  string
	LastName   string
	DeviceName string
	UserAgent  string
	IPAddress  string
}

// Register creates a brand new tenant together with its founding user, seeds
// the tenant's system roles, and logs the user straight in.
//
// # Business Rules
//   - Emails are globally unique.
//   - The tenant slug is derived from the name; collisions get a numbered
//     suffix ("acme", "acme-2", ...).
//   - The founding user always becomes the tenant's Owner.
func (service *Service) Register(ctx context.Context, input RegisterInput) (*AuthSession, error) {
	// ── 1. Slug Allocation ────────────────────────────────────────────────

	tenantSlug, err := service.uniqueSlug(ctx, input.TenantName)
	if err != nil {
		return nil, err
	}

	// ── 2. Security ───────────────────────────────────────────────────────

	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	// ── 3. Entity Construction ────────────────────────────────────────────

	tenant := &Tenant{
		Name:   strings.TrimSpace(input.TenantName),
		Slug:   tenantSlug,
		Status: constants.TenantStatusActive,
		Plan:   PlanFree,
	}
	user := &User{
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		PasswordHash: hashedPassword,
		Status:       constants.UserStatusActive,
	}

	// ── 4. Persistence ────────────────────────────────────────────────────

	if err := service.userRepository.CreateTenantWithOwner(ctx, tenant, user); err != nil {
		return nil, err
	}

	if err := service.bootstrapper.BootstrapTenant(ctx, tenant.ID, user.ID); err != nil {
		return nil, fmt.Errorf("auth_service_bootstrap_failed: %w", err)
	}

	// ── 5. Initial Session ────────────────────────────────────────────────

	return service.issueSession(ctx, user, tenant, service.ttl.RefreshToken, input.DeviceName, input.UserAgent, input.IPAddress)
}

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	DeviceName string
	UserAgent  string
	IPAddress  string
}

// Login validates user credentials and issues the token pair.
//
// # Returns
//   - [apperr.Unauthorized] for bad credentials or inactive accounts. The
//     message never distinguishes the two, to prevent account enumeration.
//   - [apperr.Forbidden] when the tenant is suspended.
//   - [apperr.RateLimited] after too many failures from the same email+IP.
//
// # Flow
//  1. Check the failure counter for this email+IP pair.
//  2. Look up the user and verify the bcrypt hash.
//  3. Check user and tenant status.
//  4. Issue the access/refresh pair and persist the session.
func (service *Service) Login(ctx context.Context, input LoginInput) (*AuthSession, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	throttleKey := email + ":" + input.IPAddress

	// ── 1. Throttle Check ─────────────────────────────────────────────────

	failures, err := service.throttle.Count(ctx, throttleKey)
	if err != nil {
		return nil, fmt.Errorf("auth_service_throttle_check_failed: %w", err)
	}
	if failures >= MaxLoginFailures {
		return nil, apperr.RateLimited(int(LoginFailureWindow.Seconds()))
	}

	// ── 2. Credential Verification ────────────────────────────────────────

	user, tenant, err := service.userRepository.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, service.recordFailure(ctx, throttleKey)
		}
		return nil, fmt.Errorf("auth_service_login_lookup_failed: %w", err)
	}

	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		return nil, service.recordFailure(ctx, throttleKey)
	}

	// ── 3. Status Checks ──────────────────────────────────────────────────

	// An inactive account answers exactly like a wrong password.
	if user.Status != constants.UserStatusActive {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}
	if tenant.Status != constants.TenantStatusActive {
		return nil, apperr.Forbidden("Organization is suspended")
	}

	// ── 4. Session Issuance ───────────────────────────────────────────────

	if err := service.throttle.Clear(ctx, throttleKey); err != nil {
		return nil, fmt.Errorf("auth_service_throttle_clear_failed: %w", err)
	}
	if err := service.userRepository.UpdateLastLogin(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("auth_service_last_login_failed: %w", err)
	}

	refreshTTL := service.ttl.RefreshToken
	if input.RememberMe {
		refreshTTL = service.ttl.RememberMe
	}

	return service.issueSession(ctx, user, tenant, refreshTTL, input.DeviceName, input.UserAgent, input.IPAddress)
}

// recordFailure bumps the throttle counter and returns the generic
// credential error, so every failure path reads identically to the client.
func (service *Service) recordFailure(ctx context.Context, throttleKey string) error {
	if _, err := service.throttle.Fail(ctx, throttleKey, LoginFailureWindow); err != nil {
		return fmt.Errorf("auth_service_throttle_record_failed: %w", err)
	}
	return apperr.Unauthorized("Invalid login credentials")
}

// RefreshSession implements refresh token rotation. It verifies the token's
// signature, matches it against a live session, revokes that session, and
// issues a fresh pair bound to a new session.
//
// # Business Rules
//   - A refresh token is single-use; reuse after rotation fails.
//   - User and tenant status are re-checked, so a deactivated user or
//     suspended tenant cannot mint new access tokens.
//   - Rotation preserves the original expiry horizon instead of sliding it,
//     so a stolen refresh token cannot be kept alive forever.
func (service *Service) RefreshSession(ctx context.Context, refreshToken, userAgent, ipAddress string) (*AuthSession, error) {
	// ── 1. Verify and Locate ──────────────────────────────────────────────

	claims, err := service.tokenProvider.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	session, err := service.sessionRepository.FindByTokenHash(ctx, sec.HashToken(refreshToken))
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}
	if session.UserID != claims.UserID {
		// A signed token pointing at someone else's session row means the
		// row was tampered with. Kill it.
		_ = service.sessionRepository.Revoke(ctx, session.ID)
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	// ── 2. Rotation ───────────────────────────────────────────────────────

	if err := service.sessionRepository.Revoke(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("auth_service_refresh_revoke_failed: %w", err)
	}

	// ── 3. Status Re-check ────────────────────────────────────────────────

	user, tenant, err := service.userRepository.FindByID(ctx, session.UserID)
	if err != nil || user.Status != constants.UserStatusActive {
		return nil, apperr.Unauthorized("User not found or inactive")
	}
	if tenant.Status != constants.TenantStatusActive {
		return nil, apperr.Forbidden("Organization is suspended")
	}

	// ── 4. Issue New Pair ─────────────────────────────────────────────────

	remaining := time.Until(session.ExpiresAt)
	if remaining <= 0 {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	fresh, err := service.issueSession(ctx, user, tenant, remaining, session.DeviceName, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}

	return fresh, nil
}

// Logout permanently revokes the session behind the refresh token. A token
// that is already gone counts as a successful logout (idempotent operation).
func (service *Service) Logout(ctx context.Context, refreshToken string) error {
	session, err := service.sessionRepository.FindByTokenHash(ctx, sec.HashToken(refreshToken))
	if err != nil {
		return nil
	}

	if err := service.sessionRepository.Revoke(ctx, session.ID); err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}

	return nil
}

// ListSessions returns the user's live sessions, newest first.
func (service *Service) ListSessions(ctx context.Context, userID int64) ([]Session, error) {
	sessions, err := service.sessionRepository.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_list_sessions_failed: %w", err)
	}
	return sessions, nil
}

// RevokeSession revokes one of the user's own sessions, logging that device
// out. Revocation is idempotent: re-revoking a session, or revoking one that
// has already been purged, succeeds quietly. Revoking someone else's session
// reads as a 404.
func (service *Service) RevokeSession(ctx context.Context, userID, sessionID int64) error {
	err := service.sessionRepository.RevokeOwned(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return apperr.NotFound("Session")
		}
		return fmt.Errorf("auth_service_revoke_session_failed: %w", err)
	}
	return nil
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes every other session so stolen refresh tokens die immediately. The
// caller's own session (identified by their refresh token) survives.
func (service *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword, refreshToken string) error {
	user, _, err := service.userRepository.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_lookup_failed: %w", err)
	}

	if !sec.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}
	if err := service.userRepository.UpdatePassword(ctx, userID, newHash); err != nil {
		return err
	}

	// Keep the session the request came from, if we can identify it.
	if refreshToken != "" {
		if session, err := service.sessionRepository.FindByTokenHash(ctx, sec.HashToken(refreshToken)); err == nil {
			if err := service.sessionRepository.RevokeOthers(ctx, userID, session.ID); err != nil {
				return fmt.Errorf("auth_service_change_password_revoke_failed: %w", err)
			}
			return nil
		}
	}

	if err := service.sessionRepository.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("auth_service_change_password_revoke_failed: %w", err)
	}
	return nil
}

// RequestPasswordReset issues a single-use reset token and hands it to the
// mailer. Unknown and inactive emails return success without doing anything,
// to prevent account enumeration.
func (service *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, _, err := service.userRepository.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("auth_service_reset_lookup_failed: %w", err)
	}
	if user.Status != constants.UserStatusActive {
		return nil
	}

	token, err := sec.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("auth_service_reset_token_failed: %w", err)
	}

	if err := service.resetTokens.Save(ctx, sec.HashToken(token), user.ID, ResetTokenTTL); err != nil {
		return err
	}

	if err := service.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		return fmt.Errorf("auth_service_reset_mail_failed: %w", err)
	}

	return nil
}

// ResetPassword exchanges a reset token for a new password and revokes every
// session the user holds.
func (service *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := service.resetTokens.Consume(ctx, sec.HashToken(token))
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return apperr.ValidationError("Reset token is invalid or expired")
		}
		return fmt.Errorf("auth_service_reset_consume_failed: %w", err)
	}

	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_hash_failed: %w", err)
	}
	if err := service.userRepository.UpdatePassword(ctx, userID, newHash); err != nil {
		return err
	}

	if err := service.sessionRepository.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("auth_service_reset_revoke_failed: %w", err)
	}

	return nil
}

// issueSession signs the access/refresh pair and persists the session row
// holding the refresh token's hash.
func (service *Service) issueSession(ctx context.Context, user *User, tenant *Tenant, refreshTTL time.Duration, deviceName, userAgent, ipAddress string) (*AuthSession, error) {
	accessToken, err := service.tokenProvider.IssueAccessToken(user.ID, tenant.ID, service.ttl.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("auth_service_access_token_failed: %w", err)
	}

	refreshToken, err := service.tokenProvider.IssueRefreshToken(user.ID, tenant.ID, refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	expiresAt := time.Now().Add(refreshTTL)
	session := &Session{
		UserID:     user.ID,
		TokenHash:  sec.HashToken(refreshToken),
		DeviceName: deviceName,
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
		ExpiresAt:  expiresAt,
	}
	if err := service.sessionRepository.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}
	if err := service.sessionRepository.TouchLastUsed(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("auth_service_session_touch_failed: %w", err)
	}

	return &AuthSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: expiresAt,
		User:                  user,
		Tenant:                tenant,
	}, nil
}

// uniqueSlug derives a URL-safe slug from the tenant name and searches for a
// free one with numbered suffixes. After slugAttempts collisions it falls
// back to a random suffix rather than scanning forever.
func (service *Service) uniqueSlug(ctx context.Context, tenantName string) (string, error) {
	base := slug.From(tenantName)
	if base == "" {
		base = "org"
	}

	candidate := base
	for attempt := 2; attempt <= slugAttempts; attempt++ {
		exists, err := service.userRepository.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}

	suffix, err := sec.GenerateSecureToken(4)
	if err != nil {
		return "", fmt.Errorf("auth_service_slug_suffix_failed: %w", err)
	}
	return base + "-" + strings.ToLower(suffix), nil
}
