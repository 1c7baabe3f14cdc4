// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskora/taskora/internal/auth"
	"github.com/taskora/taskora/internal/platform/apperr"
	"github.com/taskora/taskora/internal/platform/constants"
	"github.com/taskora/taskora/internal/platform/dberr"
	"github.com/taskora/taskora/internal/platform/sec"
)

// ── Fakes ────────────────────────────────────────────────────────────────────

type fakeUserRepo struct {
	users   map[int64]*auth.User
	tenants map[int64]*auth.Tenant
	slugs   map[string]bool
	nextID  int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:   map[int64]*auth.User{},
		tenants: map[int64]*auth.Tenant{},
		slugs:   map[string]bool{},
		nextID:  1,
	}
}

func (f *fakeUserRepo) CreateTenantWithOwner(_ context.Context, tenant *auth.Tenant, user *auth.User) error {
	tenant.ID = f.nextID
	f.nextID++
	user.ID = f.nextID
	f.nextID++
	user.TenantID = tenant.ID

	f.tenants[tenant.ID] = tenant
	f.users[user.ID] = user
	f.slugs[tenant.Slug] = true
	return nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*auth.User, *auth.Tenant, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, f.tenants[user.TenantID], nil
		}
	}
	return nil, nil, dberr.ErrNotFound
}

func (f *fakeUserRepo) FindByID(_ context.Context, userID int64) (*auth.User, *auth.Tenant, error) {
	user, ok := f.users[userID]
	if !ok {
		return nil, nil, dberr.ErrNotFound
	}
	return user, f.tenants[user.TenantID], nil
}

func (f *fakeUserRepo) UpdateLastLogin(_ context.Context, userID int64) error {
	now := time.Now()
	f.users[userID].LastLoginAt = &now
	return nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, userID int64, newHash string) error {
	f.users[userID].PasswordHash = newHash
	return nil
}

func (f *fakeUserRepo) SlugExists(_ context.Context, slug string) (bool, error) {
	return f.slugs[slug], nil
}

type fakeSessionRepo struct {
	sessions map[int64]*auth.Session
	nextID   int64
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[int64]*auth.Session{}, nextID: 1}
}

func (f *fakeSessionRepo) Create(_ context.Context, session *auth.Session) error {
	session.ID = f.nextID
	f.nextID++
	session.CreatedAt = time.Now()
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	for _, s := range f.sessions {
		if s.TokenHash == tokenHash && !s.IsRevoked && s.ExpiresAt.After(time.Now()) {
			return s, nil
		}
	}
	return nil, dberr.ErrNotFound
}

func (f *fakeSessionRepo) ListActiveByUser(_ context.Context, userID int64) ([]auth.Session, error) {
	var out []auth.Session
	for _, s := range f.sessions {
		if s.UserID == userID && !s.IsRevoked {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) Revoke(_ context.Context, sessionID int64) error {
	if s, ok := f.sessions[sessionID]; ok {
		s.IsRevoked = true
	}
	return nil
}

func (f *fakeSessionRepo) RevokeOwned(_ context.Context, sessionID, userID int64) error {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil
	}
	if s.UserID != userID {
		return dberr.ErrNotFound
	}
	s.IsRevoked = true
	return nil
}

func (f *fakeSessionRepo) RevokeAll(_ context.Context, userID int64) error {
	for _, s := range f.sessions {
		if s.UserID == userID {
			s.IsRevoked = true
		}
	}
	return nil
}

func (f *fakeSessionRepo) RevokeOthers(_ context.Context, userID, keepSessionID int64) error {
	for _, s := range f.sessions {
		if s.UserID == userID && s.ID != keepSessionID {
			s.IsRevoked = true
		}
	}
	return nil
}

func (f *fakeSessionRepo) TouchLastUsed(_ context.Context, sessionID int64) error {
	if s, ok := f.sessions[sessionID]; ok {
		now := time.Now()
		s.LastUsedAt = &now
	}
	return nil
}

func (f *fakeSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	var count int64
	for id, s := range f.sessions {
		if s.ExpiresAt.Before(time.Now()) {
			delete(f.sessions, id)
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionRepo) live(userID int64) int {
	count := 0
	for _, s := range f.sessions {
		if s.UserID == userID && !s.IsRevoked {
			count++
		}
	}
	return count
}

type fakeResetStore struct {
	tokens map[string]int64
}

func (f *fakeResetStore) Save(_ context.Context, tokenHash string, userID int64, _ time.Duration) error {
	f.tokens[tokenHash] = userID
	return nil
}

func (f *fakeResetStore) Consume(_ context.Context, tokenHash string) (int64, error) {
	userID, ok := f.tokens[tokenHash]
	if !ok {
		return 0, dberr.ErrNotFound
	}
	delete(f.tokens, tokenHash)
	return userID, nil
}

type fakeThrottle struct {
	counts map[string]int64
}

func (f *fakeThrottle) Fail(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeThrottle) Count(_ context.Context, key string) (int64, error) {
	return f.counts[key], nil
}

func (f *fakeThrottle) Clear(_ context.Context, key string) error {
	delete(f.counts, key)
	return nil
}

type fakeBootstrapper struct {
	tenantIDs []int64
	ownerIDs  []int64
}

func (f *fakeBootstrapper) BootstrapTenant(_ context.Context, tenantID, ownerUserID int64) error {
	f.tenantIDs = append(f.tenantIDs, tenantID)
	f.ownerIDs = append(f.ownerIDs, ownerUserID)
	return nil
}

type fakeMailer struct {
	sentTo    []string
	lastToken string
}

func (f *fakeMailer) SendPasswordReset(_ context.Context, email, token string) error {
	f.sentTo = append(f.sentTo, email)
	f.lastToken = token
	return nil
}

// ── Fixture ──────────────────────────────────────────────────────────────────

type authFixture struct {
	service      *auth.Service
	users        *fakeUserRepo
	sessions     *fakeSessionRepo
	resets       *fakeResetStore
	throttle     *fakeThrottle
	bootstrapper *fakeBootstrapper
	mailer       *fakeMailer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	tokens, err := sec.NewTokenService("test-access-secret", "test-refresh-secret", "taskora.app")
	require.NoError(t, err)

	fx := &authFixture{
		users:        newFakeUserRepo(),
		sessions:     newFakeSessionRepo(),
		resets:       &fakeResetStore{tokens: map[string]int64{}},
		throttle:     &fakeThrottle{counts: map[string]int64{}},
		bootstrapper: &fakeBootstrapper{},
		mailer:       &fakeMailer{},
	}
	fx.service = auth.NewService(
		fx.users, fx.sessions, fx.resets, fx.throttle,
		tokens, fx.bootstrapper, fx.mailer,
		auth.TTLConfig{
			AccessToken:  time.Hour,
			RefreshToken: 24 * time.Hour,
			RememberMe:   30 * 24 * time.Hour,
		},
	)
	return fx
}

// seedUser registers a tenant with one active user and returns the user.
func (fx *authFixture) seedUser(t *testing.T, email, password string) *auth.User {
	t.Helper()

	session, err := fx.service.Register(context.Background(), auth.RegisterInput{
		TenantName: "Acme",
		Email:      email,
		Password:   password,
		FirstName:  "Jane",
		LastName:   "Doe",
	})
	require.NoError(t, err)
	return session.User
}

// ── Registration ─────────────────────────────────────────────────────────────

/*
TestService_Register verifies registration creates the tenant and owner,
seeds the system roles, and returns a working token pair.
*/
func TestService_Register(t *testing.T) {
	fx := newAuthFixture(t)

	session, err := fx.service.Register(context.Background(), auth.RegisterInput{
		TenantName: "Acme Inc",
		Email:      "Jane@Example.com",
		Password:   "s3cret-password",
		FirstName:  "Jane",
		LastName:   "Doe",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, "jane@example.com", session.User.Email)
	assert.Equal(t, "acme-inc", session.Tenant.Slug)
	assert.Equal(t, constants.TenantStatusActive, session.Tenant.Status)

	// The founding user became the tenant's Owner.
	assert.Equal(t, []int64{session.Tenant.ID}, fx.bootstrapper.tenantIDs)
	assert.Equal(t, []int64{session.User.ID}, fx.bootstrapper.ownerIDs)

	// The password never survives in clear text.
	assert.NotEqual(t, "s3cret-password", session.User.PasswordHash)
	assert.True(t, sec.CheckPasswordHash("s3cret-password", session.User.PasswordHash))

	assert.Equal(t, 1, fx.sessions.live(session.User.ID))
}

/*
TestService_Register_SlugCollision verifies a taken slug gets a numbered
suffix instead of failing.
*/
func TestService_Register_SlugCollision(t *testing.T) {
	fx := newAuthFixture(t)
	fx.users.slugs["acme"] = true

	session, err := fx.service.Register(context.Background(), auth.RegisterInput{
		TenantName: "Acme",
		Email:      "jane@example.com",
		Password:   "s3cret-password",
		FirstName:  "Jane",
		LastName:   "Doe",
	})
	require.NoError(t, err)
	assert.Equal(t, "acme-2", session.Tenant.Slug)
}

// ── Login ────────────────────────────────────────────────────────────────────

/*
TestService_Login verifies the happy path: credentials check out, the
throttle counter clears, and a session is persisted.
*/
func TestService_Login(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.seedUser(t, "jane@example.com", "s3cret-password")
	fx.throttle.counts["jane@example.com:1.2.3.4"] = 3

	session, err := fx.service.Login(context.Background(), auth.LoginInput{
		Email:     "JANE@example.com",
		Password:  "s3cret-password",
		IPAddress: "1.2.3.4",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, user.ID, session.User.ID)
	assert.NotNil(t, fx.users.users[user.ID].LastLoginAt)
	assert.NotContains(t, fx.throttle.counts, "jane@example.com:1.2.3.4")
	assert.Equal(t, 2, fx.sessions.live(user.ID)) // registration session + this one
}

/*
TestService_Login_BadCredentials verifies a wrong password and an unknown
email produce the same generic error and both bump the failure counter.
*/
func TestService_Login_BadCredentials(t *testing.T) {
	fx := newAuthFixture(t)
	fx.seedUser(t, "jane@example.com", "s3cret-password")

	for _, input := range []auth.LoginInput{
		{Email: "jane@example.com", Password: "wrong-password", IPAddress: "1.2.3.4"},
		{Email: "nobody@example.com", Password: "whatever", IPAddress: "1.2.3.4"},
	} {
		_, err := fx.service.Login(context.Background(), input)
		require.Error(t, err)

		appErr := apperr.As(err)
		require.NotNil(t, appErr)
		assert.Equal(t, "UNAUTHORIZED", appErr.Code)
		assert.Equal(t, "Invalid login credentials", appErr.Message)
	}

	assert.Equal(t, int64(1), fx.throttle.counts["jane@example.com:1.2.3.4"])
	assert.Equal(t, int64(1), fx.throttle.counts["nobody@example.com:1.2.3.4"])
}

/*
TestService_Login_Throttled verifies the attempt limit: once the counter
hits MaxLoginFailures, even correct credentials get a 429.
*/
func TestService_Login_Throttled(t *testing.T) {
	fx := newAuthFixture(t)
	fx.seedUser(t, "jane@example.com", "s3cret-password")
	fx.throttle.counts["jane@example.com:1.2.3.4"] = auth.MaxLoginFailures

	_, err := fx.service.Login(context.Background(), auth.LoginInput{
		Email:     "jane@example.com",
		Password:  "s3cret-password",
		IPAddress: "1.2.3.4",
	})
	require.Error(t, err)
	assert.Equal(t, "RATE_LIMITED", apperr.As(err).Code)
}

/*
TestService_Login_InactiveUser verifies a deactivated account answers
exactly like a wrong password, preventing account enumeration.
*/
func TestService_Login_InactiveUser(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.seedUser(t, "jane@example.com", "s3cret-password")
	fx.users.users[user.ID].Status = constants.UserStatusInactive

	_, err := fx.service.Login(context.Background(), auth.LoginInput{
		Email:    "jane@example.com",
		Password: "s3cret-password",
	})
	require.Error(t, err)
	assert.Equal(t, "Invalid login credentials", apperr.As(err).Message)
}

/*
TestService_Login_SuspendedTenant verifies a suspended organization blocks
login with a 403 even for valid credentials.
*/
func TestService_Login_SuspendedTenant(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.seedUser(t, "jane@example.com", "s3cret-password")
	fx.users.tenants[user.TenantID].Status = constants.TenantStatusSuspended

	_, err := fx.service.Login(context.Background(), auth.LoginInput{
		Email:    "jane@example.com",
		Password: "s3cret-password",
	})
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 403, appErr.HTTPStatus)
	assert.Equal(t, "Organization is suspended", appErr.Message)
}

// ── Refresh Rotation ─────────────────────────────────────────────────────────

/*
TestService_RefreshSession_Rotation verifies rotation: the old session dies,
a new pair is issued, and the original expiry horizon carries over instead
of sliding forward.
*/
func TestService_RefreshSession_Rotation(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.seedUser(t, "jane@example.com", "s3cret-password")

	initial, err := fx.service.Login(context.Background(), auth.LoginInput{
		Email:    "jane@example.com",
		Password: "s3cret-password",
	})
	require.NoError(t, err)

	fresh, err := fx.service.RefreshSession(context.Background(), initial.RefreshToken, "agent", "1.2.3.4")
	require.NoError(t, err)

	assert.NotEqual(t, initial.RefreshToken, fresh.RefreshToken)
	assert.NotEmpty(t, fresh.AccessToken)
	assert.WithinDuration(t, initial.RefreshTokenExpiresAt, fresh.RefreshTokenExpiresAt, 2*time.Second)

	// Rotation replaced the session rather than stacking a new one.
	assert.Equal(t, 2, fx.sessions.live(user.ID)) // registration session + rotated one
}

/*
TestService_RefreshSession_SingleUse verifies a rotated refresh token cannot
be replayed.
*/
func TestService_RefreshSession_SingleUse(t *testing.T) {
	fx := newAuthFixture(t)
	fx.seedUser(t, "jane@example.com", "s3cret-password")

	initial, err := fx.service.Login(context.Background(), auth.LoginInput{
		Email:    "jane@example.com",
		Password: "s3cret-password",
	})
	require.NoError(t, err)

	_, err = fx.service.RefreshSession(context.Background(), initial.RefreshToken, "agent", "1.2.3.4")
	require.NoError(t, err)

	_, err = fx.service.RefreshSession(context.Background(), initial.RefreshToken, "agent", "1.2.3.4")
	require.Error(t, err)
	assert.Equal(t, "Invalid or expired refresh token", apperr.As(err).Message)
}

/*
TestService_RefreshSession_StatusRecheck verifies a user deactivated after
login cannot mint new tokens with their refresh token.
*/
func TestService_RefreshSession_StatusRecheck(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.seedUser(t, "jane@example.com", "s3cret-password")

	initial, err := fx.service.Login(context.Background(), auth.LoginInput{
		Email:    "jane@example.com",
		Password: "s3cret-password",
	})
	require.NoError(t, err)

	fx.users.users[user.ID].Status = constants.UserStatusInactive

	_, err = fx.service.RefreshSession(context.Background(), initial.RefreshToken, "agent", "1.2.3.4")
	require.Error(t, err)
	assert.Equal(t, "User not found or inactive", apperr.As(err).Message)
}

/*
TestService_RefreshSession_Garbage verifies an unsigned or foreign token is
rejected before any session lookup.
*/
func TestService_RefreshSession_Garbage(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.service.RefreshSession(context.Background(), "not-a-token", "agent", "1.2.3.4")
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

// ── Logout and Sessions ──────────────────────────────────────────────────────

/*
TestService_Logout verifies logout revokes the session and treats an
already-dead token as success.
*/
func TestService_Logout(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.seedUser(t, "jane@example.com", "s3cret-password")

	session, err := fx.service.Login(context.Background(), auth.LoginInput{
		Email:    "jane@example.com",
		Password: "s3cret-password",
	})
	require.NoError(t, err)
	require.Equal(t, 2, fx.sessions.live(user.ID))

	require.NoError(t, fx.service.Logout(context.Background(), session.RefreshToken))
	assert.Equal(t, 1, fx.sessions.live(user.ID))

	// Second logout with the same token is a no-op, not an error.
	require.NoError(t, fx.service.Logout(context.Background(), session.RefreshToken))
	require.NoError(t, fx.service.Logout(context.Background(), "unknown-token"))
}

/*
TestService_RevokeSession verifies users can only revoke their own sessions;
anyone else's reads as a 404.
*/
func TestService_RevokeSession(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.seedUser(t, "jane@example.com", "s3cret-password")

	sessions, err := fx.service.ListSessions(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	err = fx.service.RevokeSession(context.Background(), user.ID+99, sessions[0].ID)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)

	require.NoError(t, fx.service.RevokeSession(context.Background(), user.ID, sessions[0].ID))
	assert.Equal(t, 0, fx.sessions.live(user.ID))
}

/*
TestService_RevokeSession_Idempotent verifies revocation is safe to repeat:
revoking an already-revoked session, or one that never existed, succeeds
without an error.
*/
func TestService_RevokeSession_Idempotent(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.seedUser(t, "jane@example.com", "s3cret-password")

	sessions, err := fx.service.ListSessions(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	require.NoError(t, fx.service.RevokeSession(context.Background(), user.ID, sessions[0].ID))

	// A second revocation of the same session is a no-op, not a 404.
	require.NoError(t, fx.service.RevokeSession(context.Background(), user.ID, sessions[0].ID))
	assert.Equal(t, 0, fx.sessions.live(user.ID))

	// A session ID that was never issued is treated the same way.
	require.NoError(t, fx.service.RevokeSession(context.Background(), user.ID, 424242))
}

// ── Password Lifecycle ───────────────────────────────────────────────────────

/*
TestService_ChangePassword verifies the current-password check, the hash
replacement, and that every session except the caller's is revoked.
*/
func TestService_ChangePassword(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.seedUser(t, "jane@example.com", "s3cret-password")

	caller, err := fx.service.Login(context.Background(), auth.LoginInput{
		Email:    "jane@example.com",
		Password: "s3cret-password",
	})
	require.NoError(t, err)
	require.Equal(t, 2, fx.sessions.live(user.ID))

	t.Run("wrong_current_password", func(t *testing.T) {
		err := fx.service.ChangePassword(context.Background(), user.ID, "wrong", "new-password-123", caller.RefreshToken)
		require.Error(t, err)
		assert.Equal(t, "Current password is incorrect", apperr.As(err).Message)
	})

	t.Run("success_keeps_caller_session", func(t *testing.T) {
		err := fx.service.ChangePassword(context.Background(), user.ID, "s3cret-password", "new-password-123", caller.RefreshToken)
		require.NoError(t, err)

		assert.True(t, sec.CheckPasswordHash("new-password-123", fx.users.users[user.ID].PasswordHash))
		assert.Equal(t, 1, fx.sessions.live(user.ID))

		// The surviving session is still usable for refresh.
		_, err = fx.service.RefreshSession(context.Background(), caller.RefreshToken, "agent", "1.2.3.4")
		assert.NoError(t, err)
	})
}

/*
TestService_PasswordReset verifies the full reset flow: the token reaches
the mailer (never the caller), consumes once, replaces the hash, and kills
every session.
*/
func TestService_PasswordReset(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.seedUser(t, "jane@example.com", "s3cret-password")

	require.NoError(t, fx.service.RequestPasswordReset(context.Background(), "jane@example.com"))
	require.Equal(t, []string{"jane@example.com"}, fx.mailer.sentTo)
	require.NotEmpty(t, fx.mailer.lastToken)

	require.NoError(t, fx.service.ResetPassword(context.Background(), fx.mailer.lastToken, "brand-new-password"))
	assert.True(t, sec.CheckPasswordHash("brand-new-password", fx.users.users[user.ID].PasswordHash))
	assert.Equal(t, 0, fx.sessions.live(user.ID))

	// Single use: the same token cannot be spent again.
	err := fx.service.ResetPassword(context.Background(), fx.mailer.lastToken, "another-password")
	require.Error(t, err)
	assert.Equal(t, "Reset token is invalid or expired", apperr.As(err).Message)
}

/*
TestService_RequestPasswordReset_UnknownEmail verifies unknown and inactive
accounts silently succeed, so the endpoint cannot be used for enumeration.
*/
func TestService_RequestPasswordReset_UnknownEmail(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.seedUser(t, "jane@example.com", "s3cret-password")

	require.NoError(t, fx.service.RequestPasswordReset(context.Background(), "nobody@example.com"))
	assert.Empty(t, fx.mailer.sentTo)

	fx.users.users[user.ID].Status = constants.UserStatusInactive
	require.NoError(t, fx.service.RequestPasswordReset(context.Background(), "jane@example.com"))
	assert.Empty(t, fx.mailer.sentTo)
}
