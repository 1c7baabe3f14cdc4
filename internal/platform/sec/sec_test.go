// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package sec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskora/taskora/internal/platform/sec"
)

func newTokenService(t *testing.T) *sec.TokenService {
	t.Helper()
	service, err := sec.NewTokenService("access-secret-for-tests", "refresh-secret-for-tests", "taskora.app")
	require.NoError(t, err)
	return service
}

/*
TestNewTokenService_SecretRules verifies the constructor rejects missing or
identical secrets.
*/
func TestNewTokenService_SecretRules(t *testing.T) {
	tests := []struct {
		name          string
		accessSecret  string
		refreshSecret string
		wantErr       bool
	}{
		{"valid_pair", "secret-a", "secret-b", false},
		{"missing_access", "", "secret-b", true},
		{"missing_refresh", "secret-a", "", true},
		{"identical_secrets", "same-secret", "same-secret", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sec.NewTokenService(tt.accessSecret, tt.refreshSecret, "taskora.app")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

/*
TestTokenService_RoundTrip verifies both token kinds carry the identity pair
through issue and verify.
*/
func TestTokenService_RoundTrip(t *testing.T) {
	service := newTokenService(t)

	accessToken, err := service.IssueAccessToken(42, 7, time.Hour)
	require.NoError(t, err)

	claims, err := service.VerifyAccessToken(accessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, int64(7), claims.TenantID)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "taskora.app", claims.Issuer)

	refreshToken, err := service.IssueRefreshToken(42, 7, time.Hour)
	require.NoError(t, err)

	claims, err = service.VerifyRefreshToken(refreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, int64(7), claims.TenantID)
}

/*
TestTokenService_KindSeparation ensures an access token never verifies as a
refresh token and vice versa, even though both are valid JWTs.
*/
func TestTokenService_KindSeparation(t *testing.T) {
	service := newTokenService(t)

	accessToken, err := service.IssueAccessToken(1, 1, time.Hour)
	require.NoError(t, err)
	refreshToken, err := service.IssueRefreshToken(1, 1, time.Hour)
	require.NoError(t, err)

	_, err = service.VerifyRefreshToken(accessToken)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)

	_, err = service.VerifyAccessToken(refreshToken)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)
}

/*
TestTokenService_Expiry verifies expired tokens report ErrTokenExpired, not
the generic invalid error.
*/
func TestTokenService_Expiry(t *testing.T) {
	service := newTokenService(t)

	token, err := service.IssueAccessToken(1, 1, -time.Minute)
	require.NoError(t, err)

	_, err = service.VerifyAccessToken(token)
	assert.ErrorIs(t, err, sec.ErrTokenExpired)
}

/*
TestTokenService_Garbage verifies malformed input maps to ErrTokenInvalid.
*/
func TestTokenService_Garbage(t *testing.T) {
	service := newTokenService(t)

	for _, input := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := service.VerifyAccessToken(input)
		assert.ErrorIs(t, err, sec.ErrTokenInvalid)
	}
}

/*
TestTokenService_IssuerMismatch ensures tokens minted by a different issuer
are rejected even when signed with the same secret.
*/
func TestTokenService_IssuerMismatch(t *testing.T) {
	minting, err := sec.NewTokenService("access-secret-for-tests", "refresh-secret-for-tests", "evil.example")
	require.NoError(t, err)
	verifying := newTokenService(t)

	token, err := minting.IssueAccessToken(1, 1, time.Hour)
	require.NoError(t, err)

	_, err = verifying.VerifyAccessToken(token)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)
}

/*
TestPasswordHashing verifies the bcrypt round trip and mismatch behavior.
*/
func TestPasswordHashing(t *testing.T) {
	hash, err := sec.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, sec.CheckPasswordHash("correct horse battery staple", hash))
	assert.False(t, sec.CheckPasswordHash("wrong password", hash))
	assert.False(t, sec.CheckPasswordHash("", hash))
}

/*
TestGenerateSecureToken verifies entropy tokens are unique and URL-safe.
*/
func TestGenerateSecureToken(t *testing.T) {
	first, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	second, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
	assert.NotContains(t, first, "=")
	assert.NotContains(t, first, "+")
	assert.NotContains(t, first, "/")
}

/*
TestHashToken verifies hashing is deterministic and one-way in shape.
*/
func TestHashToken(t *testing.T) {
	hash := sec.HashToken("some-refresh-token")

	assert.Equal(t, hash, sec.HashToken("some-refresh-token"))
	assert.NotEqual(t, hash, sec.HashToken("another-token"))
	assert.Len(t, hash, 64) // hex-encoded SHA-256
}
