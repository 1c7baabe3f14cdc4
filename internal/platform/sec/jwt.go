// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via the [auth.TokenProvider] interface.
package sec

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Typed verification failures. Handlers and middleware map these to distinct
// client-facing 401 messages, so they must stay stable sentinel values.
var (
	// ErrTokenInvalid is returned for malformed, tampered, or cross-kind tokens.
	ErrTokenInvalid = errors.New("sec: invalid token")

	// ErrTokenExpired is returned when the token's 'exp' claim has passed.
	ErrTokenExpired = errors.New("sec: token expired")
)

// AuthClaims represents the payload embedded inside a Taskora JWT.
//
// # Why custom claims?
//
// The token carries the minimal identity pair {user, tenant}. Everything else
// (email, name, permissions) is resolved fresh from the credential store on
// every request, so a role or status change takes effect on the very next
// request instead of waiting for token expiry.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	UserID   int64 `json:"uid"`
	TenantID int64 `json:"tid"`
}

// TokenService issues and verifies HS256-signed access and refresh tokens.
//
// # Key Separation
//
// Access and refresh tokens are signed with independent secrets. A leaked
// access token can therefore never be replayed against the refresh endpoint,
// and a refresh token never admits an API request directly.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
}

// NewTokenService creates a TokenService from the two signing secrets.
//
// Both secrets are mandatory and must differ; reusing one secret for both
// token kinds would collapse the access/refresh privilege boundary.
func NewTokenService(accessSecret, refreshSecret, issuer string) (*TokenService, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("sec: both access and refresh token secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("sec: access and refresh token secrets must differ")
	}

	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
	}, nil
}

// IssueAccessToken creates a short-lived signed token for API requests.
func (service *TokenService) IssueAccessToken(userID, tenantID int64, timeToLive time.Duration) (string, error) {
	return service.sign(userID, tenantID, timeToLive, service.accessSecret)
}

// IssueRefreshToken creates a long-lived signed token for session renewal.
// Its lifetime must match the paired session row's ExpiresAt.
func (service *TokenService) IssueRefreshToken(userID, tenantID int64, timeToLive time.Duration) (string, error) {
	return service.sign(userID, tenantID, timeToLive, service.refreshSecret)
}

// VerifyAccessToken checks the signature and validity of an access token.
//
// # Returns
//   - [*AuthClaims] on success.
//   - [ErrTokenExpired] when the token was well-formed but past expiry.
//   - [ErrTokenInvalid] for every other failure (tampering, wrong key, garbage).
func (service *TokenService) VerifyAccessToken(tokenString string) (*AuthClaims, error) {
	return service.verify(tokenString, service.accessSecret)
}

// VerifyRefreshToken checks the signature and validity of a refresh token.
func (service *TokenService) VerifyRefreshToken(tokenString string) (*AuthClaims, error) {
	return service.verify(tokenString, service.refreshSecret)
}

func (service *TokenService) sign(userID, tenantID int64, timeToLive time.Duration, secret []byte) (string, error) {
	currentTime := time.Now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		UserID:   userID,
		TenantID: tenantID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

func (service *TokenService) verify(tokenString string, secret []byte) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(service.issuer), jwt.WithExpirationRequired())

	if err != nil {
		// Expiry is reported separately so the client knows a refresh (rather
		// than a re-login) is the right next step.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
