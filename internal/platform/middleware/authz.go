// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/taskora/taskora/internal/platform/apperr"
	"github.com/taskora/taskora/internal/platform/respond"
	"github.com/taskora/taskora/internal/platform/sec"
	"github.com/taskora/taskora/internal/rbac"
)

// TokenVerifier defines the interface needed to verify access tokens.
//
// # Why an interface?
//
// Defining TokenVerifier here decouples the middleware from the sec package's
// concrete service, allowing us to easily inject mocks during unit testing.
type TokenVerifier interface {
	VerifyAccessToken(tokenString string) (*sec.AuthClaims, error)
}

// PrincipalLoader turns a verified user ID into a full request principal:
// identity, tenant, and effective permissions. The rbac service provides the
// production implementation.
type PrincipalLoader interface {
	ResolvePrincipal(ctx context.Context, userID int64) (*rbac.Principal, error)
}

// Authorizer bundles token verification and principal loading into the
// request-authentication middleware and per-route permission gates.
//
// # Flow
//
// Authenticate runs once per request and establishes WHO is calling.
// Require / RequireAny run per route subtree and establish WHAT the caller
// may do. The gates assume Authenticate already ran.
type Authorizer struct {
	verifier TokenVerifier
	loader   PrincipalLoader
}

// NewAuthorizer constructs an [Authorizer] with its dependencies.
func NewAuthorizer(verifier TokenVerifier, loader PrincipalLoader) *Authorizer {
	return &Authorizer{verifier: verifier, loader: loader}
}

// Authenticate extracts and verifies the JWT from the Authorization header,
// resolves the principal, and injects it into the request context.
//
// # Responses
//   - 401 "Access token required"       : No bearer token present.
//   - 401 "Invalid token"               : Malformed or badly signed token.
//   - 401 "Token expired"               : Signature fine, lifetime over.
//   - 401 "User not found or inactive"  : Token valid, account unusable.
//   - 403 "Organization is suspended"   : Account fine, tenant is not.
//   - 500 "Authentication failed"       : Infrastructure trouble mid-check.
func (authorizer *Authorizer) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

		// ── 1. Token Extraction ───────────────────────────────────────────

		authHeader := request.Header.Get("Authorization")
		if authHeader == "" {
			respond.Error(writer, request, apperr.Unauthorized("Access token required"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			respond.Error(writer, request, apperr.Unauthorized("Invalid token"))
			return
		}

		// ── 2. Token Verification ─────────────────────────────────────────

		claims, err := authorizer.verifier.VerifyAccessToken(parts[1])
		if err != nil {
			if errors.Is(err, sec.ErrTokenExpired) {
				respond.Error(writer, request, apperr.Unauthorized("Token expired"))
				return
			}
			respond.Error(writer, request, apperr.Unauthorized("Invalid token"))
			return
		}

		// ── 3. Principal Resolution ───────────────────────────────────────

		// Loaded fresh on every request: revoked users and suspended tenants
		// lose access immediately, not at token expiry.
		principal, err := authorizer.loader.ResolvePrincipal(request.Context(), claims.UserID)
		if err != nil {
			if !apperr.IsAppError(err) {
				err = apperr.AuthenticationFailed(err)
			}
			respond.Error(writer, request, err)
			return
		}

		// ── 4. Context Injection ──────────────────────────────────────────

		ctx := rbac.WithPrincipal(request.Context(), principal)
		next.ServeHTTP(writer, request.WithContext(ctx))
	})
}

// Require blocks the request unless the principal holds EVERY listed
// permission. With a single argument this is the plain permission gate;
// with several it expresses "all of".
//
// # Usage
//
// Must be registered in the router AFTER [Authorizer.Authenticate].
func (authorizer *Authorizer) Require(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			principal, ok := rbac.PrincipalFromContext(request.Context())
			if !ok {
				respond.Error(writer, request, apperr.Unauthorized("Access token required"))
				return
			}

			for _, permission := range permissions {
				if !principal.HasPermission(permission) {
					respond.Error(writer, request, apperr.PermissionDenied(permissions...))
					return
				}
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// RequireAny blocks the request unless the principal holds AT LEAST ONE of
// the listed permissions. The 403 body names every acceptable permission so
// clients can tell users what to ask their admin for.
func (authorizer *Authorizer) RequireAny(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			principal, ok := rbac.PrincipalFromContext(request.Context())
			if !ok {
				respond.Error(writer, request, apperr.Unauthorized("Access token required"))
				return
			}

			if !principal.HasAnyPermission(permissions...) {
				respond.Error(writer, request, apperr.PermissionDenied(permissions...))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
