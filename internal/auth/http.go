// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package auth

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taskora/taskora/internal/platform/apperr"
	"github.com/taskora/taskora/internal/platform/constants"
	"github.com/taskora/taskora/internal/platform/respond"
	"github.com/taskora/taskora/internal/platform/sec"
	"github.com/taskora/taskora/internal/platform/validate"
	"github.com/taskora/taskora/internal/rbac"
)

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages the user lifecycle entry points: registration, login,
// token refresh, session management, and the password flows. Refresh tokens
// travel in an HttpOnly cookie scoped to this route subtree; API clients may
// instead send them in the request body.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with authentication routes.
// The protected group runs behind the given authentication middleware.
//
// # Endpoints
//   - POST /register        : Creates a tenant and its owner account.
//   - POST /login           : Authenticates and returns the token pair.
//   - POST /refresh         : Rotates the refresh token.
//   - POST /logout          : Revokes the current session.
//   - POST /forgot-password : Issues a reset token.
//   - POST /reset-password  : Exchanges a reset token for a new password.
//   - GET    /me            : Returns the caller's profile and permissions.
//   - GET    /sessions      : Lists the caller's active sessions.
//   - DELETE /sessions/{id} : Revokes one of the caller's sessions.
//   - POST /change-password : Changes the caller's password.
func (handler *Handler) Routes(authenticate func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()

	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)

	router.Group(func(protected chi.Router) {
		protected.Use(authenticate)
		protected.Get("/me", handler.me)
		protected.Get("/sessions", handler.listSessions)
		protected.Delete("/sessions/{id}", handler.revokeSession)
		protected.Post("/change-password", handler.changePassword)
	})

	return router
}

// registerRequest represents the JSON payload for tenant registration.
type registerRequest struct {
	TenantName string `json:"tenant_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	DeviceName string `json:"device_name"`
}

// register handles POST /api/v1/auth/register requests.
//
// # Returns
//   - Writes HTTP 201 Created with the token pair, user, and tenant.
//   - Writes HTTP 400 Bad Request if validation rules fail.
//   - Writes HTTP 409 Conflict if the email is taken.
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input registerRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	validator := validate.New().
		Required("tenant_name", input.TenantName).
		MaxLen("tenant_name", input.TenantName, 100).
		Required("email", input.Email).
		Email("email", input.Email).
		Required("password", input.Password).
		MinLen("password", input.Password, 8).
		Required("first_name", input.FirstName).
		MaxLen("first_name", input.FirstName, 100).
		Required("last_name", input.LastName).
		MaxLen("last_name", input.LastName, 100)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	session, err := handler.authService.Register(request.Context(), RegisterInput{
		TenantName: input.TenantName,
		Email:      input.Email,
		Password:   input.Password,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		DeviceName: input.DeviceName,
		UserAgent:  request.UserAgent(),
		IPAddress:  clientIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 4. Presentation Output ────────────────────────────────────────────

	setRefreshCookie(writer, session)
	respond.JSON(writer, http.StatusCreated, respond.SuccessEnvelope{Data: sessionResponse(session)})
}

// loginRequest represents the JSON payload expected for authentication.
type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	DeviceName string `json:"device_name"`
}

// login handles POST /api/v1/auth/login requests.
//
// # Returns
//   - Writes HTTP 200 OK with the token pair, user, and tenant.
//   - Writes HTTP 401 Unauthorized for bad credentials.
//   - Writes HTTP 403 Forbidden for suspended organizations.
//   - Writes HTTP 429 Too Many Requests when throttled.
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := validate.New().
		Required("email", input.Email).
		Required("password", input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Email:      input.Email,
		Password:   input.Password,
		RememberMe: input.RememberMe,
		DeviceName: input.DeviceName,
		UserAgent:  request.UserAgent(),
		IPAddress:  clientIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, session)
	respond.OK(writer, sessionResponse(session))
}

// refresh handles POST /api/v1/auth/refresh requests.
//
// Rotates the session: the presented refresh token is revoked and a fresh
// pair is issued. The token comes from the HttpOnly cookie, or from the
// request body for non-browser clients.
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	refreshToken := refreshTokenFromRequest(request)
	if refreshToken == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token"))
		return
	}

	session, err := handler.authService.RefreshSession(
		request.Context(),
		refreshToken,
		request.UserAgent(),
		clientIP(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, session)
	respond.OK(writer, sessionResponse(session))
}

// logout handles POST /api/v1/auth/logout requests.
//
// Always succeeds: a missing or already-revoked token still clears the
// cookie and returns 204.
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if refreshToken := refreshTokenFromRequest(request); refreshToken != "" {
		_ = handler.authService.Logout(request.Context(), refreshToken)
	}

	clearRefreshCookie(writer)
	respond.NoContent(writer)
}

// me handles GET /api/v1/auth/me requests. The response is built entirely
// from the request principal; no extra queries run.
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	principal, ok := rbac.PrincipalFromContext(request.Context())
	if !ok {
		respond.Error(writer, request, apperr.Unauthorized("Access token required"))
		return
	}

	respond.OK(writer, map[string]any{
		"user": map[string]any{
			"id":         principal.UserID,
			"email":      principal.Email,
			"first_name": principal.FirstName,
			"last_name":  principal.LastName,
		},
		"tenant": map[string]any{
			"id":   principal.TenantID,
			"name": principal.TenantName,
		},
		"permissions": principal.PermissionNames(),
	})
}

// sessionView is the JSON shape for one entry in the session list.
type sessionView struct {
	Session
	IsCurrent bool `json:"is_current"`
}

// listSessions handles GET /api/v1/auth/sessions requests. The session the
// request's refresh cookie belongs to is flagged as current.
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	principal, _ := rbac.PrincipalFromContext(request.Context())

	sessions, err := handler.authService.ListSessions(request.Context(), principal.UserID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	currentHash := ""
	if refreshToken := refreshTokenFromRequest(request); refreshToken != "" {
		currentHash = sec.HashToken(refreshToken)
	}

	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, sessionView{
			Session:   session,
			IsCurrent: currentHash != "" && session.TokenHash == currentHash,
		})
	}

	respond.OK(writer, views)
}

// revokeSession handles DELETE /api/v1/auth/sessions/{id} requests.
func (handler *Handler) revokeSession(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(request, "id"), 10, 64)
	if err != nil || sessionID <= 0 {
		respond.Error(writer, request, validate.RequiredError("id", "must be a positive integer"))
		return
	}

	principal, _ := rbac.PrincipalFromContext(request.Context())
	if err := handler.authService.RevokeSession(request.Context(), principal.UserID, sessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// changePasswordRequest represents the JSON payload for a password change.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// changePassword handles POST /api/v1/auth/change-password requests.
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	var input changePasswordRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := validate.New().
		Required("current_password", input.CurrentPassword).
		Required("new_password", input.NewPassword).
		MinLen("new_password", input.NewPassword, 8)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal, _ := rbac.PrincipalFromContext(request.Context())
	err := handler.authService.ChangePassword(
		request.Context(),
		principal.UserID,
		input.CurrentPassword,
		input.NewPassword,
		refreshTokenFromRequest(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// forgotPassword handles POST /api/v1/auth/forgot-password requests.
// Always answers 204 so the endpoint cannot be used to probe for accounts.
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}
	if input.Email == "" {
		respond.Error(writer, request, validate.RequiredError("email", "is required"))
		return
	}

	if err := handler.authService.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// resetPassword handles POST /api/v1/auth/reset-password requests.
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := validate.New().
		Required("token", input.Token).
		Required("new_password", input.NewPassword).
		MinLen("new_password", input.NewPassword, 8)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), input.Token, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// sessionResponse is the JSON shape shared by register, login, and refresh.
func sessionResponse(session *AuthSession) map[string]any {
	return map[string]any{
		"access_token":  session.AccessToken,
		"refresh_token": session.RefreshToken,
		"token_type":    "Bearer",
		"expires_at":    session.RefreshTokenExpiresAt.Unix(),
		"user":          session.User,
		"tenant":        session.Tenant,
	}
}

// setRefreshCookie installs the rotated refresh token, scoped to the auth
// subtree so it never rides along on ordinary API calls.
func setRefreshCookie(writer http.ResponseWriter, session *AuthSession) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    session.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  session.RefreshTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearRefreshCookie expires the refresh token cookie on the client.
func clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshTokenFromRequest prefers the HttpOnly cookie and falls back to a
// refresh_token field in the JSON body for non-browser clients.
func refreshTokenFromRequest(request *http.Request) string {
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if request.Body != nil {
		if err := json.NewDecoder(request.Body).Decode(&body); err == nil {
			return strings.TrimSpace(body.RefreshToken)
		}
	}

	return ""
}

// clientIP extracts the real client address in proxy environments.
func clientIP(request *http.Request) string {
	ip := request.Header.Get(constants.HeaderXRealIP)
	if ip == "" {
		if forwarded := request.Header.Get(constants.HeaderXForwardedFor); forwarded != "" {
			ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
		}
	}
	if ip == "" {
		ip = request.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
	}
	return ip
}
