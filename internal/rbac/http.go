// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package rbac

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taskora/taskora/internal/platform/respond"
	"github.com/taskora/taskora/internal/platform/validate"
	"github.com/taskora/taskora/pkg/pagination"
)

// PermissionGate produces middleware enforcing capability checks on a route
// subtree. The middleware package provides the implementation; the handler
// only declares which capability each endpoint needs.
type PermissionGate interface {
	Require(permissions ...string) func(http.Handler) http.Handler
	RequireAny(permissions ...string) func(http.Handler) http.Handler
}

// Handler implements the role, permission, and member administration endpoints.
//
// # Scope
//
// Everything here runs behind authentication; the permission gates below add
// the per-endpoint capability checks. Tenant scoping comes from the request
// principal, never from client input.
type Handler struct {
	rbacService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{rbacService: service}
}

// RoleRoutes returns a [chi.Router] for role management.
//
// # Endpoints
//   - GET    /     : Lists the tenant's roles.
//   - POST   /     : Creates a custom role.
//   - GET    /{id} : Returns a role with its permissions.
//   - PUT    /{id} : Updates a custom role.
//   - DELETE /{id} : Deletes a custom role.
func (handler *Handler) RoleRoutes(gate PermissionGate) chi.Router {
	router := chi.NewRouter()
	router.Use(gate.Require(PermRolesManage))

	router.Get("/", handler.listRoles)
	router.Post("/", handler.createRole)
	router.Get("/{id}", handler.getRole)
	router.Put("/{id}", handler.updateRole)
	router.Delete("/{id}", handler.deleteRole)

	return router
}

// PermissionRoutes returns a [chi.Router] exposing the global catalogue.
func (handler *Handler) PermissionRoutes(gate PermissionGate) chi.Router {
	router := chi.NewRouter()
	router.Use(gate.RequireAny(PermRolesManage, PermUsersManage))

	router.Get("/", handler.listPermissions)

	return router
}

// MemberRoutes returns a [chi.Router] for tenant member administration.
//
// # Endpoints
//   - GET    /                 : Lists the tenant's members with role names.
//   - GET    /{id}             : Returns a single member.
//   - PATCH  /{id}/status      : Activates or deactivates a member.
//   - POST   /{id}/roles       : Assigns a role to a member.
//   - DELETE /{id}/roles/{roleID} : Removes a role from a member.
func (handler *Handler) MemberRoutes(gate PermissionGate) chi.Router {
	router := chi.NewRouter()

	router.With(gate.RequireAny(PermUsersView, PermUsersManage)).Get("/", handler.listMembers)
	router.With(gate.RequireAny(PermUsersView, PermUsersManage)).Get("/{id}", handler.getMember)
	router.With(gate.Require(PermUsersManage)).Patch("/{id}/status", handler.setMemberStatus)
	router.With(gate.Require(PermUsersManage)).Post("/{id}/roles", handler.assignRole)
	router.With(gate.Require(PermUsersManage)).Delete("/{id}/roles/{roleID}", handler.unassignRole)

	return router
}

// ── Roles ────────────────────────────────────────────────────────────────────

// roleRequest represents the JSON payload for creating or updating a role.
type roleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// listRoles handles GET /api/v1/roles requests.
func (handler *Handler) listRoles(writer http.ResponseWriter, request *http.Request) {
	principal, _ := PrincipalFromContext(request.Context())
	params := pagination.FromRequest(request)

	roles, total, err := handler.rbacService.ListRoles(request.Context(), principal.TenantID, params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, roles, pagination.NewMeta(params.Page, params.Limit, int(total)))
}

// createRole handles POST /api/v1/roles requests.
//
// # Returns
//   - Writes HTTP 201 Created with the new role.
//   - Writes HTTP 400 Bad Request for unknown permissions.
//   - Writes HTTP 409 Conflict for duplicate names.
func (handler *Handler) createRole(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input roleRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	validator := validate.New().
		Required("name", input.Name).
		MaxLen("name", input.Name, 100).
		MaxLen("description", input.Description, 500)
	for _, permission := range input.Permissions {
		validator.PermissionKey("permissions", permission)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	principal, _ := PrincipalFromContext(request.Context())
	role, err := handler.rbacService.CreateRole(request.Context(), principal.TenantID, RoleInput{
		Name:        input.Name,
		Description: input.Description,
		Permissions: input.Permissions,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, role)
}

// getRole handles GET /api/v1/roles/{id} requests.
func (handler *Handler) getRole(writer http.ResponseWriter, request *http.Request) {
	roleID, err := pathID(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal, _ := PrincipalFromContext(request.Context())
	role, err := handler.rbacService.GetRole(request.Context(), principal.TenantID, roleID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, role)
}

// updateRole handles PUT /api/v1/roles/{id} requests.
func (handler *Handler) updateRole(writer http.ResponseWriter, request *http.Request) {
	roleID, err := pathID(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input roleRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := validate.New().
		Required("name", input.Name).
		MaxLen("name", input.Name, 100).
		MaxLen("description", input.Description, 500)
	for _, permission := range input.Permissions {
		validator.PermissionKey("permissions", permission)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal, _ := PrincipalFromContext(request.Context())
	role, err := handler.rbacService.UpdateRole(request.Context(), principal.TenantID, roleID, RoleInput{
		Name:        input.Name,
		Description: input.Description,
		Permissions: input.Permissions,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, role)
}

// deleteRole handles DELETE /api/v1/roles/{id} requests.
func (handler *Handler) deleteRole(writer http.ResponseWriter, request *http.Request) {
	roleID, err := pathID(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal, _ := PrincipalFromContext(request.Context())
	if err := handler.rbacService.DeleteRole(request.Context(), principal.TenantID, roleID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// ── Permissions ──────────────────────────────────────────────────────────────

// listPermissions handles GET /api/v1/permissions requests.
func (handler *Handler) listPermissions(writer http.ResponseWriter, request *http.Request) {
	permissions, err := handler.rbacService.ListPermissions(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, permissions)
}

// ── Members ──────────────────────────────────────────────────────────────────

// listMembers handles GET /api/v1/users requests.
func (handler *Handler) listMembers(writer http.ResponseWriter, request *http.Request) {
	principal, _ := PrincipalFromContext(request.Context())
	params := pagination.FromRequest(request)

	members, total, err := handler.rbacService.ListMembers(request.Context(), principal.TenantID, params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, members, pagination.NewMeta(params.Page, params.Limit, int(total)))
}

// getMember handles GET /api/v1/users/{id} requests.
func (handler *Handler) getMember(writer http.ResponseWriter, request *http.Request) {
	userID, err := pathID(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal, _ := PrincipalFromContext(request.Context())
	member, err := handler.rbacService.GetMember(request.Context(), principal.TenantID, userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, member)
}

// statusRequest represents the JSON payload for a member status change.
type statusRequest struct {
	Status string `json:"status"`
}

// setMemberStatus handles PATCH /api/v1/users/{id}/status requests.
func (handler *Handler) setMemberStatus(writer http.ResponseWriter, request *http.Request) {
	userID, err := pathID(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input statusRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	principal, _ := PrincipalFromContext(request.Context())
	if err := handler.rbacService.SetMemberStatus(request.Context(), principal, userID, input.Status); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// assignRoleRequest represents the JSON payload for a role assignment.
type assignRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

// assignRole handles POST /api/v1/users/{id}/roles requests.
func (handler *Handler) assignRole(writer http.ResponseWriter, request *http.Request) {
	userID, err := pathID(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input assignRoleRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}
	if input.RoleID <= 0 {
		respond.Error(writer, request, validate.RequiredError("role_id", "is required"))
		return
	}

	principal, _ := PrincipalFromContext(request.Context())
	if err := handler.rbacService.AssignRole(request.Context(), principal.TenantID, userID, input.RoleID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// unassignRole handles DELETE /api/v1/users/{id}/roles/{roleID} requests.
func (handler *Handler) unassignRole(writer http.ResponseWriter, request *http.Request) {
	userID, err := pathID(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	roleID, err := pathID(request, "roleID")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal, _ := PrincipalFromContext(request.Context())
	if err := handler.rbacService.UnassignRole(request.Context(), principal.TenantID, userID, roleID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// pathID parses a positive integer URL parameter.
func pathID(request *http.Request, name string) (int64, error) {
	raw := chi.URLParam(request, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, validate.RequiredError(name, "must be a positive integer")
	}
	return id, nil
}
