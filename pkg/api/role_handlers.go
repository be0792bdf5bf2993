package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/gateway/pkg/audit"
	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/middleware"
	"github.com/platinummonkey/gateway/pkg/rbac"
	"github.com/platinummonkey/gateway/pkg/webhooks"
)

// RoleHandlers handles role and permission management
type RoleHandlers struct {
	deps Deps
}

// NewRoleHandlers creates a new role handlers instance
func NewRoleHandlers(deps Deps) *RoleHandlers {
	return &RoleHandlers{deps: deps}
}

// RegisterRoutes registers role and permission routes
func (h *RoleHandlers) RegisterRoutes(router *mux.Router, perms *middleware.PermissionMiddleware) {
	router.Handle("/roles", perms.RequirePermissions("read:roles")(http.HandlerFunc(h.listRoles))).Methods("GET")
	router.Handle("/roles", perms.RequirePermissions("create:roles")(http.HandlerFunc(h.createRole))).Methods("POST")
	router.Handle("/roles/{id}", perms.RequirePermissions("read:roles")(http.HandlerFunc(h.getRole))).Methods("GET")
	router.Handle("/roles/{id}", perms.RequirePermissions("update:roles")(http.HandlerFunc(h.updateRole))).Methods("PUT")
	router.Handle("/roles/{id}", perms.RequirePermissions("delete:roles")(http.HandlerFunc(h.deleteRole))).Methods("DELETE")

	router.Handle("/permissions", perms.RequirePermissions("read:permissions")(http.HandlerFunc(h.listPermissions))).Methods("GET")
}

// listRoles handles GET /api/v1/admin/roles
func (h *RoleHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.deps.Roles.ListRoles(r.Context())
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to list roles")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// createRole handles POST /api/v1/admin/roles. Created roles are always
// editable; the protected system roles exist only via seeding.
func (h *RoleHandlers) createRole(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ClaimsFromRequest(r)

	var req struct {
		Name          string   `json:"name"`
		Description   string   `json:"description"`
		PermissionIDs []string `json:"permission_ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if rbac.IsProtectedRoleName(req.Name) {
		httputil.WriteBadRequest(w, "name is reserved for a system role")
		return
	}

	role, err := h.deps.Roles.CreateRole(r.Context(), req.Name, req.Description, true, req.PermissionIDs)
	if err != nil {
		if errors.Is(err, rbac.ErrDuplicateRole) {
			httputil.WriteConflict(w, "a role with this name already exists")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to create role")
		httputil.WriteInternalError(w)
		return
	}

	recordAudit(h.deps, r, audit.EventAdminRoleCreate, audit.StatusSuccess, actorID(actor), role.ID, "role created", map[string]interface{}{
		"name": role.Name,
	})
	h.deps.Dispatcher.Trigger(webhooks.EventAdminAction, map[string]interface{}{
		"action":   "create_role",
		"actor_id": actorID(actor),
		"role":     role.Name,
	})

	httputil.WriteCreated(w, role)
}

// getRole handles GET /api/v1/admin/roles/{id}
func (h *RoleHandlers) getRole(w http.ResponseWriter, r *http.Request) {
	roleID := mux.Vars(r)["id"]

	role, err := h.deps.Roles.GetRole(r.Context(), roleID)
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			httputil.WriteNotFound(w, "role not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to load role")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, role)
}

// updateRole handles PUT /api/v1/admin/roles/{id}
func (h *RoleHandlers) updateRole(w http.ResponseWriter, r *http.Request) {
	roleID := mux.Vars(r)["id"]
	actor := middleware.ClaimsFromRequest(r)

	var req struct {
		Description   string   `json:"description"`
		PermissionIDs []string `json:"permission_ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := h.deps.Roles.UpdateRole(r.Context(), roleID, req.Description, req.PermissionIDs)
	if err != nil {
		switch {
		case errors.Is(err, rbac.ErrRoleNotFound):
			httputil.WriteNotFound(w, "role not found")
		case errors.Is(err, rbac.ErrProtectedRole):
			httputil.WriteForbidden(w, "system roles cannot be modified")
		default:
			h.deps.Logger.WithError(err).Error("failed to update role")
			httputil.WriteInternalError(w)
		}
		return
	}

	recordAudit(h.deps, r, audit.EventAdminRoleUpdate, audit.StatusSuccess, actorID(actor), roleID, "role updated", nil)

	role, err := h.deps.Roles.GetRole(r.Context(), roleID)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to reload role")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, role)
}

// deleteRole handles DELETE /api/v1/admin/roles/{id}
func (h *RoleHandlers) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID := mux.Vars(r)["id"]
	actor := middleware.ClaimsFromRequest(r)

	err := h.deps.Roles.DeleteRole(r.Context(), roleID)
	if err != nil {
		switch {
		case errors.Is(err, rbac.ErrRoleNotFound):
			httputil.WriteNotFound(w, "role not found")
		case errors.Is(err, rbac.ErrProtectedRole):
			httputil.WriteForbidden(w, "system roles cannot be deleted")
		default:
			h.deps.Logger.WithError(err).Error("failed to delete role")
			httputil.WriteInternalError(w)
		}
		return
	}

	recordAudit(h.deps, r, audit.EventAdminRoleDelete, audit.StatusSuccess, actorID(actor), roleID, "role deleted", nil)

	httputil.WriteNoContent(w)
}

// listPermissions handles GET /api/v1/admin/permissions
func (h *RoleHandlers) listPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.deps.Roles.ListPermissions(r.Context())
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to list permissions")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, permissions)
}
