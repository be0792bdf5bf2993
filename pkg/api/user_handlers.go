package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/gateway/pkg/audit"
	"github.com/platinummonkey/gateway/pkg/auth"
	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/middleware"
	"github.com/platinummonkey/gateway/pkg/rbac"
	"github.com/platinummonkey/gateway/pkg/users"
	"github.com/platinummonkey/gateway/pkg/webhooks"
)

const defaultPageSize = 50

// UserHandlers handles admin user management
type UserHandlers struct {
	deps Deps
}

// NewUserHandlers creates a new user handlers instance
func NewUserHandlers(deps Deps) *UserHandlers {
	return &UserHandlers{deps: deps}
}

// RegisterRoutes registers user management routes behind their
// permission guards
func (h *UserHandlers) RegisterRoutes(router *mux.Router, perms *middleware.PermissionMiddleware) {
	router.Handle("/users", perms.RequirePermissions("read:users")(http.HandlerFunc(h.listUsers))).Methods("GET")
	router.Handle("/users/{id}", perms.RequirePermissions("read:users")(http.HandlerFunc(h.getUser))).Methods("GET")
	router.Handle("/users/{id}/block", perms.RequirePermissions("block:users")(http.HandlerFunc(h.blockUser))).Methods("POST")
	router.Handle("/users/{id}/unblock", perms.RequirePermissions("block:users")(http.HandlerFunc(h.unblockUser))).Methods("POST")
	router.Handle("/users/{id}/sessions", perms.RequirePermissions("block:users")(http.HandlerFunc(h.revokeSessions))).Methods("DELETE")
	router.Handle("/users/{id}/activate", perms.RequirePermissions("update:users")(http.HandlerFunc(h.activateUser))).Methods("POST")
	router.Handle("/users/{id}/deactivate", perms.RequirePermissions("update:users")(http.HandlerFunc(h.deactivateUser))).Methods("POST")
	router.Handle("/users/{id}/verify", perms.RequirePermissions("update:users")(http.HandlerFunc(h.verifyUser))).Methods("POST")

	router.Handle("/users/{id}/roles", perms.RequirePermissions("read:users")(http.HandlerFunc(h.listUserRoles))).Methods("GET")
	router.Handle("/users/{id}/roles", perms.RequirePermissions("assign:permissions")(http.HandlerFunc(h.assignRole))).Methods("POST")
	router.Handle("/users/{id}/roles/{roleId}", perms.RequirePermissions("assign:permissions")(http.HandlerFunc(h.revokeRole))).Methods("DELETE")
}

// listUsers handles GET /api/v1/admin/users
func (h *UserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	offset := queryInt(r, "offset", 0)

	list, err := h.deps.Users.List(r.Context(), limit, offset)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to list users")
		httputil.WriteInternalError(w)
		return
	}
	total, err := h.deps.Users.Count(r.Context())
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to count users")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"users":  list,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// getUser handles GET /api/v1/admin/users/{id}
func (h *UserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	user, err := h.deps.Users.FindByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to load user")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, user)
}

// blockUser handles POST /api/v1/admin/users/{id}/block. Blocking also
// revokes every refresh token so the account cannot re-authenticate.
func (h *UserHandlers) blockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

// unblockUser handles POST /api/v1/admin/users/{id}/unblock
func (h *UserHandlers) unblockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *UserHandlers) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	userID := mux.Vars(r)["id"]
	actor := middleware.ClaimsFromRequest(r)

	if err := h.deps.Users.SetBlocked(r.Context(), userID, blocked); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to update block state")
		httputil.WriteInternalError(w)
		return
	}

	eventType := audit.EventAdminUserUnblock
	action := "unblock"
	if blocked {
		eventType = audit.EventAdminUserBlock
		action = "block"

		if err := h.deps.Refresh.RevokeAllForUser(r.Context(), userID); err != nil {
			h.deps.Logger.WithError(err).Warn("failed to revoke refresh tokens")
		}
	}

	recordAudit(h.deps, r, eventType, audit.StatusSuccess, actorID(actor), userID, "user "+action, nil)
	h.deps.Dispatcher.Trigger(webhooks.EventAdminAction, map[string]interface{}{
		"action":    action + "_user",
		"actor_id":  actorID(actor),
		"target_id": userID,
	})
	if blocked {
		h.deps.Dispatcher.Trigger(webhooks.EventSecurityAlert, map[string]interface{}{
			"alert":   "user_blocked",
			"user_id": userID,
		})
	}

	httputil.WriteNoContent(w)
}

// activateUser handles POST /api/v1/admin/users/{id}/activate
func (h *UserHandlers) activateUser(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// deactivateUser handles POST /api/v1/admin/users/{id}/deactivate
func (h *UserHandlers) deactivateUser(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// setActive toggles the soft-delete flag. Deactivation revokes every
// refresh token like a block does; the row itself stays on record.
func (h *UserHandlers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	userID := mux.Vars(r)["id"]
	actor := middleware.ClaimsFromRequest(r)

	if err := h.deps.Users.SetActive(r.Context(), userID, active); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to update active state")
		httputil.WriteInternalError(w)
		return
	}

	eventType := audit.EventAdminUserActivate
	action := "activate"
	if !active {
		eventType = audit.EventAdminUserDeactivate
		action = "deactivate"

		if err := h.deps.Refresh.RevokeAllForUser(r.Context(), userID); err != nil {
			h.deps.Logger.WithError(err).Warn("failed to revoke refresh tokens")
		}
	}

	recordAudit(h.deps, r, eventType, audit.StatusSuccess, actorID(actor), userID, "user "+action+"d", nil)
	h.deps.Dispatcher.Trigger(webhooks.EventAdminAction, map[string]interface{}{
		"action":    action + "_user",
		"actor_id":  actorID(actor),
		"target_id": userID,
	})

	httputil.WriteNoContent(w)
}

// verifyUser handles POST /api/v1/admin/users/{id}/verify
func (h *UserHandlers) verifyUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	actor := middleware.ClaimsFromRequest(r)

	if err := h.deps.Users.SetVerified(r.Context(), userID); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to verify user")
		httputil.WriteInternalError(w)
		return
	}

	recordAudit(h.deps, r, audit.EventAdminUserVerify, audit.StatusSuccess, actorID(actor), userID, "user verified", nil)

	httputil.WriteNoContent(w)
}

// revokeSessions handles DELETE /api/v1/admin/users/{id}/sessions
func (h *UserHandlers) revokeSessions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	actor := middleware.ClaimsFromRequest(r)

	if err := h.deps.Refresh.RevokeAllForUser(r.Context(), userID); err != nil {
		h.deps.Logger.WithError(err).Error("failed to revoke refresh tokens")
		httputil.WriteInternalError(w)
		return
	}

	recordAudit(h.deps, r, audit.EventAdminUserBlock, audit.StatusSuccess, actorID(actor), userID, "sessions revoked", nil)
	h.deps.Dispatcher.Trigger(webhooks.EventSessionRevoked, map[string]interface{}{
		"user_id":  userID,
		"actor_id": actorID(actor),
	})

	httputil.WriteNoContent(w)
}

// listUserRoles handles GET /api/v1/admin/users/{id}/roles
func (h *UserHandlers) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	roles, err := h.deps.Roles.GetUserRoles(r.Context(), userID)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to load user roles")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"roles":       roles,
		"permissions": rbac.Flatten(roles),
	})
}

// assignRole handles POST /api/v1/admin/users/{id}/roles
func (h *UserHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	actor := middleware.ClaimsFromRequest(r)

	var req struct {
		RoleID string `json:"role_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID == "" {
		httputil.WriteBadRequest(w, "role_id is required")
		return
	}

	if _, err := h.deps.Roles.GetRole(r.Context(), req.RoleID); err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			httputil.WriteNotFound(w, "role not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to load role")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.deps.Roles.AssignRole(r.Context(), userID, req.RoleID); err != nil {
		h.deps.Logger.WithError(err).Error("failed to assign role")
		httputil.WriteInternalError(w)
		return
	}

	recordAudit(h.deps, r, audit.EventAdminRoleAssign, audit.StatusSuccess, actorID(actor), userID, "role assigned", map[string]interface{}{
		"role_id": req.RoleID,
	})

	httputil.WriteNoContent(w)
}

// revokeRole handles DELETE /api/v1/admin/users/{id}/roles/{roleId}
func (h *UserHandlers) revokeRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["id"]
	roleID := vars["roleId"]
	actor := middleware.ClaimsFromRequest(r)

	if err := h.deps.Roles.RevokeRole(r.Context(), userID, roleID); err != nil {
		h.deps.Logger.WithError(err).Error("failed to revoke role")
		httputil.WriteInternalError(w)
		return
	}

	recordAudit(h.deps, r, audit.EventAdminRoleRevoke, audit.StatusSuccess, actorID(actor), userID, "role revoked", map[string]interface{}{
		"role_id": roleID,
	})

	httputil.WriteNoContent(w)
}

// actorID extracts the acting user's id, empty when no principal is
// attached
func actorID(claims *auth.Claims) string {
	if claims == nil {
		return ""
	}
	return claims.UserID
}

// queryInt parses an integer query parameter with a fallback
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
