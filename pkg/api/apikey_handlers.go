package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/gateway/pkg/audit"
	"github.com/platinummonkey/gateway/pkg/auth"
	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/middleware"
)

// APIKeyHandlers handles self-service API key management plus the
// admin view over other users' keys
type APIKeyHandlers struct {
	deps Deps
}

// NewAPIKeyHandlers creates a new API key handlers instance
func NewAPIKeyHandlers(deps Deps) *APIKeyHandlers {
	return &APIKeyHandlers{deps: deps}
}

// RegisterRoutes registers the self-service key routes. The router is
// expected to already require authentication; keys are scoped to the
// authenticated principal.
func (h *APIKeyHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("", h.createKey).Methods("POST")
	router.HandleFunc("", h.listKeys).Methods("GET")
	router.HandleFunc("/{id}/revoke", h.revokeKey).Methods("POST")
	router.HandleFunc("/{id}", h.deleteKey).Methods("DELETE")
}

// RegisterAdminRoutes registers the admin key routes behind their
// permission guards
func (h *APIKeyHandlers) RegisterAdminRoutes(router *mux.Router, perms *middleware.PermissionMiddleware) {
	router.Handle("/users/{id}/api-keys", perms.RequirePermissions("read:users")(http.HandlerFunc(h.listUserKeys))).Methods("GET")
	router.Handle("/users/{id}/api-keys/{keyId}/revoke", perms.RequirePermissions("block:users")(http.HandlerFunc(h.revokeUserKey))).Methods("POST")
}

// createKey handles POST /api/v1/keys. The plaintext key is revealed
// exactly once, in this response. A key cannot carry permissions the
// creating principal does not hold.
func (h *APIKeyHandlers) createKey(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)
	if claims == nil {
		httputil.WriteInternalError(w)
		return
	}

	var req struct {
		Name        string     `json:"name"`
		Permissions []string   `json:"permissions"`
		ExpiresAt   *time.Time `json:"expires_at"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	held := claims.PermissionSet()
	for _, perm := range req.Permissions {
		if _, ok := held[perm]; !ok {
			httputil.WriteBadRequest(w, "cannot grant permission not held: "+perm)
			return
		}
	}

	ak, key, err := h.deps.APIKeys.Create(r.Context(), claims.UserID, req.Name, req.Permissions, req.ExpiresAt)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to create API key")
		httputil.WriteInternalError(w)
		return
	}

	recordAudit(h.deps, r, audit.EventAPIKeyCreate, audit.StatusSuccess, claims.UserID, ak.ID, "API key created", map[string]interface{}{
		"name": ak.Name,
	})

	httputil.WriteCreated(w, map[string]interface{}{
		"api_key": ak,
		"key":     key,
	})
}

// listKeys handles GET /api/v1/keys
func (h *APIKeyHandlers) listKeys(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)
	if claims == nil {
		httputil.WriteInternalError(w)
		return
	}

	keys, err := h.deps.APIKeys.ListForUser(r.Context(), claims.UserID)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to list API keys")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"api_keys": keys})
}

// revokeKey handles POST /api/v1/keys/{id}/revoke
func (h *APIKeyHandlers) revokeKey(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)
	if claims == nil {
		httputil.WriteInternalError(w)
		return
	}
	h.revoke(w, r, mux.Vars(r)["id"], claims.UserID, claims.UserID)
}

// deleteKey handles DELETE /api/v1/keys/{id}
func (h *APIKeyHandlers) deleteKey(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)
	if claims == nil {
		httputil.WriteInternalError(w)
		return
	}

	keyID := mux.Vars(r)["id"]
	if err := h.deps.APIKeys.Delete(r.Context(), keyID, claims.UserID); err != nil {
		if errors.Is(err, auth.ErrAPIKeyNotFound) {
			httputil.WriteNotFound(w, "API key not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to delete API key")
		httputil.WriteInternalError(w)
		return
	}

	recordAudit(h.deps, r, audit.EventAPIKeyDelete, audit.StatusSuccess, claims.UserID, keyID, "API key deleted", nil)
	httputil.WriteNoContent(w)
}

// listUserKeys handles GET /api/v1/admin/users/{id}/api-keys
func (h *APIKeyHandlers) listUserKeys(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	keys, err := h.deps.APIKeys.ListForUser(r.Context(), userID)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to list API keys")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"api_keys": keys})
}

// revokeUserKey handles POST /api/v1/admin/users/{id}/api-keys/{keyId}/revoke
func (h *APIKeyHandlers) revokeUserKey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	actor := middleware.ClaimsFromRequest(r)
	h.revoke(w, r, vars["keyId"], vars["id"], actorID(actor))
}

func (h *APIKeyHandlers) revoke(w http.ResponseWriter, r *http.Request, keyID, ownerID, actor string) {
	if err := h.deps.APIKeys.Revoke(r.Context(), keyID, ownerID); err != nil {
		if errors.Is(err, auth.ErrAPIKeyNotFound) {
			httputil.WriteNotFound(w, "API key not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to revoke API key")
		httputil.WriteInternalError(w)
		return
	}

	recordAudit(h.deps, r, audit.EventAPIKeyRevoke, audit.StatusSuccess, actor, keyID, "API key revoked", nil)
	httputil.WriteNoContent(w)
}
