package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/gateway/pkg/audit"
	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/middleware"
	"github.com/platinummonkey/gateway/pkg/proxy"
	"github.com/platinummonkey/gateway/pkg/webhooks"
)

// ServiceHandlers manages the upstream service registry
type ServiceHandlers struct {
	deps Deps
}

// NewServiceHandlers creates a new service handlers instance
func NewServiceHandlers(deps Deps) *ServiceHandlers {
	return &ServiceHandlers{deps: deps}
}

// RegisterRoutes registers service registry routes
func (h *ServiceHandlers) RegisterRoutes(router *mux.Router, perms *middleware.PermissionMiddleware) {
	router.Handle("/services", perms.RequirePermissions("read:services")(http.HandlerFunc(h.listServices))).Methods("GET")
	router.Handle("/services", perms.RequirePermissions("create:services")(http.HandlerFunc(h.registerService))).Methods("POST")
	router.Handle("/services/{name}", perms.RequirePermissions("delete:services")(http.HandlerFunc(h.deregisterService))).Methods("DELETE")
}

// listServices handles GET /api/v1/admin/services
func (h *ServiceHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"services": h.deps.Registry.List(),
	})
}

// registerService handles POST /api/v1/admin/services. Registration is
// in-memory; bootstrap services come from configuration at startup.
func (h *ServiceHandlers) registerService(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ClaimsFromRequest(r)

	var req struct {
		Name      string `json:"name"`
		BaseURL   string `json:"base_url"`
		TimeoutMS int    `json:"timeout_ms"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" || req.BaseURL == "" {
		httputil.WriteBadRequest(w, "name and base_url are required")
		return
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if err := h.deps.Registry.Register(req.Name, req.BaseURL, timeout); err != nil {
		if errors.Is(err, proxy.ErrDuplicateService) {
			httputil.WriteConflict(w, "a service with this name is already registered")
			return
		}
		httputil.WriteBadRequest(w, "base_url must be an absolute URL")
		return
	}

	recordAudit(h.deps, r, audit.EventAdminServiceRegister, audit.StatusSuccess, actorID(actor), req.Name, "service registered", map[string]interface{}{
		"base_url": req.BaseURL,
	})
	h.deps.Dispatcher.Trigger(webhooks.EventAdminAction, map[string]interface{}{
		"action":   "register_service",
		"actor_id": actorID(actor),
		"service":  req.Name,
	})

	httputil.WriteCreated(w, map[string]string{"name": req.Name})
}

// deregisterService handles DELETE /api/v1/admin/services/{name}
func (h *ServiceHandlers) deregisterService(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	actor := middleware.ClaimsFromRequest(r)

	if err := h.deps.Registry.Deregister(name); err != nil {
		httputil.WriteNotFound(w, "unknown service")
		return
	}

	recordAudit(h.deps, r, audit.EventAdminServiceDeregister, audit.StatusSuccess, actorID(actor), name, "service deregistered", nil)

	httputil.WriteNoContent(w)
}
