package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/gateway/pkg/audit"
	"github.com/platinummonkey/gateway/pkg/auth"
	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/middleware"
	"github.com/platinummonkey/gateway/pkg/observability"
	"github.com/platinummonkey/gateway/pkg/proxy"
	"github.com/platinummonkey/gateway/pkg/rbac"
	"github.com/platinummonkey/gateway/pkg/session"
	"github.com/platinummonkey/gateway/pkg/users"
	"github.com/platinummonkey/gateway/pkg/webhooks"
)

// Deps bundles the services the API server routes requests into
type Deps struct {
	Users    *users.Store
	Roles    *rbac.Store
	Tokens   *auth.TokenService
	Refresh  *auth.RefreshService
	APIKeys  *auth.APIKeyService
	Sessions session.Store

	Webhooks   *webhooks.Store
	Dispatcher *webhooks.Dispatcher

	Proxy    *proxy.Dispatcher
	Registry *proxy.Registry

	Audit audit.Logger

	// SessionTTL bounds the lifetime of server-side sessions
	SessionTTL time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// ProxyPrefix is the route prefix for the forwarding catch-all,
	// e.g. "/api/v1/proxy"
	ProxyPrefix string

	// Development relaxes error responses: permission denials list the
	// missing permissions instead of a generic message
	Development bool
}

// Server is the gateway HTTP API
type Server struct {
	deps   Deps
	router *mux.Router

	authMW *middleware.AuthMiddleware
	perms  *middleware.PermissionMiddleware
}

// NewServer creates the API server and registers all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
		authMW: middleware.NewAuthMiddleware(deps.Tokens, "", deps.Logger, deps.Metrics),
		perms:  middleware.NewPermissionMiddleware(deps.Logger, deps.Metrics),
	}
	s.perms.ExposeMissing = deps.Development
	if deps.APIKeys != nil {
		s.authMW.WithAPIKeys(deps.APIKeys)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	authHandlers := NewAuthHandlers(s.deps)
	authHandlers.RegisterRoutes(s.router, s.authMW)

	apiKeyHandlers := NewAPIKeyHandlers(s.deps)
	keys := s.router.PathPrefix("/api/v1/keys").Subrouter()
	keys.Use(s.authMW.Handler)
	apiKeyHandlers.RegisterRoutes(keys)

	admin := s.router.PathPrefix("/api/v1/admin").Subrouter()
	admin.Use(s.authMW.Handler)

	NewUserHandlers(s.deps).RegisterRoutes(admin, s.perms)
	apiKeyHandlers.RegisterAdminRoutes(admin, s.perms)
	NewRoleHandlers(s.deps).RegisterRoutes(admin, s.perms)
	NewServiceHandlers(s.deps).RegisterRoutes(admin, s.perms)
	NewWebhookHandlers(s.deps).RegisterRoutes(admin, s.perms)
	NewAuditHandlers(s.deps).RegisterRoutes(admin, s.perms)

	// Proxy catch-all: everything below the prefix is forwarded to the
	// named upstream service
	forward := s.authMW.Handler(
		s.perms.RequirePermissions("access:services")(
			http.HandlerFunc(s.forwardToService)))
	s.router.PathPrefix(s.deps.ProxyPrefix + "/{service}").Handler(forward)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// forwardToService dispatches an authenticated request to the upstream
// named in the path. Tokens scoped to a service are only honored for
// that service.
func (s *Server) forwardToService(w http.ResponseWriter, r *http.Request) {
	serviceName := mux.Vars(r)["service"]

	claims := middleware.ClaimsFromRequest(r)
	if claims != nil && claims.Service != "" && claims.Service != serviceName {
		httputil.WriteUnauthorized(w, "invalid or expired token")
		return
	}

	s.deps.Proxy.Forward(w, r, serviceName)
}
