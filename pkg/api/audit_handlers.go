package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/gateway/pkg/audit"
	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/middleware"
)

// AuditHandlers exposes the audit trail and gateway statistics
type AuditHandlers struct {
	deps Deps
}

// NewAuditHandlers creates a new audit handlers instance
func NewAuditHandlers(deps Deps) *AuditHandlers {
	return &AuditHandlers{deps: deps}
}

// RegisterRoutes registers audit and stats routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router, perms *middleware.PermissionMiddleware) {
	router.Handle("/audit", perms.RequirePermissions("read:audit")(http.HandlerFunc(h.searchAudit))).Methods("GET")
	router.Handle("/stats", perms.RequirePermissions("read:stats")(http.HandlerFunc(h.stats))).Methods("GET")
}

// searchAudit handles GET /api/v1/admin/audit. Filters come from query
// parameters: start, end (RFC3339), user_id, type (comma separated),
// status, limit, offset.
func (h *AuditHandlers) searchAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.Filter{
		UserID: q.Get("user_id"),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}

	if raw := q.Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "start must be RFC3339")
			return
		}
		filter.StartTime = &t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "end must be RFC3339")
			return
		}
		filter.EndTime = &t
	}
	if raw := q.Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			filter.Types = append(filter.Types, audit.EventType(strings.TrimSpace(t)))
		}
	}
	if raw := q.Get("status"); raw != "" {
		status := audit.Status(raw)
		filter.Status = &status
	}

	events, err := h.deps.Audit.Search(r.Context(), filter)
	if err != nil {
		h.deps.Logger.WithError(err).Error("audit search failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// stats handles GET /api/v1/admin/stats
func (h *AuditHandlers) stats(w http.ResponseWriter, r *http.Request) {
	userCount, err := h.deps.Users.Count(r.Context())
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to count users")
		httputil.WriteInternalError(w)
		return
	}

	hooks, err := h.deps.Webhooks.List(r.Context())
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to list webhooks")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"users":    userCount,
		"webhooks": len(hooks),
		"services": len(h.deps.Registry.List()),
	})
}
