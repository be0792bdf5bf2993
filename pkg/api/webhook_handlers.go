package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/gateway/pkg/audit"
	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/middleware"
	"github.com/platinummonkey/gateway/pkg/webhooks"
)

// WebhookHandlers manages webhook registrations, test deliveries and
// delivery logs
type WebhookHandlers struct {
	deps Deps
}

// NewWebhookHandlers creates a new webhook handlers instance
func NewWebhookHandlers(deps Deps) *WebhookHandlers {
	return &WebhookHandlers{deps: deps}
}

// RegisterRoutes registers webhook management routes
func (h *WebhookHandlers) RegisterRoutes(router *mux.Router, perms *middleware.PermissionMiddleware) {
	router.Handle("/webhooks", perms.RequirePermissions("read:webhooks")(http.HandlerFunc(h.listWebhooks))).Methods("GET")
	router.Handle("/webhooks", perms.RequirePermissions("create:webhooks")(http.HandlerFunc(h.createWebhook))).Methods("POST")
	router.Handle("/webhooks/events", perms.RequirePermissions("read:webhooks")(http.HandlerFunc(h.listEvents))).Methods("GET")
	router.Handle("/webhooks/{id}", perms.RequirePermissions("read:webhooks")(http.HandlerFunc(h.getWebhook))).Methods("GET")
	router.Handle("/webhooks/{id}", perms.RequirePermissions("update:webhooks")(http.HandlerFunc(h.updateWebhook))).Methods("PUT")
	router.Handle("/webhooks/{id}", perms.RequirePermissions("delete:webhooks")(http.HandlerFunc(h.deleteWebhook))).Methods("DELETE")
	router.Handle("/webhooks/{id}/test", perms.RequirePermissions("update:webhooks")(http.HandlerFunc(h.testWebhook))).Methods("POST")
	router.Handle("/webhooks/{id}/logs", perms.RequirePermissions("read:logs")(http.HandlerFunc(h.listLogs))).Methods("GET")
}

// webhookRequest is the create/update payload. Retry and timeout values
// outside the allowed ranges clamp to the nearest bound.
type webhookRequest struct {
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Events     []string          `json:"events"`
	Headers    map[string]string `json:"headers"`
	RetryCount *int              `json:"retry_count"`
	TimeoutMS  *int              `json:"timeout_ms"`
	Active     *bool             `json:"is_active"`
}

// listWebhooks handles GET /api/v1/admin/webhooks
func (h *WebhookHandlers) listWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.deps.Webhooks.List(r.Context())
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to list webhooks")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, hooks)
}

// listEvents handles GET /api/v1/admin/webhooks/events
func (h *WebhookHandlers) listEvents(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"events": webhooks.KnownEvents,
	})
}

// createWebhook handles POST /api/v1/admin/webhooks. The generated
// signing secret is returned exactly once, in this response.
func (h *WebhookHandlers) createWebhook(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ClaimsFromRequest(r)

	var req webhookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.URL == "" {
		httputil.WriteBadRequest(w, "url is required")
		return
	}
	if len(req.Events) == 0 {
		httputil.WriteBadRequest(w, webhooks.ErrNoEvents.Error())
		return
	}
	for _, event := range req.Events {
		if !knownEvent(event) {
			httputil.WriteBadRequest(w, "unknown event: "+event)
			return
		}
	}

	hook := &webhooks.Webhook{
		Name:      req.Name,
		URL:       req.URL,
		Events:    req.Events,
		Headers:   req.Headers,
		CreatedBy: actorID(actor),
	}
	if req.RetryCount != nil {
		hook.RetryCount = *req.RetryCount
	} else {
		hook.RetryCount = webhooks.DefaultRetryCount
	}
	if req.TimeoutMS != nil {
		hook.Timeout = time.Duration(*req.TimeoutMS) * time.Millisecond
	}

	if err := h.deps.Webhooks.Create(r.Context(), hook); err != nil {
		h.deps.Logger.WithError(err).Error("failed to create webhook")
		httputil.WriteInternalError(w)
		return
	}

	recordAudit(h.deps, r, audit.EventConfigWebhookCreate, audit.StatusSuccess, actorID(actor), hook.ID, "webhook created", map[string]interface{}{
		"url": hook.URL,
	})

	// Webhook JSON omits the secret; the one-time reveal rides alongside
	httputil.WriteCreated(w, map[string]interface{}{
		"webhook": hook,
		"secret":  hook.Secret,
	})
}

// getWebhook handles GET /api/v1/admin/webhooks/{id}
func (h *WebhookHandlers) getWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	hook, err := h.deps.Webhooks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, webhooks.ErrWebhookNotFound) {
			httputil.WriteNotFound(w, "webhook not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to load webhook")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, hook)
}

// updateWebhook handles PUT /api/v1/admin/webhooks/{id}
func (h *WebhookHandlers) updateWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := middleware.ClaimsFromRequest(r)

	var req webhookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	hook, err := h.deps.Webhooks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, webhooks.ErrWebhookNotFound) {
			httputil.WriteNotFound(w, "webhook not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to load webhook")
		httputil.WriteInternalError(w)
		return
	}

	if req.Name != "" {
		hook.Name = req.Name
	}
	if req.URL != "" {
		hook.URL = req.URL
	}
	if req.Events != nil {
		for _, event := range req.Events {
			if !knownEvent(event) {
				httputil.WriteBadRequest(w, "unknown event: "+event)
				return
			}
		}
		hook.Events = req.Events
	}
	if req.Headers != nil {
		hook.Headers = req.Headers
	}
	if req.RetryCount != nil {
		hook.RetryCount = *req.RetryCount
	}
	if req.TimeoutMS != nil {
		hook.Timeout = time.Duration(*req.TimeoutMS) * time.Millisecond
	}
	if req.Active != nil {
		hook.Active = *req.Active
	}

	if err := h.deps.Webhooks.Update(r.Context(), hook); err != nil {
		h.deps.Logger.WithError(err).Error("failed to update webhook")
		httputil.WriteInternalError(w)
		return
	}

	recordAudit(h.deps, r, audit.EventConfigWebhookUpdate, audit.StatusSuccess, actorID(actor), id, "webhook updated", nil)

	httputil.WriteSuccess(w, hook)
}

// deleteWebhook handles DELETE /api/v1/admin/webhooks/{id}
func (h *WebhookHandlers) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := middleware.ClaimsFromRequest(r)

	if err := h.deps.Webhooks.Delete(r.Context(), id); err != nil {
		if errors.Is(err, webhooks.ErrWebhookNotFound) {
			httputil.WriteNotFound(w, "webhook not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to delete webhook")
		httputil.WriteInternalError(w)
		return
	}

	recordAudit(h.deps, r, audit.EventConfigWebhookDelete, audit.StatusSuccess, actorID(actor), id, "webhook deleted", nil)

	httputil.WriteNoContent(w)
}

// testWebhook handles POST /api/v1/admin/webhooks/{id}/test. The test
// delivery is a single attempt and does not touch the delivery counters.
func (h *WebhookHandlers) testWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := h.deps.Dispatcher.Test(r.Context(), id)
	if err != nil {
		if errors.Is(err, webhooks.ErrWebhookNotFound) {
			httputil.WriteNotFound(w, "webhook not found")
			return
		}
		h.deps.Logger.WithError(err).Error("webhook test failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, result)
}

// listLogs handles GET /api/v1/admin/webhooks/{id}/logs
func (h *WebhookHandlers) listLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit := queryInt(r, "limit", 0)

	logs, err := h.deps.Webhooks.ListLogs(r.Context(), id, limit)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to list webhook logs")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, logs)
}

// knownEvent reports whether the event name is one the gateway emits
func knownEvent(event string) bool {
	for _, known := range webhooks.KnownEvents {
		if event == known {
			return true
		}
	}
	return false
}
