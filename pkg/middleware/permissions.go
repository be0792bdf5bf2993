package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/observability"
)

// PermissionMiddleware enforces permission requirements against the
// claims embedded in the access token. Checks never hit the database.
type PermissionMiddleware struct {
	logger  *observability.Logger
	metrics *observability.Metrics

	// ExposeMissing includes the unmet permission list in 403 bodies.
	// Development aid only; in production the body stays generic so the
	// endpoint cannot be used to enumerate the permission taxonomy.
	ExposeMissing bool
}

// NewPermissionMiddleware creates a permission middleware
func NewPermissionMiddleware(logger *observability.Logger, metrics *observability.Metrics) *PermissionMiddleware {
	return &PermissionMiddleware{logger: logger, metrics: metrics}
}

// RequirePermissions guards a handler with an AND check: every listed
// "action:subject" permission must be present in the principal's claims.
// A request reaching this guard without a principal is a routing bug and
// returns 500, not 401.
func (m *PermissionMiddleware) RequirePermissions(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromRequest(r)
			if claims == nil {
				m.logger.WithField("path", r.URL.Path).Error("permission check reached without principal")
				httputil.WriteInternalError(w)
				return
			}

			have := claims.PermissionSet()
			var missing []string
			for _, perm := range perms {
				if _, ok := have[perm]; !ok {
					missing = append(missing, perm)
				}
			}

			if len(missing) > 0 {
				m.observe("denied")
				m.logger.WithFields(map[string]interface{}{
					"user_id": claims.UserID,
					"path":    r.URL.Path,
					"missing": missing,
				}).Warn("permission denied")

				if m.ExposeMissing {
					httputil.WriteDetailedError(w, http.StatusForbidden, "insufficient permissions", map[string]string{
						"missing": strings.Join(missing, ", "),
					})
					return
				}
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			m.observe("granted")
			next.ServeHTTP(w, r)
		})
	}
}

func (m *PermissionMiddleware) observe(outcome string) {
	if m.metrics != nil {
		m.metrics.PermissionChecksTotal.WithLabelValues(outcome).Inc()
	}
}
