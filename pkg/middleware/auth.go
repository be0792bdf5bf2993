package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/gateway/pkg/auth"
	"github.com/platinummonkey/gateway/pkg/contextkeys"
	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/observability"
)

const (
	bearerPrefix = "Bearer "

	// apiKeyHeader carries an API key credential as an alternative to a
	// bearer token
	apiKeyHeader = "X-API-Key"
)

// AuthMiddleware validates bearer tokens and attaches the decoded claims
// to the request context
type AuthMiddleware struct {
	tokens  *auth.TokenService
	apiKeys *auth.APIKeyService
	service string
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewAuthMiddleware creates an auth middleware. service scopes token
// verification; pass "" to accept tokens for any service.
func NewAuthMiddleware(tokens *auth.TokenService, service string, logger *observability.Logger, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, service: service, logger: logger, metrics: metrics}
}

// WithAPIKeys enables API key authentication: a request presenting the
// X-API-Key header is authenticated against the key store instead of
// the token service.
func (m *AuthMiddleware) WithAPIKeys(keys *auth.APIKeyService) *AuthMiddleware {
	m.apiKeys = keys
	return m
}

// Handler rejects requests without a valid bearer token or API key.
// All failure modes of a given credential type produce the same
// response shape.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get(apiKeyHeader); key != "" && m.apiKeys != nil {
			m.serveWithAPIKey(w, r, next, key)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, bearerPrefix) {
			m.reject("missing_token")
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		token := strings.TrimPrefix(header, bearerPrefix)
		claims, err := m.tokens.Verify(token, m.service)
		if err != nil {
			m.logger.WithField("reason", err.Error()).Debug("token rejected")
			m.reject("invalid_token")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// serveWithAPIKey authenticates an API key and attaches a principal
// carrying the key's own permission set. A key whose owning account is
// deactivated or blocked is refused with 403 rather than 401.
func (m *AuthMiddleware) serveWithAPIKey(w http.ResponseWriter, r *http.Request, next http.Handler, key string) {
	ak, err := m.apiKeys.Verify(r.Context(), key)
	if err != nil {
		if errors.Is(err, auth.ErrAPIKeyUserDisabled) {
			m.reject("disabled_api_key")
			httputil.WriteForbidden(w, "account is disabled")
			return
		}
		m.logger.WithField("reason", err.Error()).Debug("API key rejected")
		m.reject("invalid_api_key")
		httputil.WriteUnauthorized(w, "invalid or expired API key")
		return
	}

	claims := &auth.Claims{
		UserID:      ak.UserID,
		Permissions: ak.Permissions,
	}
	ctx := contextkeys.WithPrincipal(r.Context(), claims)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (m *AuthMiddleware) reject(outcome string) {
	if m.metrics != nil {
		m.metrics.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

// ClaimsFromRequest extracts the authenticated principal set by Handler
func ClaimsFromRequest(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(contextkeys.PrincipalKey).(*auth.Claims)
	return claims
}
