package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/gateway/pkg/audit"
	"github.com/platinummonkey/gateway/pkg/auth"
	"github.com/platinummonkey/gateway/pkg/contextkeys"
	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/middleware"
	"github.com/platinummonkey/gateway/pkg/rbac"
	"github.com/platinummonkey/gateway/pkg/session"
	"github.com/platinummonkey/gateway/pkg/users"
	"github.com/platinummonkey/gateway/pkg/webhooks"
)

// minPasswordLength is enforced on signup only; existing hashes are
// never re-validated
const minPasswordLength = 8

// AuthHandlers handles signup, login, token refresh and logout
type AuthHandlers struct {
	deps Deps
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(deps Deps) *AuthHandlers {
	return &AuthHandlers{deps: deps}
}

// RegisterRoutes registers authentication routes. Signup, login and
// refresh are public; logout and profile routes require a valid token.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, authMW *middleware.AuthMiddleware) {
	router.HandleFunc("/api/v1/auth/signup", h.signup).Methods("POST")
	router.HandleFunc("/api/v1/auth/login", h.login).Methods("POST")
	router.HandleFunc("/api/v1/auth/refresh", h.refresh).Methods("POST")

	protected := router.PathPrefix("/api/v1/auth").Subrouter()
	protected.Use(authMW.Handler)
	protected.HandleFunc("/logout", h.logout).Methods("POST")
	protected.HandleFunc("/me", h.me).Methods("GET")
	protected.HandleFunc("/me", h.updateProfile).Methods("PUT")
}

// tokenResponse is the body of a successful login or refresh
type tokenResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token"`
	SessionID    string      `json:"session_id,omitempty"`
	ExpiresIn    int64       `json:"expires_in"`
	User         *users.User `json:"user,omitempty"`
}

// signup handles POST /api/v1/auth/signup
func (h *AuthHandlers) signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Email == "" || !strings.Contains(req.Email, "@") {
		httputil.WriteBadRequest(w, "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		httputil.WriteBadRequest(w, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}

	user, err := h.deps.Users.Create(r.Context(), req.Email, hash, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, users.ErrDuplicateCredential) {
			httputil.WriteConflict(w, "an account with this email already exists")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to create user")
		httputil.WriteInternalError(w)
		return
	}

	h.audit(r, audit.EventAuthSignup, audit.StatusSuccess, user.ID, "", "account created", nil)
	h.deps.Dispatcher.Trigger(webhooks.EventUserRegistered, map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
	})
	httputil.WriteCreated(w, user)
}

// login handles POST /api/v1/auth/login. All credential failures return
// the same generic message so the endpoint does not leak which emails
// have accounts.
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Service  string `json:"service"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.deps.Users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			h.loginFailed(r, "", "unknown email")
			httputil.WriteUnauthorized(w, "invalid credentials")
			return
		}
		h.deps.Logger.WithError(err).Error("login lookup failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.loginFailed(r, user.ID, "bad password")
		httputil.WriteUnauthorized(w, "invalid credentials")
		return
	}

	if !user.CanAuthenticate() {
		h.loginFailed(r, user.ID, "account disabled or blocked")
		httputil.WriteForbidden(w, "account is disabled")
		return
	}

	roles, err := h.deps.Roles.GetUserRoles(r.Context(), user.ID)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to load user roles")
		httputil.WriteInternalError(w)
		return
	}

	token, err := h.deps.Tokens.Issue(user.ID, req.Service, rbac.RoleNames(roles), rbac.Flatten(roles))
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to issue token")
		httputil.WriteInternalError(w)
		return
	}

	refreshToken, err := h.deps.Refresh.Mint(r.Context(), user.ID)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to mint refresh token")
		httputil.WriteInternalError(w)
		return
	}
	h.tokenIssued("access")
	h.tokenIssued("refresh")

	sess := &session.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Service:   req.Service,
		IP:        httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
		CreatedAt: time.Now(),
	}
	if err := h.deps.Sessions.Set(r.Context(), sess, h.deps.SessionTTL); err != nil {
		h.deps.Logger.WithError(err).Warn("failed to store session")
	}
	// Attach once; the audit recorder and anything else downstream reads
	// the session id from the context
	r = r.WithContext(contextkeys.WithSessionID(r.Context(), sess.ID))

	if err := h.deps.Users.RecordLogin(r.Context(), user.ID); err != nil {
		h.deps.Logger.WithError(err).Warn("failed to record login")
	}

	h.audit(r, audit.EventAuthLogin, audit.StatusSuccess, user.ID, "", "login", map[string]interface{}{
		"service": req.Service,
	})
	h.deps.Dispatcher.Trigger(webhooks.EventUserConnected, map[string]interface{}{
		"user_id":    user.ID,
		"email":      user.Email,
		"service":    req.Service,
		"session_id": sess.ID,
		"ip":         sess.IP,
	})
	if req.Service != "" {
		h.deps.Dispatcher.Trigger(webhooks.EventServiceAuthorized, map[string]interface{}{
			"user_id": user.ID,
			"service": req.Service,
		})
	}

	httputil.WriteSuccess(w, tokenResponse{
		Token:        token,
		RefreshToken: refreshToken,
		SessionID:    sess.ID,
		ExpiresIn:    int64(h.deps.Tokens.TTL().Seconds()),
		User:         user,
	})
}

// refresh handles POST /api/v1/auth/refresh. Refresh tokens are single
// use; a successful call rotates the token and issues a fresh access
// token with the user's current roles.
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
		Service      string `json:"service"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteBadRequest(w, "refresh_token is required")
		return
	}

	userID, newRefresh, err := h.deps.Refresh.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshTokenNotFound) || errors.Is(err, auth.ErrRefreshTokenExpired) {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		h.deps.Logger.WithError(err).Error("refresh rotation failed")
		httputil.WriteInternalError(w)
		return
	}

	user, err := h.deps.Users.FindByID(r.Context(), userID)
	if err != nil {
		httputil.WriteUnauthorized(w, "invalid or expired token")
		return
	}
	if !user.CanAuthenticate() {
		httputil.WriteForbidden(w, "account is disabled")
		return
	}

	roles, err := h.deps.Roles.GetUserRoles(r.Context(), user.ID)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to load user roles")
		httputil.WriteInternalError(w)
		return
	}

	token, err := h.deps.Tokens.Issue(user.ID, req.Service, rbac.RoleNames(roles), rbac.Flatten(roles))
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to issue token")
		httputil.WriteInternalError(w)
		return
	}

	h.tokenIssued("access")
	h.tokenIssued("refresh")
	h.audit(r, audit.EventAuthTokenRefresh, audit.StatusSuccess, user.ID, "", "token refreshed", nil)

	httputil.WriteSuccess(w, tokenResponse{
		Token:        token,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(h.deps.Tokens.TTL().Seconds()),
	})
}

// logout handles POST /api/v1/auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)
	if claims == nil {
		httputil.WriteInternalError(w)
		return
	}

	// Body is optional; without it only the audit trail and webhook fire
	var req struct {
		RefreshToken string `json:"refresh_token"`
		SessionID    string `json:"session_id"`
	}
	_ = httputil.ParseJSON(r, &req)

	if req.RefreshToken != "" {
		if err := h.deps.Refresh.Revoke(r.Context(), req.RefreshToken); err != nil {
			h.deps.Logger.WithError(err).Warn("failed to revoke refresh token")
		}
	}
	if req.SessionID != "" {
		if err := h.deps.Sessions.Delete(r.Context(), req.SessionID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			h.deps.Logger.WithError(err).Warn("failed to delete session")
		}
	}

	h.audit(r, audit.EventAuthLogout, audit.StatusSuccess, claims.UserID, "", "logout", nil)
	h.deps.Dispatcher.Trigger(webhooks.EventUserDisconnected, map[string]interface{}{
		"user_id":    claims.UserID,
		"session_id": req.SessionID,
	})

	httputil.WriteNoContent(w)
}

// me handles GET /api/v1/auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)
	if claims == nil {
		httputil.WriteInternalError(w)
		return
	}

	user, err := h.deps.Users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to load profile")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, user)
}

// updateProfile handles PUT /api/v1/auth/me
func (h *AuthHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)
	if claims == nil {
		httputil.WriteInternalError(w)
		return
	}

	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.deps.Users.UpdateProfile(r.Context(), claims.UserID, req.FirstName, req.LastName); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		h.deps.Logger.WithError(err).Error("failed to update profile")
		httputil.WriteInternalError(w)
		return
	}

	h.deps.Dispatcher.Trigger(webhooks.EventProfileUpdated, map[string]interface{}{
		"user_id": claims.UserID,
	})

	user, err := h.deps.Users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		h.deps.Logger.WithError(err).Error("failed to reload profile")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, user)
}

// tokenIssued counts issued credentials by kind ("access" or "refresh")
func (h *AuthHandlers) tokenIssued(kind string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.TokensIssuedTotal.WithLabelValues(kind).Inc()
	}
}

func (h *AuthHandlers) loginFailed(r *http.Request, userID, reason string) {
	h.audit(r, audit.EventAuthLoginFailed, audit.StatusFailure, userID, "", reason, nil)
}

// audit records an event enriched with the request's network identity;
// failures are logged, never surfaced to the client
func (h *AuthHandlers) audit(r *http.Request, eventType audit.EventType, status audit.Status, userID, targetID, message string, metadata map[string]interface{}) {
	recordAudit(h.deps, r, eventType, status, userID, targetID, message, metadata)
}

// recordAudit is shared by all handler groups
func recordAudit(deps Deps, r *http.Request, eventType audit.EventType, status audit.Status, userID, targetID, message string, metadata map[string]interface{}) {
	if deps.Audit == nil {
		return
	}
	if sid := contextkeys.GetSessionID(r.Context()); sid != "" {
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		metadata["session_id"] = sid
	}
	event := &audit.Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Status:    status,
		UserID:    userID,
		TargetID:  targetID,
		IPAddress: httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: contextkeys.GetRequestID(r.Context()),
		Message:   message,
		Metadata:  metadata,
	}
	if err := deps.Audit.Log(r.Context(), event); err != nil {
		deps.Logger.WithError(err).Warn("failed to record audit event")
	}
}
