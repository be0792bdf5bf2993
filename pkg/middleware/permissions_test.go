package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/platinummonkey/gateway/pkg/auth"
	"github.com/platinummonkey/gateway/pkg/contextkeys"
	"github.com/platinummonkey/gateway/pkg/observability"
)

func newPermissionMiddleware() *PermissionMiddleware {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewPermissionMiddleware(logger, nil)
}

func requestWithClaims(perms []string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	claims := &auth.Claims{UserID: "user-1", Permissions: perms}
	return req.WithContext(contextkeys.WithPrincipal(req.Context(), claims))
}

func TestRequirePermissions(t *testing.T) {
	mw := newPermissionMiddleware()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		required []string
		have     []string
		want     int
	}{
		{
			name:     "all present",
			required: []string{"read:users", "update:users"},
			have:     []string{"read:users", "update:users", "read:stats"},
			want:     http.StatusOK,
		},
		{
			name:     "one missing fails the whole check",
			required: []string{"read:users", "delete:users"},
			have:     []string{"read:users"},
			want:     http.StatusForbidden,
		},
		{
			name:     "empty claim set",
			required: []string{"read:users"},
			have:     nil,
			want:     http.StatusForbidden,
		},
		{
			name:     "no requirements always passes",
			required: nil,
			have:     nil,
			want:     http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mw.RequirePermissions(tt.required...)(next).ServeHTTP(rec, requestWithClaims(tt.have))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequirePermissionsNoPrincipal(t *testing.T) {
	mw := newPermissionMiddleware()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a principal")
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	rec := httptest.NewRecorder()
	mw.RequirePermissions("read:users")(next).ServeHTTP(rec, req)

	// a guard without a principal is a wiring bug, not an auth failure
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRequirePermissionsGenericBody(t *testing.T) {
	mw := newPermissionMiddleware()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	mw.RequirePermissions("delete:users")(next).ServeHTTP(rec, requestWithClaims([]string{"read:users"}))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "delete:users") {
		t.Errorf("production 403 body must not enumerate missing permissions: %s", rec.Body.String())
	}
}

func TestRequirePermissionsExposeMissing(t *testing.T) {
	mw := newPermissionMiddleware()
	mw.ExposeMissing = true
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	mw.RequirePermissions("delete:users")(next).ServeHTTP(rec, requestWithClaims([]string{"read:users"}))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "delete:users") {
		t.Errorf("development 403 body should name the missing permission: %s", rec.Body.String())
	}
}
