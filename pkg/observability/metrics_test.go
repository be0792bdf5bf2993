package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsObserve(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveHTTPRequest("GET", "/api/v1/auth/login", 200, 15*time.Millisecond)
	m.ObserveProxyRequest("billing", 502, 30*time.Millisecond)
	m.ObserveWebhookAttempt("user.connected", true, 5*time.Millisecond)
	m.ObserveWebhookAttempt("user.connected", false, 5*time.Millisecond)
	m.AuthAttemptsTotal.WithLabelValues("invalid_token").Inc()
	m.PermissionChecksTotal.WithLabelValues("denied").Inc()
	m.SessionsActive.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`gateway_http_requests_total{method="GET",path="/api/v1/auth/login",status="200"} 1`,
		`gateway_proxy_requests_total{service="billing",status="502"} 1`,
		`gateway_webhook_attempts_total{event="user.connected",outcome="success"} 1`,
		`gateway_webhook_attempts_total{event="user.connected",outcome="failure"} 1`,
		`gateway_auth_attempts_total{outcome="invalid_token"} 1`,
		`gateway_permission_checks_total{outcome="denied"} 1`,
		`gateway_sessions_active 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in scrape output", want)
		}
	}
}

func TestNewMetricsNilRegistry(t *testing.T) {
	m := NewMetrics(nil)
	if m.Handler() == nil {
		t.Fatal("expected a scrape handler")
	}
}
