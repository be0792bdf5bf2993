package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsTotal *prometheus.CounterVec
	TokensIssuedTotal *prometheus.CounterVec

	// Authorization metrics
	PermissionChecksTotal *prometheus.CounterVec

	// Proxy metrics
	ProxyRequestsTotal   *prometheus.CounterVec
	ProxyUpstreamSeconds *prometheus.HistogramVec

	// Webhook metrics
	WebhookAttemptsTotal   *prometheus.CounterVec
	WebhookDeliverySeconds *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_auth_attempts_total",
				Help: "Total number of authentication attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_tokens_issued_total",
				Help: "Total number of tokens issued by type",
			},
			[]string{"type"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_permission_checks_total",
				Help: "Total number of permission checks by outcome",
			},
			[]string{"outcome"},
		),
		ProxyRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_proxy_requests_total",
				Help: "Total number of proxied requests by service and status",
			},
			[]string{"service", "status"},
		),
		ProxyUpstreamSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_proxy_upstream_duration_seconds",
				Help:    "Upstream response time for proxied requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		WebhookAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_webhook_attempts_total",
				Help: "Total number of webhook delivery attempts by outcome",
			},
			[]string{"event", "outcome"},
		),
		WebhookDeliverySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_webhook_delivery_duration_seconds",
				Help:    "Webhook delivery attempt duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_sessions_active",
				Help: "Number of active SSO sessions",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.TokensIssuedTotal,
		m.PermissionChecksTotal,
		m.ProxyRequestsTotal,
		m.ProxyUpstreamSeconds,
		m.WebhookAttemptsTotal,
		m.WebhookDeliverySeconds,
		m.SessionsActive,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one handled HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveProxyRequest records one proxied request
func (m *Metrics) ObserveProxyRequest(service string, status int, duration time.Duration) {
	m.ProxyRequestsTotal.WithLabelValues(service, strconv.Itoa(status)).Inc()
	m.ProxyUpstreamSeconds.WithLabelValues(service).Observe(duration.Seconds())
}

// ObserveWebhookAttempt records one webhook delivery attempt
func (m *Metrics) ObserveWebhookAttempt(event string, success bool, duration time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.WebhookAttemptsTotal.WithLabelValues(event, outcome).Inc()
	m.WebhookDeliverySeconds.WithLabelValues(event).Observe(duration.Seconds())
}
