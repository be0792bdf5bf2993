package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/gateway/pkg/auth"
	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/middleware"
	"github.com/platinummonkey/gateway/pkg/observability"
)

// ErrUpstreamUnavailable indicates the upstream could not be reached
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// forwardedRequestHeaders is the complete set of client headers that may
// cross the trust boundary. Everything else is dropped, so a client
// cannot spoof X-User-Id or any other gateway-set header.
var forwardedRequestHeaders = []string{"Content-Type", "Authorization"}

// Dispatcher forwards requests to upstream services
type Dispatcher struct {
	registry *Registry
	client   *http.Client
	logger   *observability.Logger
	metrics  *observability.Metrics
	prefix   string
}

// NewDispatcher creates a proxy dispatcher. prefix is the gateway route
// prefix stripped before forwarding, e.g. "/api/v1/proxy".
func NewDispatcher(registry *Registry, client *http.Client, prefix string, logger *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{
		registry: registry,
		client:   client,
		logger:   logger,
		metrics:  metrics,
		prefix:   strings.TrimSuffix(prefix, "/"),
	}
}

// Forward relays the request to the named service. The upstream response
// is relayed verbatim: status, headers and body, including 429 responses
// with their rate-limit headers. Transport failures map to 502. There
// are no retries at this layer; retrying non-idempotent requests is the
// caller's decision, not the gateway's.
func (d *Dispatcher) Forward(w http.ResponseWriter, r *http.Request, serviceName string) {
	svc, err := d.registry.Lookup(serviceName)
	if err != nil {
		httputil.WriteNotFound(w, "unknown service")
		return
	}

	claims := middleware.ClaimsFromRequest(r)
	if claims == nil {
		d.logger.WithField("service", serviceName).Error("proxy reached without principal")
		httputil.WriteInternalError(w)
		return
	}

	upstreamURL := d.upstreamURL(svc, r)

	ctx, cancel := context.WithTimeout(r.Context(), svc.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL, r.Body)
	if err != nil {
		d.logger.WithError(err).Error("failed to build upstream request")
		httputil.WriteInternalError(w)
		return
	}

	d.setHeaders(req, r, claims)

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		d.observe(serviceName, http.StatusBadGateway, time.Since(start))
		d.logger.WithFields(map[string]interface{}{
			"service": serviceName,
			"error":   err.Error(),
		}).Warn("upstream request failed")
		httputil.WriteBadGateway(w, "upstream unavailable")
		return
	}
	defer resp.Body.Close()

	d.observe(serviceName, resp.StatusCode, time.Since(start))

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		d.logger.WithError(err).Debug("upstream body relay interrupted")
	}
}

// upstreamURL joins the service base URL with the request path minus the
// gateway prefix and service segment
func (d *Dispatcher) upstreamURL(svc *Service, r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, d.prefix+"/"+svc.Name)
	if path == "" {
		path = "/"
	}

	u := *svc.BaseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = r.URL.RawQuery
	return u.String()
}

func (d *Dispatcher) setHeaders(req *http.Request, original *http.Request, claims *auth.Claims) {
	for _, key := range forwardedRequestHeaders {
		if v := original.Header.Get(key); v != "" {
			req.Header.Set(key, v)
		}
	}
	req.Header.Set("X-User-Id", claims.UserID)
	req.Header.Set("X-User-Roles", strings.Join(claims.Roles, ","))
}

func (d *Dispatcher) observe(service string, status int, elapsed time.Duration) {
	if d.metrics != nil {
		d.metrics.ObserveProxyRequest(service, status, elapsed)
	}
}
