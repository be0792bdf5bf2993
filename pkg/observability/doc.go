// Package observability provides logging, metrics, health checks and
// graceful shutdown for the gateway.
//
// Logging is structured JSON on top of log/slog. Metrics are Prometheus
// collectors registered on a private registry and served from the health
// port. Tracing is optional OTLP and disabled unless configured.
//
// The health endpoints follow the usual kubernetes split:
//
//	/healthz - liveness, always 200 while the process runs
//	/readyz  - readiness, checks Postgres and Redis
//	/metrics - Prometheus scrape endpoint
package observability
