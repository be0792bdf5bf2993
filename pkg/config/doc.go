// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	GATEWAY_HOST="0.0.0.0"
//	GATEWAY_PORT="8080"
//	GATEWAY_HEALTH_PORT="9090"
//	GATEWAY_READ_TIMEOUT="15s"
//	GATEWAY_WRITE_TIMEOUT="15s"
//
// Database and cache settings:
//
//	GATEWAY_POSTGRES_URL="postgres://localhost/gateway"
//	GATEWAY_POSTGRES_MAX_CONNS="25"
//	GATEWAY_REDIS_ADDR="localhost:6379"
//
// Auth settings:
//
//	GATEWAY_JWT_SECRET="<at least 32 bytes>"
//	GATEWAY_EMAIL_PEPPER="<blind index key>"
//	GATEWAY_ACCESS_TOKEN_TTL="24h"
//	GATEWAY_REFRESH_TOKEN_TTL="168h"
//
// Proxy and webhook settings:
//
//	GATEWAY_SERVICES="billing=http://billing:8080,analytics=http://analytics:8081"
//	GATEWAY_UPSTREAM_TIMEOUT="30s"
//	GATEWAY_WEBHOOK_LOG_RETENTION="720h"
//	GATEWAY_WEBHOOK_PURGE_SCHEDULE="0 3 * * *"
//
// Observability settings:
//
//	GATEWAY_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEWAY_METRICS_ENABLED="true"
//	GATEWAY_OTEL_ENABLED="false"
//	GATEWAY_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/observability: Uses observability configuration
//   - pkg/auth: Uses auth configuration
package config
