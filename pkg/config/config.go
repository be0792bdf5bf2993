package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/gateway/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Proxy         ProxyConfig
	Webhooks      WebhookConfig
	Observability ObservabilityConfig

	// Development relaxes production hardening: 403 responses enumerate
	// missing permissions. Never enable in production.
	Development bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes)
	HealthPort string
}

// DatabaseConfig holds Postgres settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis settings. When Addr is empty the gateway runs
// with in-process session and rate-limit state.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig holds token and credential settings
type AuthConfig struct {
	// JWTSecret signs access tokens (HMAC)
	JWTSecret string
	// EmailPepper keys the email blind index; rotating it orphans every
	// stored credential, treat it like a KMS root
	EmailPepper string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SessionTTL      time.Duration
}

// ProxyConfig holds upstream forwarding settings
type ProxyConfig struct {
	// Prefix is the gateway route prefix stripped before forwarding
	Prefix string
	// Services maps service names to base URLs, parsed from
	// "name=url,name=url"
	Services map[string]string
	// UpstreamTimeout bounds each forwarded request
	UpstreamTimeout time.Duration
}

// WebhookConfig holds delivery settings
type WebhookConfig struct {
	// LogRetention is how long delivery logs are kept
	LogRetention time.Duration
	// PurgeSchedule is the cron expression for the log purge job
	PurgeSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GATEWAY_HOST", "0.0.0.0"),
			Port:            getEnv("GATEWAY_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GATEWAY_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GATEWAY_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GATEWAY_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GATEWAY_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("GATEWAY_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("GATEWAY_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("GATEWAY_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("GATEWAY_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("GATEWAY_POSTGRES_CONN_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("GATEWAY_REDIS_ADDR", ""),
			Password: getEnv("GATEWAY_REDIS_PASSWORD", ""),
			DB:       getEnvInt("GATEWAY_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("GATEWAY_JWT_SECRET", ""),
			EmailPepper:     getEnv("GATEWAY_EMAIL_PEPPER", ""),
			AccessTokenTTL:  getEnvDuration("GATEWAY_ACCESS_TOKEN_TTL", 24*time.Hour),
			RefreshTokenTTL: getEnvDuration("GATEWAY_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			SessionTTL:      getEnvDuration("GATEWAY_SESSION_TTL", 24*time.Hour),
		},
		Proxy: ProxyConfig{
			Prefix:          getEnv("GATEWAY_PROXY_PREFIX", "/api/v1/proxy"),
			Services:        parseServiceMap(getEnv("GATEWAY_SERVICES", "")),
			UpstreamTimeout: getEnvDuration("GATEWAY_UPSTREAM_TIMEOUT", 30*time.Second),
		},
		Webhooks: WebhookConfig{
			LogRetention:  getEnvDuration("GATEWAY_WEBHOOK_LOG_RETENTION", 30*24*time.Hour),
			PurgeSchedule: getEnv("GATEWAY_WEBHOOK_PURGE_SCHEDULE", "0 3 * * *"),
		},
		Observability: ObservabilityConfig{
			LogLevel:           parseLogLevel(getEnv("GATEWAY_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("GATEWAY_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("GATEWAY_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("GATEWAY_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("GATEWAY_OTEL_SERVICE_NAME", "gateway"),
			OTelServiceVersion: getEnv("GATEWAY_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("GATEWAY_OTEL_INSECURE", true),
		},
		Development: getEnvBool("GATEWAY_DEVELOPMENT", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.Auth.EmailPepper == "" {
		return fmt.Errorf("email pepper is required")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}
	return nil
}

// parseServiceMap parses "name=url,name=url" into a map
func parseServiceMap(raw string) map[string]string {
	services := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || name == "" || url == "" {
			continue
		}
		services[strings.TrimSpace(name)] = strings.TrimSpace(url)
	}
	return services
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
