package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/platinummonkey/gateway/pkg/api"
	"github.com/platinummonkey/gateway/pkg/audit"
	"github.com/platinummonkey/gateway/pkg/auth"
	"github.com/platinummonkey/gateway/pkg/config"
	"github.com/platinummonkey/gateway/pkg/httputil"
	"github.com/platinummonkey/gateway/pkg/middleware"
	"github.com/platinummonkey/gateway/pkg/observability"
	"github.com/platinummonkey/gateway/pkg/proxy"
	"github.com/platinummonkey/gateway/pkg/rbac"
	"github.com/platinummonkey/gateway/pkg/session"
	"github.com/platinummonkey/gateway/pkg/users"
	"github.com/platinummonkey/gateway/pkg/webhooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Infof("Starting SSO gateway on %s:%s", cfg.Server.Host, cfg.Server.Port)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx := context.Background()

	// Tracing is optional; a nil provider means disabled
	tracerProvider, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		return fmt.Errorf("database unreachable: %w", err)
	}
	cancel()
	logger.Info("Connected to Postgres")

	var redisClient *redis.Client
	var sessions session.Store
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		sessions = session.NewRedisStore(redisClient, "session")
		logger.Infof("Connected to Redis at %s", cfg.Redis.Addr)
	} else {
		sessions = session.NewMemoryStore(8192, cfg.Auth.SessionTTL)
		logger.Warn("Redis not configured, using in-process session store")
	}

	// Seed the permission taxonomy and system roles
	rbacStore := rbac.NewStore(db)
	if err := rbacStore.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}

	indexer := auth.NewBlindIndexer([]byte(cfg.Auth.EmailPepper))
	tokens := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTokenTTL)
	refresh := auth.NewRefreshService(db, cfg.Auth.RefreshTokenTTL)
	apiKeys := auth.NewAPIKeyService(db)
	userStore := users.NewStore(db, indexer)

	serviceRegistry := proxy.NewRegistry()
	for name, baseURL := range cfg.Proxy.Services {
		if err := serviceRegistry.Register(name, baseURL, cfg.Proxy.UpstreamTimeout); err != nil {
			return fmt.Errorf("failed to register service %q: %w", name, err)
		}
		logger.Infof("Registered upstream service %s -> %s", name, baseURL)
	}
	proxyDispatcher := proxy.NewDispatcher(serviceRegistry, &http.Client{}, cfg.Proxy.Prefix, logger, metrics)

	webhookStore := webhooks.NewStore(db)
	webhookDispatcher := webhooks.NewDispatcher(webhookStore, &http.Client{}, logger, metrics)

	auditLogger := audit.NewDBLogger(db, logger, 0)
	defer auditLogger.Close()

	server := api.NewServer(api.Deps{
		Users:       userStore,
		Roles:       rbacStore,
		Tokens:      tokens,
		Refresh:     refresh,
		APIKeys:     apiKeys,
		Sessions:    sessions,
		Webhooks:    webhookStore,
		Dispatcher:  webhookDispatcher,
		Proxy:       proxyDispatcher,
		Registry:    serviceRegistry,
		Audit:       auditLogger,
		SessionTTL:  cfg.Auth.SessionTTL,
		Logger:      logger,
		Metrics:     metrics,
		ProxyPrefix: cfg.Proxy.Prefix,
		Development: cfg.Development,
	})

	var handler http.Handler = server
	if redisClient != nil {
		handler = middleware.NewDistributedRateLimitMiddleware(redisClient, logger).Handler(handler)
	} else {
		handler = middleware.NewRateLimitMiddleware().Handler(handler)
	}
	handler = httputil.MetricsMiddleware(metrics)(handler)
	handler = httputil.LoggingMiddleware(logger)(handler)
	handler = httputil.RecoveryMiddleware(logger)(handler)
	handler = httputil.RequestIDMiddleware(handler)
	if tracerProvider != nil {
		handler = otelhttp.NewHandler(handler, "gateway")
	}

	mainServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Probes and metrics live on their own port so they stay reachable
	// when the main listener is saturated
	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	// Background jobs: webhook log retention and refresh token cleanup
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Webhooks.PurgeSchedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		purged, err := webhookStore.PurgeLogsOlderThan(jobCtx, cfg.Webhooks.LogRetention)
		if err != nil {
			logger.WithError(err).Error("webhook log purge failed")
			return
		}
		logger.Infof("Purged %d webhook delivery logs", purged)

		removed, err := refresh.CleanupExpired(jobCtx)
		if err != nil {
			logger.WithError(err).Error("refresh token cleanup failed")
			return
		}
		logger.Infof("Removed %d expired refresh tokens", removed)
	}); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", cfg.Webhooks.PurgeSchedule, err)
	}
	scheduler.Start()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, mainServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		scheduler.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditLogger.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if tracerProvider != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx)
		})
	}

	errChan := make(chan error, 2)
	go func() {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("health server: %w", err)
		}
	}()
	go func() {
		logger.Infof("Gateway listening on %s", mainServer.Addr)
		if err := mainServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("gateway server: %w", err)
		}
	}()

	shutdownErr := make(chan error, 1)
	go func() {
		shutdownErr <- shutdown.WaitForShutdown()
	}()

	select {
	case err := <-errChan:
		return err
	case err := <-shutdownErr:
		logger.Info("Shutdown complete")
		return err
	}
}
