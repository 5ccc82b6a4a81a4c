package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	connectorapp "github.com/pulseboard/backend/internal/application/connector"
	syncapp "github.com/pulseboard/backend/internal/application/sync"
	webhookapp "github.com/pulseboard/backend/internal/application/webhook"
	"github.com/pulseboard/backend/internal/infrastructure/cache"
	"github.com/pulseboard/backend/internal/infrastructure/config"
	"github.com/pulseboard/backend/internal/infrastructure/logger"
	"github.com/pulseboard/backend/internal/infrastructure/migration"
	"github.com/pulseboard/backend/internal/infrastructure/persistence"
	"github.com/pulseboard/backend/internal/infrastructure/provider"
	"github.com/pulseboard/backend/internal/infrastructure/provider/shopify"
	"github.com/pulseboard/backend/internal/infrastructure/provider/stripe"
	"github.com/pulseboard/backend/internal/infrastructure/scheduler"
	"github.com/pulseboard/backend/internal/infrastructure/telemetry"
	"github.com/pulseboard/backend/internal/interfaces/http/handler"
	"github.com/pulseboard/backend/internal/interfaces/http/middleware"
	"github.com/pulseboard/backend/internal/interfaces/http/router"
	"github.com/pulseboard/backend/migrations"
)

//	@title			Pulseboard Integration API
//	@version		1.0
//	@description	External data integration layer: provider connectors, sync engine and webhook gateway
//	@termsOfService	http://swagger.io/terms/

//	@contact.name	API Support
//	@contact.url	https://github.com/pulseboard/backend
//	@contact.email	support@pulseboard.example.com

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	TenantID
//	@in							header
//	@name						X-Tenant-ID
//	@description				Tenant identifier. Webhook endpoints resolve the tenant from the connector instead.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Pulseboard Integration API",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Apply embedded migrations before accepting traffic
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get underlying sql.DB", zap.Error(err))
	}
	migrator, err := migration.NewEmbedded(sqlDB, migrations.FS, log)
	if err != nil {
		log.Fatal("Failed to initialize migrator", zap.Error(err))
	}
	if err := migrator.Up(); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Initialize telemetry. Providers are no-ops when disabled, so the
	// wiring below is unconditional.
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Database query tracing via otelgorm
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:          cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:       cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh:  cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:         "postgresql",
		WithoutVariables: !cfg.Telemetry.DBLogFullSQL,
	}, log)
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}

	// Idempotency store: Redis, with optional in-memory fallback for
	// development setups
	idempotencyFactory := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.Webhook.AllowMemoryFallback),
	)
	idempotencyStore, err := idempotencyFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Initialize repositories
	connectorRepo := persistence.NewGormConnectorRepository(db.DB)
	syncLogRepo := persistence.NewGormSyncLogRepository(db.DB)
	deliveryRepo := persistence.NewGormWebhookDeliveryRepository(db.DB)
	mappingRepo := persistence.NewGormIdentityMappingRepository(db.DB)
	recordStore := persistence.NewGormIntegrationRecordStore(db.DB)

	// Entity mapper routes provider entities into identity mappings and
	// integration records. It serves both the sync engine and the
	// webhook processors.
	mapper := syncapp.NewMapper(mappingRepo, recordStore, log)

	// Register provider bundles
	providerRegistry := provider.NewRegistry()
	bundles := []provider.Bundle{
		{
			Client:    stripe.NewClient(log),
			Verifier:  stripe.NewVerifier(),
			Processor: stripe.NewProcessor(mapper, log),
		},
		{
			Client:    shopify.NewClient(log),
			Verifier:  shopify.NewVerifier(),
			Processor: shopify.NewProcessor(mapper, log),
		},
	}
	for _, bundle := range bundles {
		if err := providerRegistry.Register(bundle); err != nil {
			log.Fatal("Failed to register provider",
				zap.String("provider", bundle.Client.Provider().String()),
				zap.Error(err),
			)
		}
	}
	log.Info("Providers registered", zap.Int("count", len(bundles)))

	// Initialize application services
	connectorService := connectorapp.NewService(connectorRepo, syncLogRepo, deliveryRepo, providerRegistry, log)
	syncService := syncapp.NewService(connectorRepo, syncLogRepo, providerRegistry, mapper, syncapp.Config{
		WorkerCount:        cfg.Sync.WorkerCount,
		PageSize:           cfg.Sync.PageSize,
		IncrementalOverlap: cfg.Sync.IncrementalOverlap,
		StaleRunThreshold:  cfg.Sync.StaleRunThreshold,
	}, log)
	webhookGateway := webhookapp.NewGateway(connectorRepo, deliveryRepo, providerRegistry, providerRegistry,
		idempotencyStore, webhookapp.GatewayConfig{
			IdempotencyTTL: cfg.Webhook.IdempotencyTTL,
		}, log)
	testSender := webhookapp.NewTestDeliverySender(connectorRepo, deliveryRepo, nil, webhookapp.TestDeliveryConfig{
		Timeout: cfg.Webhook.TestDeliveryTimeout,
	}, log)

	// Initialize sync scheduler (if enabled)
	if cfg.Scheduler.Enabled {
		syncScheduler := scheduler.NewSyncScheduler(scheduler.SyncSchedulerConfig{
			PollInterval:       cfg.Scheduler.PollInterval,
			MaxConcurrentSyncs: cfg.Scheduler.MaxConcurrentSyncs,
			StaleCheckInterval: cfg.Scheduler.StaleCheckInterval,
		}, syncService, connectorRepo, log)
		if err := syncScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := syncScheduler.Stop(stopCtx); err != nil {
				log.Error("Error stopping sync scheduler", zap.Error(err))
			}
		}()
		log.Info("Sync scheduler started",
			zap.Duration("poll_interval", cfg.Scheduler.PollInterval),
			zap.Int("max_concurrent_syncs", cfg.Scheduler.MaxConcurrentSyncs),
		)
	}

	// Initialize HTTP handlers
	connectorHandler := handler.NewConnectorHandler(connectorService, syncService, testSender)
	webhookHandler := handler.NewWebhookHandler(webhookGateway, log)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. Tracing/Metrics/Profiling - Observability (no-ops when disabled)
	// 8. RateLimit - Apply rate limiting (if enabled)
	// 9. Tenant - Resolve tenant context (webhooks and health are skipped)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Observability middleware
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.Profiling())

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Tenant resolution. Webhook routes are in the skip list: the
	// connector in the path supplies the tenant and providers do not
	// send our headers.
	tenantConfig := middleware.DefaultTenantConfig()
	tenantConfig.Logger = log
	engine.Use(middleware.TenantMiddlewareWithConfig(tenantConfig))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(connectorHandler).
		Register(webhookHandler).
		Register(systemHandler)
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
