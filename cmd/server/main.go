package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appsettlement "github.com/marketplace/backend/internal/application/settlement"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/infrastructure/auth"
	"github.com/marketplace/backend/internal/infrastructure/cache"
	"github.com/marketplace/backend/internal/infrastructure/config"
	"github.com/marketplace/backend/internal/infrastructure/event"
	"github.com/marketplace/backend/internal/infrastructure/logger"
	"github.com/marketplace/backend/internal/infrastructure/payment"
	"github.com/marketplace/backend/internal/infrastructure/persistence"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
	"github.com/marketplace/backend/internal/interfaces/http/handler"
	"github.com/marketplace/backend/internal/interfaces/http/middleware"
	"github.com/marketplace/backend/internal/interfaces/http/router"
)

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

	log.Info("Starting Settlement Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Tracing: spans flow from the HTTP middleware through the services
	// down to individual queries
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.App.Name,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

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

	if err := telemetry.RegisterDatabaseTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.TraceDatabase,
		LogFullSQL: cfg.Telemetry.LogFullSQL,
		DBSystem:   cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Shared Redis client: automation rate caps and the token blacklist
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing redis client", zap.Error(err))
		}
	}()
	{
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		cancel()
	}
	log.Info("Redis connected successfully")

	// Initialize repositories and the transactional scope
	scope := persistence.NewGormTransactionScope(db.DB)
	balanceRepo := persistence.NewGormSellerBalanceRepository(db.DB)
	ledgerRepo := persistence.NewGormLedgerEntryRepository(db.DB)

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Audit trail and automation rate caps
	audit := appsettlement.NewZapAuditRecorder(log)
	rateCounter := cache.NewRedisRateCounter(redisClient, "")

	// Payment provider
	chapaConfig := &payment.ChapaConfig{
		SecretKey:   cfg.Chapa.SecretKey,
		CallbackURL: cfg.Chapa.CallbackURL,
		IsSandbox:   cfg.Chapa.Sandbox,
	}
	if chapaConfig.SecretKey == "" && cfg.App.Env != "production" {
		// Let local development boot without provider credentials
		chapaConfig.SecretKey = "CHASECK_TEST-local"
		chapaConfig.IsSandbox = true
		log.Warn("Chapa secret key not configured, using sandbox placeholder")
	}
	provider, err := payment.NewChapaAdapter(chapaConfig)
	if err != nil {
		log.Fatal("Failed to initialize payment provider", zap.Error(err))
	}

	// Initialize application services
	calculator := settlement.NewCommissionCalculator(settlement.DefaultCommissionSchedule())
	balanceService := appsettlement.NewBalanceService(scope, balanceRepo, ledgerRepo, audit, log)
	ledgerService := appsettlement.NewLedgerService(ledgerRepo, log)
	settlementService := appsettlement.NewSettlementService(scope, calculator, eventBus, audit, log)
	payoutService := appsettlement.NewPayoutService(scope, settlementService, provider, eventBus, audit, log)
	reconciliationService := appsettlement.NewReconciliationService(scope, eventBus, audit, log)

	autoThreshold, err := decimal.NewFromString(cfg.Automation.AutoApproveThreshold)
	if err != nil {
		log.Fatal("Invalid automation.auto_approve_threshold", zap.Error(err))
	}
	sellerVolumeCap, err := parseVolumeCap(cfg.Automation.MaxVolumePerSellerPerHour)
	if err != nil {
		log.Fatal("Invalid automation.max_volume_per_seller_per_hour", zap.Error(err))
	}
	globalVolumeCap, err := parseVolumeCap(cfg.Automation.MaxVolumePerHour)
	if err != nil {
		log.Fatal("Invalid automation.max_volume_per_hour", zap.Error(err))
	}
	automationService := appsettlement.NewAutomationService(payoutService, reconciliationService, rateCounter, appsettlement.AutomationConfig{
		Enabled:                   cfg.Automation.Enabled,
		DryRun:                    cfg.Automation.DryRun,
		AutoApproveThreshold:      autoThreshold,
		MaxPerSellerPerHour:       cfg.Automation.MaxPerSellerPerHour,
		MaxPerHour:                cfg.Automation.MaxPerHour,
		MaxVolumePerSellerPerHour: sellerVolumeCap,
		MaxVolumePerHour:          globalVolumeCap,
		BatchSize:                 cfg.Automation.BatchSize,
	}, audit, log)

	// Subscribe event handlers
	notificationHandler := appsettlement.NewPayoutNotificationHandler(log).
		WithNotifier(appsettlement.NewLoggingSellerNotifier(log))
	eventBus.Subscribe(notificationHandler)
	eventBus.Subscribe(appsettlement.NewReconciliationAlertHandler(audit, log))

	// Auth: tokens are issued by the identity platform, this service only
	// validates them and honors revocations
	jwtService := auth.NewJWTService(cfg.JWT)
	tokenBlacklist := auth.NewRedisTokenBlacklistWithClient(redisClient)

	// Initialize HTTP handlers
	balanceHandler := handler.NewBalanceHandler(balanceService)
	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	settlementHandler := handler.NewSettlementHandler(settlementService)
	payoutHandler := handler.NewPayoutHandler(payoutService, settlementService)
	reconciliationHandler := handler.NewReconciliationHandler(reconciliationService)
	automationHandler := handler.NewAutomationHandler(automationService)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup custom validators
	middleware.SetupValidator()

	// Create Gin engine
	engine := gin.New()

	// Configure trusted proxies
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Failed to set trusted proxies", zap.Error(err))
	}

	// Apply global middleware in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Tracing - Open a span per request
	// 5. Security - Add security headers
	// 6. CORS - Handle cross-origin requests
	// 7. BodyLimit - Limit request body size
	// 8. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.App.Name,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRPM, time.Minute)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled", zap.Int("rpm", cfg.HTTP.RateLimitRPM))
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Every API route requires a valid operator token except the system
	// liveness endpoints
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService:     jwtService,
		TokenBlacklist: tokenBlacklist,
		SkipPaths: []string{
			"/api/v1/ping",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	adminOnly := middleware.RequireRole(auth.RoleAdmin)
	canOperate := middleware.RequireRole(auth.RoleAdmin, auth.RoleOperator)

	// Balance and ledger routes
	balanceRoutes := router.NewDomainGroup("balances", "/balances")
	balanceRoutes.GET("", balanceHandler.List)
	balanceRoutes.POST("/adjustments", adminOnly, balanceHandler.Adjust)
	balanceRoutes.GET("/:id/ledger", ledgerHandler.ListEntries)
	balanceRoutes.GET("/:id/ledger/summary", ledgerHandler.Summary)
	balanceRoutes.GET("/:id/ledger/verification", ledgerHandler.VerifyChain)
	balanceRoutes.POST("/:id/reconciliation", canOperate, reconciliationHandler.ReconcileBalance)

	// Seller-scoped balance lookups
	sellerRoutes := router.NewDomainGroup("sellers", "/sellers")
	sellerRoutes.GET("/:sellerId/balance", balanceHandler.GetBySeller)
	sellerRoutes.GET("/:sellerId/balance/verification", balanceHandler.VerifyBySeller)

	// Escrow transaction routes
	transactionRoutes := router.NewDomainGroup("transactions", "/transactions")
	transactionRoutes.POST("", canOperate, settlementHandler.RecordEscrow)
	transactionRoutes.GET("/:id", settlementHandler.GetTransaction)
	transactionRoutes.POST("/:id/release", canOperate, settlementHandler.Release)
	transactionRoutes.POST("/:id/refunds", canOperate, settlementHandler.Refund)

	// Payout routes; approval and rejection are admin decisions
	payoutRoutes := router.NewDomainGroup("payouts", "/payouts")
	payoutRoutes.POST("", canOperate, payoutHandler.Request)
	payoutRoutes.GET("", payoutHandler.List)
	payoutRoutes.GET("/:id", payoutHandler.GetByID)
	payoutRoutes.POST("/:id/approval", adminOnly, payoutHandler.Approve)
	payoutRoutes.POST("/:id/rejection", adminOnly, payoutHandler.Reject)
	payoutRoutes.POST("/:id/processing", canOperate, payoutHandler.Process)
	payoutRoutes.POST("/:id/completion", canOperate, payoutHandler.Complete)

	// Reconciliation routes
	reconciliationRoutes := router.NewDomainGroup("reconciliation", "/reconciliation")
	reconciliationRoutes.POST("/runs", canOperate, reconciliationHandler.RunSystemWide)

	// Automation control surface; every change is an admin action
	automationRoutes := router.NewDomainGroup("automation", "/automation")
	automationRoutes.Use(adminOnly)
	automationRoutes.GET("/config", automationHandler.GetConfig)
	automationRoutes.PUT("/enabled", automationHandler.SetEnabled)
	automationRoutes.PUT("/dry-run", automationHandler.SetDryRun)
	automationRoutes.POST("/runs", automationHandler.Run)

	// System routes
	systemHandler := handler.NewSystemHandler()
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r.Register(balanceRoutes).
		Register(sellerRoutes).
		Register(transactionRoutes).
		Register(payoutRoutes).
		Register(reconciliationRoutes).
		Register(automationRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Background sweeps stop with this context on shutdown
	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()

	// Automation sweep; the service's own kill switch decides whether a
	// tick does anything
	go runPeriodic(sweepCtx, cfg.Automation.Interval, func(ctx context.Context) {
		report, err := automationService.RunAutoApproval(ctx)
		if err != nil {
			log.Error("Auto-approval sweep failed", zap.Error(err))
			return
		}
		if report.Examined > 0 {
			log.Info("Auto-approval sweep finished",
				zap.Int("examined", report.Examined),
				zap.Int("approved", report.Approved),
				zap.Int("processed", report.Processed),
				zap.Int("skipped", report.Skipped),
				zap.Bool("dry_run", report.DryRun),
			)
		}
	})

	// Periodic reconciliation sweep
	if cfg.Reconciliation.Enabled {
		go runPeriodic(sweepCtx, cfg.Reconciliation.Interval, func(ctx context.Context) {
			report, err := reconciliationService.RunSystemWideReconciliation(ctx)
			if err != nil {
				log.Error("Reconciliation sweep failed", zap.Error(err))
				return
			}
			log.Info("Reconciliation sweep finished",
				zap.Int("balances_checked", report.BalancesChecked),
				zap.Int("clean_balances", report.CleanBalances),
				zap.Int("mismatches", len(report.Mismatches)),
			)
		})
	}

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

	stopSweeps()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// parseVolumeCap parses a decimal volume cap; empty means disabled
func parseVolumeCap(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// runPeriodic invokes fn every interval until ctx is cancelled
func runPeriodic(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
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
