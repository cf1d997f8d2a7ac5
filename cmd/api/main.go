package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrelhq/callflow/cmd/mainconfig"
	"github.com/kestrelhq/callflow/internal/api/router"
	"github.com/kestrelhq/callflow/internal/app/bootstrap"
	appconfig "github.com/kestrelhq/callflow/internal/config"
	"github.com/kestrelhq/callflow/internal/contacts"
	"github.com/kestrelhq/callflow/internal/dispatch"
	"github.com/kestrelhq/callflow/internal/history"
	"github.com/kestrelhq/callflow/internal/http/handlers"
	httpmiddleware "github.com/kestrelhq/callflow/internal/http/middleware"
	"github.com/kestrelhq/callflow/internal/observability/metrics"
	"github.com/kestrelhq/callflow/internal/reconcile"
	"github.com/kestrelhq/callflow/internal/settings"
	"github.com/kestrelhq/callflow/pkg/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting callflow API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"version", version,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, false)
	if redisClient == nil {
		logger.Error("REDIS_ADDR is required")
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	// Stores
	contactStore := contacts.NewPostgresStore(pool)
	callStore, err := bootstrap.BuildCallLogStore(pool, awsCfg, cfg)
	if err != nil {
		logger.Error("failed to build call log store", "error", err)
		os.Exit(1)
	}
	historyStore := history.NewStore(sqlDB)
	settingsStore := settings.NewStore(redisClient)

	// Outbound side
	gateway, err := bootstrap.BuildGateway(cfg, logger)
	if err != nil {
		logger.Error("failed to build call gateway", "error", err)
		os.Exit(1)
	}

	engineMetrics := metrics.NewEngineMetrics(nil)

	dispatcher := dispatch.NewDispatcher(contactStore, callStore, gateway, settingsStore, logger,
		dispatch.WithCycleRecorder(historyStore),
		dispatch.WithMetrics(engineMetrics),
		dispatch.WithCallTimeout(cfg.GatewayTimeout),
	)
	locker := dispatch.NewRedisLocker(redisClient, cfg.DispatchLockTTL, logger)

	// Inbound side
	sender, err := bootstrap.BuildEmailSender(awsCfg, cfg, logger)
	if err != nil {
		logger.Error("failed to build email sender", "error", err)
		os.Exit(1)
	}

	reconcilerOpts := []reconcile.ReconcilerOption{
		reconcile.WithMetrics(engineMetrics),
		reconcile.WithBrandName(cfg.BrandName),
	}
	if archiveStore := bootstrap.BuildArchiveStore(awsCfg, cfg, logger); archiveStore != nil {
		reconcilerOpts = append(reconcilerOpts, reconcile.WithArchive(archiveStore))
	}
	replayQueue := bootstrap.BuildReplayQueue(awsCfg, cfg, logger)
	if replayQueue != nil {
		reconcilerOpts = append(reconcilerOpts, reconcile.WithReplayPublisher(replayQueue))
	}

	reconciler := reconcile.NewReconciler(contactStore, callStore, sender, settingsStore, logger, reconcilerOpts...)

	// With the in-memory queue there is no separate worker process, so the
	// replay consumer runs inline here.
	if cfg.UseMemoryQueue && replayQueue != nil {
		replayWorker := reconcile.NewReplayWorker(replayQueue, reconciler, logger)
		go replayWorker.Run(ctx)
		logger.Info("inline replay worker started")
	}

	routerCfg := &router.Config{
		Logger:       logger,
		Health:       handlers.NewHealthHandler(cfg.ServiceName, version),
		Dispatch:     handlers.NewDispatchHandler(dispatcher, locker, historyStore, logger),
		Stats:        handlers.NewStatsHandler(nil),
		VoiceWebhook: handlers.NewVoiceWebhookHandler(reconciler, logger),

		WebhookSecret: cfg.WebhookSecret,
		AdminJWT: httpmiddleware.AdminJWTConfig{
			Secret:   cfg.AdminJWTSecret,
			Issuer:   cfg.AdminJWTIssuer,
			Audience: cfg.AdminJWTAudience,
		},

		MetricsHandler: promhttp.Handler(),
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
