package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/kestrelhq/callflow/cmd/mainconfig"
	"github.com/kestrelhq/callflow/internal/app/bootstrap"
	appconfig "github.com/kestrelhq/callflow/internal/config"
	"github.com/kestrelhq/callflow/internal/contacts"
	"github.com/kestrelhq/callflow/internal/dispatch"
	"github.com/kestrelhq/callflow/internal/history"
	"github.com/kestrelhq/callflow/internal/observability/metrics"
	"github.com/kestrelhq/callflow/internal/reconcile"
	"github.com/kestrelhq/callflow/internal/settings"
	"github.com/kestrelhq/callflow/pkg/logging"
)

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
	if cfg.UseMemoryQueue {
		logger.Error("worker cannot run when USE_MEMORY_QUEUE=true; the API process runs the replay consumer inline")
		os.Exit(1)
	}

	logger.Info("starting callflow worker",
		"env", cfg.Env,
		"dispatch_interval", cfg.DispatchInterval,
		"worker_count", cfg.WorkerCount,
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

	contactStore := contacts.NewPostgresStore(pool)
	callStore, err := bootstrap.BuildCallLogStore(pool, awsCfg, cfg)
	if err != nil {
		logger.Error("failed to build call log store", "error", err)
		os.Exit(1)
	}
	historyStore := history.NewStore(sqlDB)
	settingsStore := settings.NewStore(redisClient)

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
	runner := dispatch.NewRunner(dispatcher, locker, cfg.DispatchInterval, logger)

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

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()

	if replayQueue != nil {
		workerCount := cfg.WorkerCount
		if workerCount < 1 {
			workerCount = 1
		}
		for i := 0; i < workerCount; i++ {
			replayWorker := reconcile.NewReplayWorker(replayQueue, reconciler, logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				replayWorker.Run(ctx)
			}()
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("worker stopped")
	case <-doneCtx.Done():
		logger.Error("worker shutdown timed out", "error", doneCtx.Err())
	}
}
