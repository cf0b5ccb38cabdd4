package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian-stock/internal/app"
	"github.com/meridian-pos/meridian-stock/internal/ledger"
	"github.com/meridian-pos/meridian-stock/internal/observability"
	"github.com/meridian-pos/meridian-stock/internal/platform/cache"
	"github.com/meridian-pos/meridian-stock/internal/platform/db"
	"github.com/meridian-pos/meridian-stock/internal/registry"
	"github.com/meridian-pos/meridian-stock/internal/reports"
	"github.com/meridian-pos/meridian-stock/internal/shared"
	"github.com/meridian-pos/meridian-stock/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unreachable, starting without cache", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	registryService := registry.NewService(registry.NewRepository(pool))
	registryGateway := registry.NewLedgerGateway(registryService)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	if err := reportCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("report cache subscribe", slog.Any("error", err))
	}

	ledgerRepo := ledger.NewRepository(pool)
	projector := ledger.NewProjector(ledgerRepo)
	ledgerService := ledger.NewService(ledgerRepo, registryGateway, projector, auditLogger, reportCache,
		ledger.ServiceConfig{ConflictRetries: cfg.ConflictRetries, Metrics: metrics}, logger)

	reportService := reports.NewService(reports.NewPgRepository(pool), reportCache)

	scanner := jobs.NewIntegrityScanner(ledgerService, metrics, logger)
	warmer := jobs.NewReportWarmer(reportService, logger)

	nightlyScan, err := jobs.NewIntegrityScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}
	warmup, err := jobs.NewReportWarmupTask(time.Now().UTC())
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanup, err := jobs.NewIdempotencyCleanupTask(0)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrityScan, Handler: scanner.Handler()},
			{Type: jobs.TaskReportWarmup, Handler: warmer.Handler()},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotencyStore, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: nightlyScan},
			{Spec: "*/15 * * * *", Task: warmup},
			{Spec: "30 4 * * *", Task: cleanup},
		},
	})
	if err != nil {
		logger.Error("configure worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
