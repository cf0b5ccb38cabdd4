package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian-stock/internal/app"
	"github.com/meridian-pos/meridian-stock/internal/auth"
	"github.com/meridian-pos/meridian-stock/internal/ledger"
	"github.com/meridian-pos/meridian-stock/internal/observability"
	"github.com/meridian-pos/meridian-stock/internal/platform/cache"
	"github.com/meridian-pos/meridian-stock/internal/platform/db"
	"github.com/meridian-pos/meridian-stock/internal/registry"
	"github.com/meridian-pos/meridian-stock/internal/reports"
	reportexport "github.com/meridian-pos/meridian-stock/internal/reports/export"
	"github.com/meridian-pos/meridian-stock/internal/shared"
	"github.com/meridian-pos/meridian-stock/internal/workflow/modifications"
	"github.com/meridian-pos/meridian-stock/internal/workflow/purchases"
	"github.com/meridian-pos/meridian-stock/internal/workflow/requests"
	"github.com/meridian-pos/meridian-stock/internal/workflow/transfers"
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
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	registryRepo := registry.NewRepository(pool)
	registryService := registry.NewService(registryRepo)
	registryGateway := registry.NewLedgerGateway(registryService)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	if err := reportCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("report cache subscribe", slog.Any("error", err))
	}

	ledgerRepo := ledger.NewRepository(pool)
	projector := ledger.NewProjector(ledgerRepo)
	ledgerService := ledger.NewService(ledgerRepo, registryGateway, projector, auditLogger, reportCache,
		ledger.ServiceConfig{ConflictRetries: cfg.ConflictRetries, Metrics: metrics}, logger)

	transferService := transfers.NewService(transfers.NewRepository(pool), ledgerService,
		transfers.DistinctActorsPolicy(), idempotencyStore, approvalRecorder, auditLogger)
	requestService := requests.NewService(requests.NewRepository(pool), ledgerService,
		registryGateway, idempotencyStore, approvalRecorder, auditLogger)
	purchaseService := purchases.NewService(purchases.NewRepository(pool), ledgerService,
		idempotencyStore, approvalRecorder, auditLogger)
	modificationService := modifications.NewService(modifications.NewRepository(pool), ledgerService, auditLogger)

	reportService := reports.NewService(reports.NewPgRepository(pool), reportCache)

	authService := auth.NewService(auth.NewRepository(pool))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(asynq.NewInspector(redisOpts), jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Metrics:     metrics,
		AuthService: authService,
		JobsRoutes:  jobsHandler.MountRoutes,

		RegistryHandler:     registry.NewHandler(logger, registryService),
		LedgerHandler:       ledger.NewHandler(logger, ledgerService, reportexport.WriteMovementsCSV),
		PurchaseHandler:     purchases.NewHandler(logger, purchaseService),
		TransferHandler:     transfers.NewHandler(logger, transferService),
		RequestHandler:      requests.NewHandler(logger, requestService),
		ModificationHandler: modifications.NewHandler(logger, modificationService),
		ReportHandler: reports.NewHandler(logger, reportService, reports.CSVWriter{
			MovementSummary: reportexport.WriteMovementSummaryCSV,
			Valuation:       reportexport.WriteValuationCSV,
		}),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
