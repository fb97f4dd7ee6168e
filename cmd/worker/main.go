package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/savor-erp/savor-erp/internal/app"
	"github.com/savor-erp/savor-erp/internal/audit"
	"github.com/savor-erp/savor-erp/internal/catalog"
	"github.com/savor-erp/savor-erp/internal/inventory"
	jobmetrics "github.com/savor-erp/savor-erp/internal/jobs"
	"github.com/savor-erp/savor-erp/internal/ledger"
	"github.com/savor-erp/savor-erp/internal/observability"
	"github.com/savor-erp/savor-erp/internal/orders"
	"github.com/savor-erp/savor-erp/internal/platform/cache"
	"github.com/savor-erp/savor-erp/internal/platform/db"
	"github.com/savor-erp/savor-erp/internal/shared"
	"github.com/savor-erp/savor-erp/internal/syncq"
	"github.com/savor-erp/savor-erp/jobs"
)

// syncIdempotency scopes the shared store to queue replay keys.
type syncIdempotency struct {
	store *shared.IdempotencyStore
}

func (a syncIdempotency) CheckAndInsert(ctx context.Context, key string) error {
	return a.store.CheckAndInsert(ctx, key, "syncq")
}

func (a syncIdempotency) Delete(ctx context.Context, key string) error {
	return a.store.Delete(ctx, key)
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	idempotencyStore := shared.NewIdempotencyStore(pool)

	syncRepo := syncq.NewPGRepository(pool)
	syncService := syncq.NewService(syncRepo, syncIdempotency{store: idempotencyStore}, metrics, logger)

	signer := audit.NewSigner(cfg.AuditHMACSecret)
	auditRepo := audit.NewPGRepository(pool)
	auditService := audit.NewService(auditRepo, signer, syncService, logger)
	syncService.RegisterApplier("audit_log", auditService.ReplayRecord)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditService)
	cogsRecorder := ledger.NewCostOfSalesRecorder(ledgerService, cfg.LedgerCOGSAccountID, cfg.LedgerInventoryAccountID)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(
		inventoryRepo,
		auditService,
		idempotencyStore,
		inventory.ServiceConfig{AllowClamp: cfg.StockAllowClamp},
		cogsRecorder,
	)

	ordersRepo := orders.NewPGRepository(pool)
	ordersService := orders.NewService(
		ordersRepo,
		catalogService,
		inventoryService,
		ledgerService,
		auditService,
		syncService,
		orders.Accounts{
			CashAccountID:    cfg.LedgerCashAccountID,
			RevenueAccountID: cfg.LedgerRevenueAccountID,
		},
		cfg.TaxRate,
		logger,
	)
	syncService.RegisterApplier("order", ordersService.ReplayPlacement)

	replayJob := jobs.NewSyncReplayJob(syncService, logger, jobMetrics)
	lowStockJob := jobs.NewLowStockScanJob(inventoryService, logger, jobMetrics)
	auditSweepJob := jobs.NewAuditSweepJob(auditService, logger, jobMetrics)

	replayTask, err := jobs.NewSyncReplayTask(time.Now().UTC())
	if err != nil {
		logger.Error("build replay task", slog.Any("error", err))
		os.Exit(1)
	}
	lowStockTask, err := jobs.NewLowStockScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}
	auditSweepTask, err := jobs.NewAuditSweepTask(24)
	if err != nil {
		logger.Error("build audit sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSyncReplay, Handler: replayJob.Handle},
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskAuditSweep, Handler: auditSweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: replayTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 5 * * *", Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 4 * * *", Task: auditSweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
