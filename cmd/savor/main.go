package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/savor-erp/savor-erp/internal/app"
	"github.com/savor-erp/savor-erp/internal/assistant"
	"github.com/savor-erp/savor-erp/internal/audit"
	"github.com/savor-erp/savor-erp/internal/auth"
	"github.com/savor-erp/savor-erp/internal/catalog"
	"github.com/savor-erp/savor-erp/internal/customers"
	"github.com/savor-erp/savor-erp/internal/inventory"
	"github.com/savor-erp/savor-erp/internal/ledger"
	"github.com/savor-erp/savor-erp/internal/observability"
	"github.com/savor-erp/savor-erp/internal/orders"
	"github.com/savor-erp/savor-erp/internal/platform/cache"
	"github.com/savor-erp/savor-erp/internal/platform/db"
	"github.com/savor-erp/savor-erp/internal/rbac"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	idempotencyStore := shared.NewIdempotencyStore(pool)

	syncRepo := syncq.NewPGRepository(pool)
	syncService := syncq.NewService(syncRepo, syncIdempotency{store: idempotencyStore}, metrics, logger)
	syncHandler := syncq.NewHandler(syncService)

	signer := audit.NewSigner(cfg.AuditHMACSecret)
	auditRepo := audit.NewPGRepository(pool)
	auditService := audit.NewService(auditRepo, signer, syncService, logger)
	auditHandler := audit.NewHandler(auditService)
	syncService.RegisterApplier("audit_log", auditService.ReplayRecord)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditService)
	catalogHandler := catalog.NewHandler(catalogService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditService)
	ledgerHandler := ledger.NewHandler(ledgerService)

	cogsRecorder := ledger.NewCostOfSalesRecorder(ledgerService, cfg.LedgerCOGSAccountID, cfg.LedgerInventoryAccountID)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(
		inventoryRepo,
		auditService,
		idempotencyStore,
		inventory.ServiceConfig{AllowClamp: cfg.StockAllowClamp},
		cogsRecorder,
	)
	inventoryHandler := inventory.NewHandler(inventoryService)

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
	ordersHandler := orders.NewHandler(ordersService)
	syncService.RegisterApplier("order", ordersService.ReplayPlacement)

	customersRepo := customers.NewPGRepository(pool)
	customersService := customers.NewService(customersRepo, auditService)
	customersHandler := customers.NewHandler(customersService)

	rbacRepo := rbac.NewPGRepository(pool)
	rbacService := rbac.NewService(rbacRepo, redisClient)

	authRepo := auth.NewPGRepository(pool)
	authService := auth.NewService(authRepo, redisClient, auditService, cfg.TokenTTL)
	authHandler := auth.NewHandler(authService)

	var agent assistant.AgentPort
	if cfg.GeminiAPIKey != "" {
		genaiAgent, err := assistant.NewAgent(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("init assistant agent", slog.Any("error", err))
			os.Exit(1)
		}
		defer genaiAgent.Close()
		agent = genaiAgent
	} else {
		logger.Warn("gemini api key not set, assistant proposals disabled")
	}

	assistantService := assistant.NewService(
		catalogService,
		inventoryService,
		customersService,
		authService,
		ledgerService,
		ordersService,
		rbacService,
		auditService,
		agent,
	)
	assistantHandler := assistant.NewHandler(assistantService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,

		AuthService: authService,
		RBAC:        rbacService,

		AuthHandler:      authHandler,
		CatalogHandler:   catalogHandler,
		OrdersHandler:    ordersHandler,
		InventoryHandler: inventoryHandler,
		LedgerHandler:    ledgerHandler,
		AuditHandler:     auditHandler,
		SyncHandler:      syncHandler,
		CustomerHandler:  customersHandler,
		AssistantHandler: assistantHandler,
		JobsHandler:      jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server run", slog.Any("error", err))
		os.Exit(1)
	}
}
