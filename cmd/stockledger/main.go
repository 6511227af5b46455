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
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/eventstock/stockledger/internal/app"
	"github.com/eventstock/stockledger/internal/challan"
	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/maintenance"
	"github.com/eventstock/stockledger/internal/masterdata"
	"github.com/eventstock/stockledger/internal/observability"
	"github.com/eventstock/stockledger/internal/platform/cache"
	"github.com/eventstock/stockledger/internal/platform/db"
	"github.com/eventstock/stockledger/internal/procurement"
	"github.com/eventstock/stockledger/internal/rbac"
	"github.com/eventstock/stockledger/internal/reporting"
	"github.com/eventstock/stockledger/internal/shared"
	"github.com/eventstock/stockledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("stockledger", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, summaries will not be cached", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	ledgerMetrics := observability.NewLedgerMetrics(metrics.Registerer())
	rbacMiddleware := rbac.Middleware{Service: rbac.NewService(), Logger: logger}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	engine := inventory.NewEngine()

	reportingService := reporting.NewService(reporting.NewRepository(pool), reporting.NewCache(redisClient, cfg.CacheTTL), logger)
	observer := inventory.Observers{ledgerMetrics, reportingService}

	inventoryService := inventory.NewService(inventory.NewRepository(pool), engine, auditLogger, observer, logger)
	challanService := challan.NewService(challan.NewRepository(pool), engine, idempotencyStore, observer, logger).WithHook(ledgerMetrics)
	procurementService := procurement.NewService(procurement.NewRepository(pool), engine, auditLogger, observer, logger)
	maintenanceService := maintenance.NewService(maintenance.NewRepository(pool), engine, observer, logger)
	masterdataService := masterdata.NewService(masterdata.NewRepository(pool))

	queueOpt := cache.QueueOpt(cfg.RedisAddr)
	jobClient := jobs.NewClient(queueOpt)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(queueOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		MasterDataHandler:  masterdata.NewHandler(logger, masterdataService, rbacMiddleware),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		ChallanHandler:     challan.NewHandler(logger, challanService, rbacMiddleware),
		ProcurementHandler: procurement.NewHandler(logger, procurementService, rbacMiddleware),
		MaintenanceHandler: maintenance.NewHandler(logger, maintenanceService, rbacMiddleware),
		ReportingHandler:   reporting.NewHandler(logger, reportingService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, jobClient, rbacMiddleware, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
