package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/brasato/brasato/internal/app"
	"github.com/brasato/brasato/internal/cashflow"
	jobmetrics "github.com/brasato/brasato/internal/jobs"
	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/recurrence"
	"github.com/brasato/brasato/internal/shared"
	"github.com/brasato/brasato/jobs"
)

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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	audit := shared.NewAuditLogger(pool)
	summaryCache := cashflow.NewCache(redisClient, cfg.SummaryCacheTTL)
	if err := summaryCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, audit, logger)
	cashflowService := cashflow.NewService(ledgerService, summaryCache, logger)

	recurrenceRepo := recurrence.NewRepository(pool)
	recurrenceService := recurrence.NewService(recurrenceRepo, audit, logger)
	recurrenceService.SetInvalidator(&cashflow.BumpOnWrite{Cache: summaryCache, Logger: logger})

	metrics := jobmetrics.NewMetrics(nil)

	generateTask, err := jobs.NewGenerateTask(jobs.GeneratePayload{})
	if err != nil {
		logger.Error("build generate task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurrenceGenerate, Handler: jobs.NewRecurrenceGenerateHandler(recurrenceService, metrics, logger)},
			{Type: jobs.TaskCashflowWarmup, Handler: jobs.NewCashflowWarmupHandler(cashflowService, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecurrenceCron, Task: generateTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 1 * *", Task: jobs.NewCashflowWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	go serveHealth(ctx, cfg.WorkerHealthAddr, asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func serveHealth(ctx context.Context, addr string, redisOpts asynq.RedisClientOpt, logger *slog.Logger) {
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	r := chi.NewRouter()
	jobs.NewHandler(inspector, logger).MountRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("health server", slog.Any("error", err))
	}
}
