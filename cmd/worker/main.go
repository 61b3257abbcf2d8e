package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/keepswell/keepswell-api/internal/audit"
	"github.com/keepswell/keepswell-api/internal/cache"
	"github.com/keepswell/keepswell-api/internal/config"
	"github.com/keepswell/keepswell-api/internal/database"
	"github.com/keepswell/keepswell-api/internal/journal"
	"github.com/keepswell/keepswell-api/internal/queue"
	"github.com/keepswell/keepswell-api/internal/queue/workers"
	"github.com/keepswell/keepswell-api/internal/selector"
	"github.com/keepswell/keepswell-api/internal/template"
	"github.com/keepswell/keepswell-api/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("invalid config", "error", "missing required env var: DATABASE_URL")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := template.LoadCatalog()
	if cfg.Templates.CatalogDir != "" {
		catalog, err = template.LoadCatalogFS(os.DirFS(cfg.Templates.CatalogDir))
	}
	if err != nil {
		slog.Error("failed to load template catalog", "error", err)
		os.Exit(1)
	}

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	journalSvc := journal.NewService(
		journal.NewPostgresStore(db),
		template.NewResolver(catalog),
		selector.New(nil),
		cache.NewConfigCache(rdb, cfg.Redis.ConfigTTL),
		audit.NewService(db),
		webhook.NewService(queueClient),
	)

	dispatcher := webhook.NewDispatcher(
		cfg.Webhook.DispatchURL,
		cfg.Webhook.Secret,
		cfg.Webhook.Timeout,
		webhook.NewPostgresRecorder(db),
	)

	// Register workers
	dispatchWorker := workers.NewDispatchWorker(journalSvc, queueClient)
	webhookWorker := workers.NewWebhookWorker(dispatcher)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeDispatchSweep, asynq.HandlerFunc(dispatchWorker.Sweep))
	registry.Register(queue.TypePromptDispatch, asynq.HandlerFunc(dispatchWorker.ProcessTask))
	registry.Register(queue.TypeWebhookDeliver, asynq.HandlerFunc(webhookWorker.ProcessTask))
	registry.RegisterPeriodic(cfg.Scheduler.SweepSpec, queue.TypeDispatchSweep, asynq.Queue(queue.QueueLow))

	redisOpt := queue.RedisOpt(cfg.Redis)
	scheduler, err := registry.Scheduler(redisOpt)
	if err != nil {
		slog.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Scheduler.Concurrency,
		Queues: map[string]int{
			queue.QueueCritical: 6,
			queue.QueueDefault:  3,
			queue.QueueLow:      1,
		},
	})

	if err := scheduler.Start(); err != nil {
		slog.Error("scheduler error", "error", err)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	slog.Info("starting worker", "concurrency", cfg.Scheduler.Concurrency, "sweep", cfg.Scheduler.SweepSpec)
	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("shutting down worker...")
	srv.Shutdown()
}
