package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keepswell/keepswell-api/internal/api"
	"github.com/keepswell/keepswell-api/internal/api/handlers"
	"github.com/keepswell/keepswell-api/internal/audit"
	"github.com/keepswell/keepswell-api/internal/auth"
	"github.com/keepswell/keepswell-api/internal/billing"
	"github.com/keepswell/keepswell-api/internal/cache"
	"github.com/keepswell/keepswell-api/internal/config"
	"github.com/keepswell/keepswell-api/internal/database"
	"github.com/keepswell/keepswell-api/internal/identity"
	"github.com/keepswell/keepswell-api/internal/journal"
	"github.com/keepswell/keepswell-api/internal/llm"
	"github.com/keepswell/keepswell-api/internal/queue"
	"github.com/keepswell/keepswell-api/internal/selector"
	"github.com/keepswell/keepswell-api/internal/suggest"
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
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A broken catalog is fatal.
	catalog, err := loadCatalog(cfg.Templates)
	if err != nil {
		slog.Error("failed to load template catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("template catalog loaded", "templates", len(catalog.All()))

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, database.MigrationsFS(cfg.Database.MigrationsPath)); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// Redis is a cache here; the API keeps serving without it.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without cache", "error", err)
	}
	defer rdb.Close()

	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	auditSvc := audit.NewService(db)
	identitySvc := identity.NewService(db)
	journalSvc := journal.NewService(
		journal.NewPostgresStore(db),
		template.NewResolver(catalog),
		selector.New(nil),
		cache.NewConfigCache(rdb, cfg.Redis.ConfigTTL),
		auditSvc,
		webhook.NewService(queueClient),
	)

	gateway := llm.NewGateway(cfg.LLM)
	if !gateway.Configured() {
		slog.Warn("no LLM provider configured, prompt suggestions will fail")
	}

	router := api.NewRouter(cfg, api.Services{
		Catalog:  catalog,
		Journals: journalSvc,
		Suggest:  suggest.NewService(journalSvc, gateway),
		Audit:    auditSvc,
		Billing:  billing.NewService(cfg.Billing.WebhookSecret, identitySvc, journalSvc, auditSvc),
		Health: map[string]handlers.Pinger{
			"database": db,
			"redis":    handlers.RedisPinger{Client: rdb},
		},
		Users: identitySvc,
		Keys:  auth.NewPostgresKeyStore(db),
	})
	router.StartCleanup(ctx)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func loadCatalog(cfg config.TemplateConfig) (*template.Catalog, error) {
	if cfg.CatalogDir != "" {
		return template.LoadCatalogFS(os.DirFS(cfg.CatalogDir))
	}
	return template.LoadCatalog()
}
