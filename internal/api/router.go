package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/keepswell/keepswell-api/internal/api/handlers"
	"github.com/keepswell/keepswell-api/internal/api/middleware"
	"github.com/keepswell/keepswell-api/internal/auth"
	"github.com/keepswell/keepswell-api/internal/config"
	"github.com/keepswell/keepswell-api/internal/template"
)

// Services are the collaborators the HTTP surface is built on.
type Services struct {
	Catalog  *template.Catalog
	Journals interface {
		handlers.JournalService
		handlers.ConfigService
	}
	Suggest handlers.Suggester
	Audit   handlers.AuditReader
	Billing handlers.BillingService
	Health  map[string]handlers.Pinger
	Users   auth.UserStore
	Keys    auth.KeyStore
}

type Router struct {
	mux    *chi.Mux
	cfg    *config.Config
	svc    Services
	jwt    *auth.JWTMiddleware
	apikey *auth.APIKeyMiddleware
	rl     *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, svc Services) *Router {
	return &Router{
		mux:    chi.NewRouter(),
		cfg:    cfg,
		svc:    svc,
		jwt:    auth.NewJWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, svc.Users),
		apikey: auth.NewAPIKeyMiddleware(svc.Keys, cfg.Auth.APIKeyHeader),
		rl:     middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	}
}

// StartCleanup evicts idle rate limiter entries until ctx is done.
func (rt *Router) StartCleanup(ctx context.Context) {
	go rt.rl.Cleanup(ctx)
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))
	r.Use(rt.rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.svc.Health)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Billing provider callbacks are authenticated by signature.
	billingH := handlers.NewBillingHandler(rt.svc.Billing)
	r.Post("/billing/webhook", billingH.Webhook)

	templateH := handlers.NewTemplateHandler(rt.svc.Catalog, rt.svc.Journals, rt.svc.Suggest)
	journalH := handlers.NewJournalHandler(rt.svc.Journals, rt.svc.Audit)

	read := auth.RequireScope(auth.ScopeJournalsRead)
	selectScope := auth.RequireScope(auth.ScopePromptsSelect)
	sends := auth.RequireScope(auth.ScopeSendsWrite)

	r.Route("/api/v1", func(r chi.Router) {
		// Auth: try API key first, then JWT
		r.Use(rt.apikey.Authenticate)
		r.Use(rt.jwt.Authenticate)

		r.Route("/templates", func(r chi.Router) {
			r.With(read).Get("/", templateH.List)
			r.With(read).Get("/type/{type}", templateH.ByType)

			r.Route("/journal/{id}", func(r chi.Router) {
				r.With(read).Get("/config", templateH.Config)
				r.With(selectScope).Post("/select-prompt", templateH.SelectPrompt)
				r.With(auth.UserOnly).Patch("/customize", templateH.Customize)
				r.With(auth.UserOnly).Delete("/customize", templateH.ResetCustomization)
				r.With(auth.UserOnly).Post("/suggest-prompts", templateH.Suggest)
			})
		})

		r.Route("/journals", func(r chi.Router) {
			r.With(auth.UserOnly).Post("/", journalH.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.With(read).Get("/", journalH.Get)
				r.With(auth.UserOnly).Patch("/", journalH.Update)

				r.With(read).Get("/prompts", journalH.ListPrompts)
				r.With(auth.UserOnly).Post("/prompts", journalH.AddPrompt)
				r.With(auth.UserOnly).Put("/prompts/order", journalH.Reorder)
				r.With(auth.UserOnly).Delete("/prompts/order", journalH.ResetOrder)
				r.With(auth.UserOnly).Patch("/prompts/{promptId}", journalH.UpdatePrompt)
				r.With(auth.UserOnly).Delete("/prompts/{promptId}", journalH.DeletePrompt)

				r.With(sends).Post("/sends", journalH.RecordSend)
				r.With(read).Get("/prompt-stats", journalH.Stats)
				r.With(auth.UserOnly).Get("/audit", journalH.AuditLogs)
			})
		})

		r.With(sends).Post("/sends/{id}/responded", journalH.MarkResponded)
	})

	return r
}
