package http

import (
	"net/http"

	"github.com/authbridge/verification-api/internal/application/idempotency"
	"github.com/authbridge/verification-api/internal/application/lifecycle"
	"github.com/authbridge/verification-api/internal/application/ratelimit"
	"github.com/authbridge/verification-api/internal/application/webhook"
	"github.com/authbridge/verification-api/internal/config"
	"github.com/authbridge/verification-api/internal/transport/http/handler"
	appmiddleware "github.com/authbridge/verification-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// App bundles the long-lived services the process needs outside request
// handling: the retry worker redelivers through Dispatcher, the expiry
// sweeper runs against Service.
type App struct {
	Service    lifecycle.Service
	Dispatcher *webhook.Dispatcher
}

// NewRouter wires the application services and returns the router plus the
// service bundle for background workers.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, *App) {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Client-Id", "X-Api-Key-Id", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	guard := idempotency.NewGuard(deps.IdempotencyRepo, cfg.IdempotencyTTL)

	var scheduler webhook.Scheduler
	local := webhook.NewLocalScheduler()
	if deps.RetryQueue != nil {
		scheduler = deps.RetryQueue
	} else {
		scheduler = local
	}
	var archiver webhook.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	dispatcher := webhook.NewDispatcher(webhook.DispatcherDeps{
		Configs:   deps.ClientWebhookRepo,
		Ledger:    deps.DeliveryLogRepo,
		Scheduler: scheduler,
		Alerter:   deps.Alerter,
		Archiver:  archiver,
		Timeout:   cfg.WebhookTimeout,
	})
	local.Bind(dispatcher)

	svc := lifecycle.NewService(lifecycle.ServiceDeps{
		Cases:      deps.CaseRepo,
		Guard:      guard,
		Dispatcher: dispatcher,
		CaseTTL:    cfg.CaseTTL,
	})

	authz := deps.Authorizer
	if authz == nil {
		authz = allowAllAuthorizer{}
	}

	limiter := ratelimit.NewLimiter(deps.RateLimitRepo)
	sharedRL := appmiddleware.RateLimit(limiter, appmiddleware.Limits{
		PerKey: cfg.KeyRateLimit,
		PerIP:  cfg.IPRateLimit,
		Window: cfg.RateLimitWindow,
	})
	// 5 requests/second, burst of 10 — sheds bursts on write endpoints before
	// they reach the shared counter store.
	surge := appmiddleware.NewSurgeGuard(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	verifH := handler.NewVerificationHandler(svc, authz)
	deliveryH := handler.NewDeliveryHandler(svc, deps.DeliveryLogRepo)
	clientH := handler.NewClientHandler(deps.ClientWebhookRepo)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes ────────────────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		// ── Client routes (gateway-authenticated identity required) ──────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.ClientIdentity)
			r.Use(sharedRL)

			r.With(surge.Limit).Post("/verifications", verifH.Create)
			r.Get("/verifications", verifH.List)
			r.Get("/verifications/{id}", verifH.Get)
			r.With(surge.Limit).Post("/verifications/{id}/submit", verifH.Submit)
			r.With(surge.Limit).Post("/verifications/{id}/decision", verifH.Decide)
			r.Get("/verifications/{id}/deliveries", deliveryH.ListByCase)

			r.Get("/clients/{id}/webhook", clientH.GetWebhook)
			r.Put("/clients/{id}/webhook", clientH.PutWebhook)
		})
	})

	return r, &App{Service: svc, Dispatcher: dispatcher}
}
