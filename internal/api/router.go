package api

import (
	"net/http"

	"github.com/ayo6706/fx-wallet/internal/api/handler"
	"github.com/ayo6706/fx-wallet/internal/api/middleware"
	"github.com/ayo6706/fx-wallet/internal/api/spec"
	"github.com/ayo6706/fx-wallet/internal/idempotency"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"github.com/ayo6706/fx-wallet/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Store is what the HTTP layer reads directly from the wallet store.
type Store interface {
	handler.Pinger
	repository.NotificationReader
}

// Dependencies carries everything the router hands to its handlers. Redis
// and Idempotency may be nil.
type Dependencies struct {
	Logger         *zap.Logger
	JWT            middleware.JWTConfig
	PublicRPS      int
	WalletRPS      int
	Store          Store
	Redis          redis.Cmdable
	Idempotency    *idempotency.Store
	Engine         *service.Engine
	Wallets        *service.WalletService
	Rates          handler.RateQuoter
	Reconciliation *service.ReconciliationService
	Currencies     []string
}

type Router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.L()
	}
	if deps.PublicRPS <= 0 {
		deps.PublicRPS = 10
	}
	if deps.WalletRPS <= 0 {
		deps.WalletRPS = 100
	}
	return &Router{deps: deps}
}

func (api *Router) Routes() chi.Router {
	d := api.deps
	r := chi.NewRouter()
	r.Use(middleware.Trace)
	r.Use(middleware.Recover(d.Logger))
	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.Metrics)

	healthHandler := handler.NewHealthHandler(d.Store, d.Redis)
	walletHandler := handler.NewWalletHandler(d.Wallets)
	txHandler := handler.NewTransactionHandler(d.Engine)
	fxHandler := handler.NewFXHandler(d.Rates, d.Currencies)
	notificationHandler := handler.NewNotificationHandler(d.Store)
	adminHandler := handler.NewAdminHandler(d.Engine, d.Reconciliation)

	idem := middleware.Idempotency(d.Idempotency, d.Logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(d.PublicRPS))
		r.Get("/health/live", healthHandler.Live)
		r.Get("/health/ready", healthHandler.Ready)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(d.JWT))
		r.Use(middleware.WalletRateLimiter(d.WalletRPS))

		r.Get("/wallets", walletHandler.ListWallets)
		r.With(idem).Post("/wallets", walletHandler.ProvisionWallets)
		r.Get("/wallets/{id}", walletHandler.GetWallet)
		r.Get("/wallets/{id}/transactions", walletHandler.WalletTransactions)

		r.With(idem).Post("/exchanges", txHandler.Exchange)
		r.With(idem).Post("/transfers", txHandler.Transfer)
		r.Get("/transactions", txHandler.ListTransactions)

		r.Get("/fx/rates", fxHandler.Rates)
		r.Get("/notifications", notificationHandler.ListNotifications)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleAdmin))
			r.With(idem).Post("/wallets/{id}/credit", adminHandler.CreditWallet)
			r.With(idem).Patch("/wallets/{id}/status", adminHandler.SetWalletStatus)
			r.Get("/reconciliation", adminHandler.Reconciliation)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "request/not-found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusMethodNotAllowed, "request/method-not-allowed", "method not allowed")
	})

	return r
}
