package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/autoescrow/internal/auth"
	"github.com/MrJamesThe3rd/autoescrow/internal/http/dispute"
	"github.com/MrJamesThe3rd/autoescrow/internal/http/payment"
	"github.com/MrJamesThe3rd/autoescrow/internal/http/transaction"
	"github.com/MrJamesThe3rd/autoescrow/internal/metrics"
)

type Config struct {
	JWTSecret      string
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

func New(
	cfg Config,
	transactionsV1 *transaction.Handler,
	paymentsV1 *payment.Handler,
	disputesV1 *dispute.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware)
		router.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWTSecret))
		r.Use(middleware.AllowContentType("application/json"))

		r.Route("/transactions", func(r chi.Router) {
			transactionsV1.Routes(r)
			r.Route("/{id}/payments", paymentsV1.TransactionRoutes)
			r.Route("/{id}/disputes", disputesV1.TransactionRoutes)
		})

		r.Route("/payments", paymentsV1.Routes)
		r.Route("/disputes", disputesV1.Routes)
	})

	return router
}
