package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/paycore/internal/http/auth"
	"github.com/MrJamesThe3rd/paycore/internal/http/payment"
	"github.com/MrJamesThe3rd/paycore/internal/http/transaction"
)

type Options struct {
	// JWTSecret enables bearer auth on /api/v1 when set.
	JWTSecret      string
	AllowedOrigins []string
}

func New(
	opts Options,
	paymentsV1 *payment.Handler,
	transactionsV1 *transaction.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	if len(opts.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.Route("/api/v1", func(r chi.Router) {
		if opts.JWTSecret != "" {
			r.Use(auth.Middleware([]byte(opts.JWTSecret)))
		}

		r.Use(middleware.AllowContentType("application/json"))

		r.Route("/payments", paymentsV1.Routes)

		r.Route("/transactions", transactionsV1.Routes)
	})

	return router
}
