/**
 * @description
 * This file sets up the HTTP router for the ledger service. Ledger routes live under
 * /api and sit behind the bearer token middleware; /health stays public.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and standard middleware.
 * - github.com/go-chi/cors: CORS handling.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures cross-cutting HTTP concerns.
type RouterOptions struct {
	AllowedOrigins []string
	JWTSecret      string
}

// NewRouter creates a new Chi router and registers the ledger routes.
func NewRouter(h *Handlers, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(opts.JWTSecret))

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/transfer", h.TransferHandler)
			r.Get("/", h.ListTransactionsHandler)
			r.Get("/recipients/{iban}", h.RecipientIbansHandler)
			r.Get("/iban/{iban}", h.TransactionsByIbanHandler)
			r.Get("/account/{accountNumber}", h.TransactionsByAccountNumberHandler)
			r.Get("/{id}", h.GetTransactionHandler)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.OpenAccountHandler)
			r.Get("/", h.ListAccountsHandler)
			r.Get("/number/{accountNumber}", h.GetAccountByNumberHandler)
			r.Get("/iban/{iban}", h.GetAccountByIbanHandler)
			r.Post("/number/{accountNumber}/deposit", h.DepositHandler)
			r.Post("/number/{accountNumber}/withdraw", h.WithdrawHandler)

			r.Post("/{accountID}/saved-recipients", h.AddSavedRecipientHandler)
			r.Get("/{accountID}/saved-recipients", h.ListSavedRecipientsHandler)
			r.Delete("/{accountID}/saved-recipients/{iban}", h.RemoveSavedRecipientHandler)
		})
	})

	return r
}
