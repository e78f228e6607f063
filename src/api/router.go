package api

import (
	"net/http"
	"time"

	"famfin-server/src/config"
	"famfin-server/src/handlers"
	"famfin-server/src/middleware"
	"famfin-server/src/rules"
	"famfin-server/src/util"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plaid/plaid-go/v41/plaid"
)

func NewRouter(pool *pgxpool.Pool, plaidClient *plaid.APIClient, cfg config.Config, defaultRules []rules.Definition) *chi.Mux {
	auth := handlers.AuthConfig{
		JWTSecret:    []byte(cfg.JWTSecret),
		TokenTTL:     cfg.JWTExpiry,
		TOTPIssuer:   cfg.TOTPIssuer,
		DefaultRules: defaultRules,
	}
	jwtAuth := middleware.JWTAuthMiddleware(auth.JWTSecret)
	demo := middleware.DemoModeMiddleware(cfg.DemoMode)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", handlers.Login(pool, auth))
		r.Post("/register", handlers.Register(pool, auth))
		r.Post("/plaid/webhook", handlers.PlaidWebhook(plaidClient, pool, util.PlaidKeyFetcher(plaidClient)))

		// Protected routes. Demo mode runs after auth so super admins keep write access.
		r.With(jwtAuth, demo).Group(func(r chi.Router) {
			// User
			r.Get("/user/{user_id}", handlers.GetUser(pool))
			r.Post("/user/change-password", handlers.ChangePassword(pool))
			r.Delete("/user", handlers.DeleteUser(pool))

			// Two-factor authentication
			r.Post("/2fa/enroll", handlers.EnrollTwoFactor(pool, auth))
			r.Post("/2fa/verify", handlers.VerifyTwoFactor(pool))
			r.Post("/2fa/disable", handlers.DisableTwoFactor(pool))

			// Transactions
			r.Post("/transactions", handlers.CreateTransaction(pool))
			r.Post("/transactions/import", handlers.ImportTransactions(pool))
			r.Get("/transactions", handlers.GetTransactions(pool))
			r.Put("/transactions/{transaction_id}/category", handlers.UpdateTransactionCategory(pool))
			r.Delete("/transactions/{transaction_id}", handlers.DeleteTransaction(pool))
			r.Get("/accounts/{account_id}/transactions", handlers.GetTransactionsFromDB(pool))

			// Plaid
			r.Post("/plaid/create-link-token", handlers.CreateLinkToken(plaidClient))
			r.Post("/plaid/exchange-public-token", handlers.ExchangePublicToken(plaidClient, pool))
			r.Get("/plaid/items", handlers.GetPlaidItemsFromDB(pool))
			r.Delete("/plaid/items/{item_id}", handlers.DeletePlaidItem(plaidClient, pool))
			r.Get("/plaid/accounts/{item_id}", handlers.GetPlaidAccounts(plaidClient, pool))
			r.Get("/plaid/accounts/{item_id}/db", handlers.GetAccountsFromDB(pool))
			r.Post("/plaid/transactions/{item_id}/sync", handlers.SyncTransactions(plaidClient, pool))

			// Transaction Rules
			r.Post("/transaction-rules", handlers.CreateTransactionRule(pool))
			r.Post("/transaction-rules/trigger", handlers.TriggerTransactionRules(pool))
			r.Post("/transaction-rules/preview", handlers.PreviewTransactionRules(pool))
			r.Get("/transaction-rules", handlers.GetAllTransactionRules(pool))
			r.Get("/transaction-rules/{rule_id}", handlers.GetTransactionRuleByID(pool))
			r.Put("/transaction-rules/{rule_id}", handlers.UpdateTransactionRule(pool))
			r.Delete("/transaction-rules/{rule_id}", handlers.DeleteTransactionRule(pool))
		})

		// Super Admin Routes
		r.With(jwtAuth, middleware.SuperAdminMiddleware).Group(func(r chi.Router) {
			r.Post("/admin/cache/clear/{cache_name}", handlers.ClearCache())
		})
	})

	return r
}
