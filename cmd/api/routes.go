package main

import (
	"log/slog"
	"net/http"

	"github.com/atria-app/backend/internal/auth"
	"github.com/atria-app/backend/internal/handlers"
	"github.com/atria-app/backend/internal/middleware"
	"github.com/atria-app/backend/internal/repository"
	"github.com/atria-app/backend/internal/services"
)

// RegisterRoutes adds the /v1/ dispatch and settlement API endpoints.
// Middleware chain: RequireAuth -> (RequireRole where noted) -> handler.
func RegisterRoutes(
	mux *http.ServeMux,
	authHandler *auth.Handler,
	authSvc auth.Service,
	jobRepo *repository.JobRepo,
	walletRepo *repository.WalletRepo,
	transactionRepo *repository.TransactionRepo,
	debtRepo *repository.DebtRepo,
	arbitrator *services.Arbitrator,
	lifecycle *services.Lifecycle,
	logger *slog.Logger,
) {
	jh := &handlers.JobHandler{
		Jobs:      jobRepo,
		Arbiter:   arbitrator,
		Lifecycle: lifecycle,
		Logger:    logger,
	}
	wh := &handlers.WalletHandler{
		Wallets: walletRepo,
		Ledger:  transactionRepo,
		Debts:   debtRepo,
		Logger:  logger,
	}

	authed := middleware.RequireAuth(authSvc)
	operator := middleware.RequireRole(auth.RoleOperator)
	provider := middleware.RequireRole(auth.RoleProvider)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Public auth endpoints
	mux.HandleFunc("POST /v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /v1/auth/login", authHandler.Login)

	// Booking intake and operator dispatch
	mux.Handle("POST /v1/jobs", authed(operator(http.HandlerFunc(jh.CreateJob))))
	mux.Handle("GET /v1/jobs/{id}", authed(http.HandlerFunc(jh.GetJob)))
	mux.Handle("POST /v1/jobs/{id}/assign", authed(operator(http.HandlerFunc(jh.Assign))))
	mux.Handle("POST /v1/jobs/{id}/auto-assign", authed(operator(http.HandlerFunc(jh.AutoAssign))))
	mux.Handle("GET /v1/jobs/{id}/recommendations", authed(operator(http.HandlerFunc(jh.Recommendations))))

	// Provider-side claiming and execution
	mux.Handle("POST /v1/jobs/{id}/claim", authed(provider(http.HandlerFunc(jh.Claim))))
	mux.Handle("POST /v1/jobs/{id}/arrive", authed(provider(http.HandlerFunc(jh.Arrive))))
	mux.Handle("POST /v1/jobs/{id}/start", authed(provider(http.HandlerFunc(jh.Start))))
	mux.Handle("POST /v1/jobs/{id}/complete", authed(http.HandlerFunc(jh.Complete)))

	// Refund flow
	mux.Handle("POST /v1/jobs/{id}/cancel", authed(operator(http.HandlerFunc(jh.Cancel))))
	mux.Handle("POST /v1/jobs/{id}/reverse", authed(operator(http.HandlerFunc(jh.Reverse))))
	mux.Handle("POST /v1/jobs/{id}/refunded", authed(operator(http.HandlerFunc(jh.MarkRefunded))))

	// Provider wallet read model
	mux.Handle("GET /v1/wallet", authed(provider(http.HandlerFunc(wh.GetWallet))))
}
