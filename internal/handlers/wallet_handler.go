package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atria-app/backend/internal/models"
)

// WalletReader is the wallet read model used by the handler.
type WalletReader interface {
	GetByProviderID(ctx context.Context, providerID uuid.UUID) (*models.Wallet, error)
}

// LedgerReader lists a wallet's transaction history.
type LedgerReader interface {
	ListByWalletID(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.WalletTransaction, error)
}

// DebtReader lists a wallet's debts.
type DebtReader interface {
	ListByWalletID(ctx context.Context, walletID uuid.UUID) ([]*models.Debt, error)
}

// WalletHandler serves the provider-facing /v1/wallet endpoints.
type WalletHandler struct {
	Wallets WalletReader
	Ledger  LedgerReader
	Debts   DebtReader
	Logger  *slog.Logger
}

type walletResponse struct {
	Wallet       *models.Wallet              `json:"wallet"`
	Transactions []*models.WalletTransaction `json:"transactions"`
	Debts        []*models.Debt              `json:"debts"`
}

// GetWallet handles GET /v1/wallet: balance, recent ledger entries, and open
// debts for the calling provider. A provider who has never been paid gets an
// empty wallet view, not a 404.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	providerID, ok := callerProviderID(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	wallet, err := h.Wallets.GetByProviderID(r.Context(), providerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusOK, walletResponse{
				Wallet:       &models.Wallet{ProviderID: providerID},
				Transactions: []*models.WalletTransaction{},
				Debts:        []*models.Debt{},
			})
			return
		}
		h.Logger.Error("get wallet", "provider_id", providerID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	txs, err := h.Ledger.ListByWalletID(r.Context(), wallet.ID, limit)
	if err != nil {
		h.Logger.Error("list wallet transactions", "wallet_id", wallet.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	debts, err := h.Debts.ListByWalletID(r.Context(), wallet.ID)
	if err != nil {
		h.Logger.Error("list wallet debts", "wallet_id", wallet.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []*models.WalletTransaction{}
	}
	if debts == nil {
		debts = []*models.Debt{}
	}

	writeJSON(w, http.StatusOK, walletResponse{Wallet: wallet, Transactions: txs, Debts: debts})
}
