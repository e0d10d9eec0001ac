package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atria-app/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, provider_id, balance_cents, frozen_cents, total_earned_cents, total_withdrawn_cents, created_at, updated_at`

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.ProviderID, &w.BalanceCents, &w.FrozenCents, &w.TotalEarnedCents, &w.TotalWithdrawnCents, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepo) GetByProviderID(ctx context.Context, providerID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE provider_id = $1`, providerID))
}

// EnsureForUpdateTx returns the provider's wallet locked for the duration of
// the transaction, creating it first if the provider has never been paid.
// The row lock serializes concurrent settlements against the same wallet.
func (r *WalletRepo) EnsureForUpdateTx(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) (*models.Wallet, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallets (id, provider_id) VALUES ($1, $2)
		ON CONFLICT (provider_id) DO NOTHING
	`, uuid.New(), providerID)
	if err != nil {
		return nil, err
	}
	return scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE provider_id = $1 FOR UPDATE`, providerID))
}

// ApplyCreditTx moves the balance by balanceDelta and total_earned by
// earnedDelta. The deltas differ when part of a commission was swallowed by
// outstanding debt: total_earned always reflects the gross amount.
func (r *WalletRepo) ApplyCreditTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balanceDelta, earnedDelta int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET balance_cents = balance_cents + $2, total_earned_cents = total_earned_cents + $3, updated_at = now()
		WHERE id = $1
		RETURNING balance_cents
	`, walletID, balanceDelta, earnedDelta).Scan(&balance)
	return balance, err
}

// DeductTx removes amount from both balance and total_earned, succeeding only
// if the balance covers it. Returns the new balance and whether any row was
// affected.
func (r *WalletRepo) DeductTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (int64, bool, error) {
	var balance int64
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET balance_cents = balance_cents - $2, total_earned_cents = total_earned_cents - $2, updated_at = now()
		WHERE id = $1 AND balance_cents >= $2
		RETURNING balance_cents
	`, walletID, amount).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}
