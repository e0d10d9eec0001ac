package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atria-app/backend/internal/models"
)

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// CreateTx appends a ledger entry inside the given transaction. Entries are
// never updated or deleted afterwards.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, amount_cents, balance_after_cents, tx_type, job_id, debt_id, title, remark)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, t.ID, t.WalletID, t.AmountCents, t.BalanceAfterCents, t.TxType, t.JobID, t.DebtID, t.Title, t.Remark).Scan(&t.CreatedAt)
}

func (r *TransactionRepo) ListByWalletID(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.WalletTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, wallet_id, amount_cents, balance_after_cents, tx_type, job_id, debt_id, title, remark, created_at
		FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2
	`, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WalletTransaction
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.AmountCents, &t.BalanceAfterCents, &t.TxType, &t.JobID, &t.DebtID, &t.Title, &t.Remark, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
