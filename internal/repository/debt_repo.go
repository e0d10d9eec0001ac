package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atria-app/backend/internal/models"
)

type DebtRepo struct {
	pool *pgxpool.Pool
}

func NewDebtRepo(pool *pgxpool.Pool) *DebtRepo {
	return &DebtRepo{pool: pool}
}

const debtColumns = `id, wallet_id, job_id, original_cents, remaining_cents, status, created_at, updated_at`

func scanDebt(row rowScanner) (*models.Debt, error) {
	var d models.Debt
	err := row.Scan(&d.ID, &d.WalletID, &d.JobID, &d.OriginalCents, &d.RemainingCents, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DebtRepo) CreateTx(ctx context.Context, tx pgx.Tx, d *models.Debt) error {
	return tx.QueryRow(ctx, `
		INSERT INTO debts (id, wallet_id, job_id, original_cents, remaining_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, d.ID, d.WalletID, d.JobID, d.OriginalCents, d.RemainingCents, d.Status).Scan(&d.CreatedAt, &d.UpdatedAt)
}

// ListPendingForUpdateTx returns the wallet's open debts oldest first, locked
// for the duration of the transaction so the FIFO offset cannot interleave
// with another settlement.
func (r *DebtRepo) ListPendingForUpdateTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) ([]*models.Debt, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+debtColumns+` FROM debts
		WHERE wallet_id = $1 AND status = $2
		ORDER BY created_at ASC
		FOR UPDATE
	`, walletID, models.DebtStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// ApplyDeductionTx reduces the debt's remaining balance by amount, flips the
// status to completed when it hits zero, and records the deduction. The
// remaining balance never reopens once completed.
func (r *DebtRepo) ApplyDeductionTx(ctx context.Context, tx pgx.Tx, debtID, jobID uuid.UUID, amount int64) error {
	result, err := tx.Exec(ctx, `
		UPDATE debts
		SET remaining_cents = remaining_cents - $2,
		    status = CASE WHEN remaining_cents - $2 <= 0 THEN 'completed' ELSE status END,
		    updated_at = now()
		WHERE id = $1 AND status = 'pending' AND remaining_cents >= $2
	`, debtID, amount)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("debt %s: deduction %d exceeds remaining balance", debtID, amount)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO debt_deductions (id, debt_id, job_id, amount_cents)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), debtID, jobID, amount)
	return err
}

func (r *DebtRepo) ListByWalletID(ctx context.Context, walletID uuid.UUID) ([]*models.Debt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+debtColumns+` FROM debts WHERE wallet_id = $1 ORDER BY created_at ASC
	`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}
