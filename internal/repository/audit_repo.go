package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atria-app/backend/internal/models"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// CreateTx appends an audit entry inside the caller's transaction so the
// entry commits or rolls back with the operation it describes.
func (r *AuditRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *models.AuditLog) error {
	return tx.QueryRow(ctx, `
		INSERT INTO audit_logs (id, kind, job_id, provider_id, wallet_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, a.ID, a.Kind, a.JobID, a.ProviderID, a.WalletID, a.Detail).Scan(&a.CreatedAt)
}
