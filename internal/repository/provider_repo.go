package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atria-app/backend/internal/models"
)

type ProviderRepo struct {
	pool *pgxpool.Pool
}

func NewProviderRepo(pool *pgxpool.Pool) *ProviderRepo {
	return &ProviderRepo{pool: pool}
}

const providerColumns = `id, name, status, work_status, tier, rating, daily_claimed, daily_quota, total_jobs, created_at, updated_at`

func scanProvider(row rowScanner) (*models.Provider, error) {
	var p models.Provider
	err := row.Scan(&p.ID, &p.Name, &p.Status, &p.WorkStatus, &p.Tier, &p.Rating, &p.DailyClaimed, &p.DailyQuota, &p.TotalJobs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProviderRepo) Create(ctx context.Context, p *models.Provider) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO providers (id, name, status, work_status, tier, rating, daily_claimed, daily_quota, total_jobs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Status, p.WorkStatus, p.Tier, p.Rating, p.DailyClaimed, p.DailyQuota, p.TotalJobs).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *ProviderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	return scanProvider(r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
}

// ListEligible returns providers that can take new work right now: active,
// resting, and under their daily quota. Time-conflict filtering happens in
// the arbitrator, not here.
func (r *ProviderRepo) ListEligible(ctx context.Context) ([]*models.Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+` FROM providers
		WHERE status = $1 AND work_status = $2 AND daily_claimed < daily_quota
		ORDER BY id
	`, models.ProviderStatusActive, models.WorkStatusResting)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// IncrementClaimedTx bumps the daily and lifetime job counters, guarded by
// the daily quota so a concurrent claim can never push a provider over it.
func (r *ProviderRepo) IncrementClaimedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE providers
		SET daily_claimed = daily_claimed + 1, total_jobs = total_jobs + 1, updated_at = now()
		WHERE id = $1 AND daily_claimed < daily_quota
	`, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ResetDailyClaimed zeroes every provider's daily counter. Run once per day
// by the sweep scheduler's housekeeping job.
func (r *ProviderRepo) ResetDailyClaimed(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE providers SET daily_claimed = 0, updated_at = now() WHERE daily_claimed > 0
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// FamiliarProviders returns the set of providers with declared familiarity
// with the given venue.
func (r *ProviderRepo) FamiliarProviders(ctx context.Context, venueID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT provider_id FROM provider_venues WHERE venue_id = $1`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	familiar := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		familiar[id] = true
	}
	return familiar, rows.Err()
}
