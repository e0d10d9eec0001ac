package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atria-app/backend/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, customer_id, service_id, venue_id, status, provider_id, assign_method, assigned_at, provider_snapshot, scheduled_at, duration_minutes, paid_cents, commission_rate, commission_cents, platform_cents, clawed_back_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var snapshot []byte
	err := row.Scan(&j.ID, &j.CustomerID, &j.ServiceID, &j.VenueID, &j.Status, &j.ProviderID, &j.AssignMethod, &j.AssignedAt, &snapshot, &j.ScheduledAt, &j.DurationMinutes, &j.PaidCents, &j.CommissionRate, &j.CommissionCents, &j.PlatformCents, &j.ClawedBackAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		var s models.ProviderSnapshot
		if err := json.Unmarshal(snapshot, &s); err != nil {
			return nil, err
		}
		j.ProviderSnapshot = &s
	}
	return &j, nil
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, customer_id, service_id, venue_id, status, scheduled_at, duration_minutes, paid_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, j.ID, j.CustomerID, j.ServiceID, j.VenueID, j.Status, j.ScheduledAt, j.DurationMinutes, j.PaidCents).Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// GetForUpdateTx locks the job row for the duration of the transaction.
func (r *JobRepo) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
}

// ClaimTx is the atomic-claim primitive: a single conditional UPDATE that
// succeeds only while the job is still paid and unassigned. Exactly one of N
// concurrent claim attempts can affect the row; every other caller sees
// false and must treat the job as no longer available.
func (r *JobRepo) ClaimTx(ctx context.Context, tx pgx.Tx, jobID, providerID uuid.UUID, method string, snapshot models.ProviderSnapshot) (bool, error) {
	snap, err := json.Marshal(snapshot)
	if err != nil {
		return false, err
	}
	result, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = $2, provider_id = $3, assign_method = $4, assigned_at = now(), provider_snapshot = $5, updated_at = now()
		WHERE id = $1 AND status = $6 AND provider_id IS NULL
	`, jobID, models.JobStatusAssigned, providerID, method, snap, models.JobStatusPaid)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// Transition moves the job from one status to another, succeeding only if the
// job is currently in the expected status.
func (r *JobRepo) Transition(ctx context.Context, jobID uuid.UUID, from, to string) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $3, updated_at = now() WHERE id = $1 AND status = $2
	`, jobID, from, to)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// SetCommissionTx persists the commission split onto the job, at most once.
// Returns false when another settlement already set it.
func (r *JobRepo) SetCommissionTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, rate float64, commissionCents, platformCents int64) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE jobs
		SET commission_rate = $2, commission_cents = $3, platform_cents = $4, updated_at = now()
		WHERE id = $1 AND commission_cents IS NULL
	`, jobID, rate, commissionCents, platformCents)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// StampClawbackTx marks the job's commission as clawed back, at most once.
func (r *JobRepo) StampClawbackTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE jobs SET clawed_back_at = now(), updated_at = now()
		WHERE id = $1 AND commission_cents IS NOT NULL AND clawed_back_at IS NULL
	`, jobID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ListUnclaimedBefore returns paid, unassigned jobs created at or before the
// cutoff, oldest first, for the sweep pass.
func (r *JobRepo) ListUnclaimedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = $1 AND provider_id IS NULL AND created_at <= $2
		ORDER BY created_at ASC
		LIMIT $3
	`, models.JobStatusPaid, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

// ListActiveByProviderBetween returns the provider's not-yet-finished jobs
// scheduled inside [from, to), used for time-conflict checks.
func (r *JobRepo) ListActiveByProviderBetween(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE provider_id = $1 AND status = ANY($2) AND scheduled_at >= $3 AND scheduled_at < $4
		ORDER BY scheduled_at ASC
	`, providerID, []string{models.JobStatusAssigned, models.JobStatusArrived, models.JobStatusInProgress}, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}
