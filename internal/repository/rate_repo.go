package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RateRepo reads the configured commission-rate overrides. A nil rate means
// "no override at this level" and the cascade falls through.
type RateRepo struct {
	pool *pgxpool.Pool
}

func NewRateRepo(pool *pgxpool.Pool) *RateRepo {
	return &RateRepo{pool: pool}
}

func (r *RateRepo) ServiceRate(ctx context.Context, serviceID uuid.UUID) (*float64, error) {
	var rate *float64
	err := r.pool.QueryRow(ctx, `SELECT commission_rate FROM services WHERE id = $1`, serviceID).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rate, nil
}

func (r *RateRepo) TierRate(ctx context.Context, tier string) (*float64, error) {
	var rate *float64
	err := r.pool.QueryRow(ctx, `SELECT commission_rate FROM tiers WHERE name = $1`, tier).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rate, nil
}
