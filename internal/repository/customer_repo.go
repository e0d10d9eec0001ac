package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atria-app/backend/internal/models"
)

type CustomerRepo struct {
	pool *pgxpool.Pool
}

func NewCustomerRepo(pool *pgxpool.Pool) *CustomerRepo {
	return &CustomerRepo{pool: pool}
}

func (r *CustomerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, priority_booking, created_at FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.PriorityBooking, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
