package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DebtStatusPending   = "pending"
	DebtStatusCompleted = "completed"
)

// Debt is a clawback shortfall recovered from the provider's future
// commission, oldest debt first. RemainingCents only ever decreases; status
// becomes completed exactly when it reaches zero and never reopens.
type Debt struct {
	ID             uuid.UUID `json:"id"`
	WalletID       uuid.UUID `json:"wallet_id"`
	JobID          uuid.UUID `json:"job_id"`
	OriginalCents  int64     `json:"original_cents"`
	RemainingCents int64     `json:"remaining_cents"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DebtDeduction records one partial offset of a debt out of a settling job's
// commission.
type DebtDeduction struct {
	ID          uuid.UUID `json:"id"`
	DebtID      uuid.UUID `json:"debt_id"`
	JobID       uuid.UUID `json:"job_id"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}
