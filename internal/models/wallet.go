package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is 1:1 with a provider and created lazily on first settlement.
// BalanceCents never goes negative; every balance mutation is paired with a
// WalletTransaction row in the same database transaction.
type Wallet struct {
	ID                  uuid.UUID `json:"id"`
	ProviderID          uuid.UUID `json:"provider_id"`
	BalanceCents        int64     `json:"balance_cents"`
	FrozenCents         int64     `json:"frozen_cents"`
	TotalEarnedCents    int64     `json:"total_earned_cents"`
	TotalWithdrawnCents int64     `json:"total_withdrawn_cents"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
