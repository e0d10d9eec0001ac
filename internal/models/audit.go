package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit log kinds written by the dispatch and settlement paths.
const (
	AuditKindClaim      = "job_claimed"
	AuditKindSettlement = "job_settled"
	AuditKindClawback   = "job_clawed_back"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id"`
	Kind       string          `json:"kind"`
	JobID      *uuid.UUID      `json:"job_id,omitempty"`
	ProviderID *uuid.UUID      `json:"provider_id,omitempty"`
	WalletID   *uuid.UUID      `json:"wallet_id,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
