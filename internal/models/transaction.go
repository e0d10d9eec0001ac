package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet transaction types.
const (
	TxTypeIncome   = "income"
	TxTypeRefund   = "refund"
	TxTypeFrozen   = "frozen"
	TxTypeWithdraw = "withdraw"
)

// WalletTransaction is an append-only ledger entry. AmountCents is signed;
// BalanceAfterCents is the wallet balance immediately after this entry
// applied. Entries are never updated or deleted.
type WalletTransaction struct {
	ID                uuid.UUID  `json:"id"`
	WalletID          uuid.UUID  `json:"wallet_id"`
	AmountCents       int64      `json:"amount_cents"`
	BalanceAfterCents int64      `json:"balance_after_cents"`
	TxType            string     `json:"tx_type"`
	JobID             *uuid.UUID `json:"job_id,omitempty"`
	DebtID            *uuid.UUID `json:"debt_id,omitempty"`
	Title             string     `json:"title"`
	Remark            string     `json:"remark,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
