package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atria-app/backend/internal/models"
)

// SettlementJobRepo is the job repository interface used by settlement.
type SettlementJobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	SetCommissionTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, rate float64, commissionCents, platformCents int64) (bool, error)
	StampClawbackTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (bool, error)
}

// SettlementWalletRepo is the wallet repository interface used by settlement.
type SettlementWalletRepo interface {
	EnsureForUpdateTx(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) (*models.Wallet, error)
	ApplyCreditTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balanceDelta, earnedDelta int64) (int64, error)
	DeductTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (int64, bool, error)
}

// SettlementDebtRepo is the debt repository interface used by settlement.
type SettlementDebtRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, d *models.Debt) error
	ListPendingForUpdateTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) ([]*models.Debt, error)
	ApplyDeductionTx(ctx context.Context, tx pgx.Tx, debtID, jobID uuid.UUID, amount int64) error
}

// LedgerWriter appends a wallet transaction inside the caller's transaction.
type LedgerWriter interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error
}

// SettlementEvent describes a completed settlement for downstream
// referral/distribution processing.
type SettlementEvent struct {
	JobID           uuid.UUID `json:"job_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	WalletID        uuid.UUID `json:"wallet_id"`
	Rate            float64   `json:"rate"`
	CommissionCents int64     `json:"commission_cents"`
	PlatformCents   int64     `json:"platform_cents"`
	DebtOffsetCents int64     `json:"debt_offset_cents"`
}

// DistributionNotifier hands settlement events to the referral/distribution
// pipeline. Called after commit, best-effort; a failure is logged and never
// rolls back the settlement.
type DistributionNotifier interface {
	JobSettled(ctx context.Context, ev SettlementEvent) error
}

// ClawbackResult reports how a reversal was recovered.
type ClawbackResult struct {
	ClawedBackCents int64 `json:"clawed_back_cents"`
	DebtCreated     bool  `json:"debt_created"`
	DebtCents       int64 `json:"debt_cents,omitempty"`
}

// Settlement credits commission when a job completes and claws it back when
// a settled job is reversed. Both paths run as one atomic transaction
// spanning the job update, wallet update, debt updates, and ledger inserts.
type Settlement struct {
	db          TxBeginner
	jobs        SettlementJobRepo
	wallets     SettlementWalletRepo
	debts       SettlementDebtRepo
	ledger      LedgerWriter
	audit       AuditWriter
	calc        *Calculator
	distributor DistributionNotifier
	notifier    Notifier
	logger      *slog.Logger
}

func NewSettlement(
	db TxBeginner,
	jobs SettlementJobRepo,
	wallets SettlementWalletRepo,
	debts SettlementDebtRepo,
	ledger LedgerWriter,
	audit AuditWriter,
	calc *Calculator,
	distributor DistributionNotifier,
	notifier Notifier,
	logger *slog.Logger,
) *Settlement {
	return &Settlement{
		db:          db,
		jobs:        jobs,
		wallets:     wallets,
		debts:       debts,
		ledger:      ledger,
		audit:       audit,
		calc:        calc,
		distributor: distributor,
		notifier:    notifier,
		logger:      logger,
	}
}

// SettleOnCompletion credits the provider's commission for a completed job,
// exactly once. A second call for the same job is a no-op. Outstanding debts
// are offset oldest-first out of the gross commission before the remainder
// lands on the balance; total_earned always moves by the gross amount.
func (s *Settlement) SettleOnCompletion(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("job %s", jobID)
		}
		return err
	}
	if job.Settled() {
		return nil
	}
	if job.Status != models.JobStatusCompleted {
		return conflict("job %s is %s, not completed", jobID, job.Status)
	}
	if job.ProviderID == nil {
		return invariant("job %s completed without an assigned provider", jobID)
	}
	providerID := *job.ProviderID

	res, err := s.calc.Calculate(ctx, jobID, providerID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Conditional write doubles as the idempotency gate: a concurrent
	// settlement that already set the commission wins, and this one becomes
	// a no-op with nothing applied.
	set, err := s.jobs.SetCommissionTx(ctx, tx, jobID, res.Rate, res.CommissionCents, res.PlatformCents)
	if err != nil {
		return err
	}
	if !set {
		return nil
	}

	wallet, err := s.wallets.EnsureForUpdateTx(ctx, tx, providerID)
	if err != nil {
		return err
	}

	debts, err := s.debts.ListPendingForUpdateTx(ctx, tx, wallet.ID)
	if err != nil {
		return err
	}

	balance := wallet.BalanceCents + res.CommissionCents
	if err := s.ledger.CreateTx(ctx, tx, &models.WalletTransaction{
		ID:                uuid.New(),
		WalletID:          wallet.ID,
		AmountCents:       res.CommissionCents,
		BalanceAfterCents: balance,
		TxType:            models.TxTypeIncome,
		JobID:             &job.ID,
		Title:             "Job commission",
	}); err != nil {
		return err
	}

	remaining := res.CommissionCents
	var offset int64
	for _, d := range debts {
		if remaining == 0 {
			break
		}
		take := min(remaining, d.RemainingCents)
		if err := s.debts.ApplyDeductionTx(ctx, tx, d.ID, job.ID, take); err != nil {
			return err
		}
		balance -= take
		debtID := d.ID
		if err := s.ledger.CreateTx(ctx, tx, &models.WalletTransaction{
			ID:                uuid.New(),
			WalletID:          wallet.ID,
			AmountCents:       -take,
			BalanceAfterCents: balance,
			TxType:            models.TxTypeRefund,
			JobID:             &job.ID,
			DebtID:            &debtID,
			Title:             "Debt repayment",
		}); err != nil {
			return err
		}
		remaining -= take
		offset += take
	}

	if _, err := s.wallets.ApplyCreditTx(ctx, tx, wallet.ID, res.CommissionCents-offset, res.CommissionCents); err != nil {
		return err
	}

	detail, err := json.Marshal(map[string]any{
		"rate":              res.Rate,
		"rate_source":       res.Source,
		"commission_cents":  res.CommissionCents,
		"platform_cents":    res.PlatformCents,
		"debt_offset_cents": offset,
	})
	if err != nil {
		return err
	}
	if err := s.audit.CreateTx(ctx, tx, &models.AuditLog{
		ID:         uuid.New(),
		Kind:       models.AuditKindSettlement,
		JobID:      &job.ID,
		ProviderID: &providerID,
		WalletID:   &wallet.ID,
		Detail:     detail,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.logger.Info("job settled",
		"job_id", jobID, "wallet_id", wallet.ID, "rate", res.Rate,
		"commission_cents", res.CommissionCents, "debt_offset_cents", offset)

	go s.afterSettle(job, SettlementEvent{
		JobID:           job.ID,
		ProviderID:      providerID,
		WalletID:        wallet.ID,
		Rate:            res.Rate,
		CommissionCents: res.CommissionCents,
		PlatformCents:   res.PlatformCents,
		DebtOffsetCents: offset,
	})
	return nil
}

// afterSettle runs the best-effort, non-blocking tail of a settlement:
// referral/distribution payout and the credit notification. Failures are
// logged and never undo the settlement.
func (s *Settlement) afterSettle(job *models.Job, ev SettlementEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.distributor != nil {
		if err := s.distributor.JobSettled(ctx, ev); err != nil {
			s.logger.Warn("distribution payout failed",
				"job_id", ev.JobID, "wallet_id", ev.WalletID, "error", err)
		}
	}
	s.notifier.Notify(ctx, Notification{
		Kind:          "wallet.credited",
		RecipientID:   ev.ProviderID,
		RecipientKind: "provider",
		Data: map[string]any{
			"job_id":           ev.JobID,
			"commission_cents": ev.CommissionCents - ev.DebtOffsetCents,
		},
	})
}

// ClawbackOnReversal recovers the settled commission of a reversed job. If
// the wallet balance cannot cover it, the balance is drained to zero and the
// shortfall becomes a pending debt. Insufficient funds is the trigger for
// debt creation, never a failure.
func (s *Settlement) ClawbackOnReversal(ctx context.Context, jobID uuid.UUID, reason string) (*ClawbackResult, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("job %s", jobID)
		}
		return nil, err
	}
	if !job.Settled() || job.ClawedBackAt != nil {
		return &ClawbackResult{}, nil
	}
	if job.ProviderID == nil {
		return nil, invariant("job %s settled without an assigned provider", jobID)
	}
	providerID := *job.ProviderID
	amount := *job.CommissionCents

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	stamped, err := s.jobs.StampClawbackTx(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if !stamped {
		return &ClawbackResult{}, nil
	}

	wallet, err := s.wallets.EnsureForUpdateTx(ctx, tx, providerID)
	if err != nil {
		return nil, err
	}

	var result ClawbackResult
	if wallet.BalanceCents >= amount {
		balance, ok, err := s.wallets.DeductTx(ctx, tx, wallet.ID, amount)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invariant("wallet %s deduction of %d failed despite balance %d", wallet.ID, amount, wallet.BalanceCents)
		}
		if err := s.ledger.CreateTx(ctx, tx, &models.WalletTransaction{
			ID:                uuid.New(),
			WalletID:          wallet.ID,
			AmountCents:       -amount,
			BalanceAfterCents: balance,
			TxType:            models.TxTypeRefund,
			JobID:             &job.ID,
			Title:             "Commission clawback",
			Remark:            reason,
		}); err != nil {
			return nil, err
		}
		result = ClawbackResult{ClawedBackCents: amount}
	} else {
		deducted := wallet.BalanceCents
		if deducted > 0 {
			balance, ok, err := s.wallets.DeductTx(ctx, tx, wallet.ID, deducted)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, invariant("wallet %s partial deduction of %d failed", wallet.ID, deducted)
			}
			if err := s.ledger.CreateTx(ctx, tx, &models.WalletTransaction{
				ID:                uuid.New(),
				WalletID:          wallet.ID,
				AmountCents:       -deducted,
				BalanceAfterCents: balance,
				TxType:            models.TxTypeRefund,
				JobID:             &job.ID,
				Title:             "Commission clawback",
				Remark:            reason,
			}); err != nil {
				return nil, err
			}
		}
		shortfall := amount - deducted
		if err := s.debts.CreateTx(ctx, tx, &models.Debt{
			ID:             uuid.New(),
			WalletID:       wallet.ID,
			JobID:          job.ID,
			OriginalCents:  shortfall,
			RemainingCents: shortfall,
			Status:         models.DebtStatusPending,
		}); err != nil {
			return nil, err
		}
		result = ClawbackResult{ClawedBackCents: deducted, DebtCreated: true, DebtCents: shortfall}
	}

	detail, err := json.Marshal(map[string]any{
		"commission_cents":  amount,
		"clawed_back_cents": result.ClawedBackCents,
		"debt_cents":        result.DebtCents,
		"reason":            reason,
	})
	if err != nil {
		return nil, err
	}
	if err := s.audit.CreateTx(ctx, tx, &models.AuditLog{
		ID:         uuid.New(),
		Kind:       models.AuditKindClawback,
		JobID:      &job.ID,
		ProviderID: &providerID,
		WalletID:   &wallet.ID,
		Detail:     detail,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("job clawed back",
		"job_id", jobID, "wallet_id", wallet.ID,
		"clawed_back_cents", result.ClawedBackCents, "debt_cents", result.DebtCents)

	go func(r ClawbackResult) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.notifier.Notify(ctx, Notification{
			Kind:          "wallet.clawback",
			RecipientID:   providerID,
			RecipientKind: "provider",
			Data: map[string]any{
				"job_id":            jobID,
				"clawed_back_cents": r.ClawedBackCents,
				"debt_cents":        r.DebtCents,
			},
		})
	}(result)

	return &result, nil
}
