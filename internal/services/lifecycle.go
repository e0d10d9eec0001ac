package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atria-app/backend/internal/models"
)

// LifecycleJobRepo is the job repository interface used by the lifecycle
// transitions.
type LifecycleJobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Transition(ctx context.Context, jobID uuid.UUID, from, to string) (bool, error)
}

// Lifecycle drives the job state machine between claim and settlement:
// assigned -> arrived -> in_progress -> completed, plus the cancellation and
// reversal side-exits. Completion triggers settlement; reversing a completed
// job triggers the clawback.
type Lifecycle struct {
	jobs       LifecycleJobRepo
	settlement *Settlement
	logger     *slog.Logger
}

func NewLifecycle(jobs LifecycleJobRepo, settlement *Settlement, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{jobs: jobs, settlement: settlement, logger: logger}
}

// MarkArrived records that the assigned provider reached the job location.
func (l *Lifecycle) MarkArrived(ctx context.Context, jobID, providerID uuid.UUID) error {
	if err := l.checkOwnership(ctx, jobID, providerID); err != nil {
		return err
	}
	return l.transition(ctx, jobID, models.JobStatusAssigned, models.JobStatusArrived)
}

// Start moves an arrived job into progress.
func (l *Lifecycle) Start(ctx context.Context, jobID, providerID uuid.UUID) error {
	if err := l.checkOwnership(ctx, jobID, providerID); err != nil {
		return err
	}
	return l.transition(ctx, jobID, models.JobStatusArrived, models.JobStatusInProgress)
}

// Complete finishes the job and credits commission. The status transition is
// what the caller observes; a settlement failure is logged with enough
// context to reconcile manually and never surfaces to the end user.
func (l *Lifecycle) Complete(ctx context.Context, jobID uuid.UUID) error {
	if err := l.transition(ctx, jobID, models.JobStatusInProgress, models.JobStatusCompleted); err != nil {
		return err
	}
	if err := l.settlement.SettleOnCompletion(ctx, jobID); err != nil {
		l.logger.Error("settlement failed after completion", "job_id", jobID, "error", err)
	}
	return nil
}

// Cancel aborts a job from any pre-completed state.
func (l *Lifecycle) Cancel(ctx context.Context, jobID uuid.UUID) error {
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("job %s", jobID)
		}
		return err
	}
	switch job.Status {
	case models.JobStatusPaid, models.JobStatusAssigned, models.JobStatusArrived, models.JobStatusInProgress:
		return l.transition(ctx, jobID, job.Status, models.JobStatusCancelled)
	default:
		return conflict("job %s is %s and cannot be cancelled", jobID, job.Status)
	}
}

// Reverse handles refunds. Reversing a completed job moves it to refunded and
// claws back the settled commission; reversing an earlier state parks the job
// in refunding until the payment collaborator confirms via MarkRefunded.
func (l *Lifecycle) Reverse(ctx context.Context, jobID uuid.UUID, reason string) (*ClawbackResult, error) {
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("job %s", jobID)
		}
		return nil, err
	}

	switch job.Status {
	case models.JobStatusCompleted:
		if err := l.transition(ctx, jobID, models.JobStatusCompleted, models.JobStatusRefunded); err != nil {
			return nil, err
		}
		result, err := l.settlement.ClawbackOnReversal(ctx, jobID, reason)
		if err != nil {
			l.logger.Error("clawback failed after reversal",
				"job_id", jobID, "reason", reason, "error", err)
			return &ClawbackResult{}, nil
		}
		return result, nil
	case models.JobStatusPaid, models.JobStatusAssigned, models.JobStatusArrived, models.JobStatusInProgress:
		if err := l.transition(ctx, jobID, job.Status, models.JobStatusRefunding); err != nil {
			return nil, err
		}
		return &ClawbackResult{}, nil
	default:
		return nil, conflict("job %s is %s and cannot be reversed", jobID, job.Status)
	}
}

// MarkRefunded completes a pre-completion refund once the payment
// collaborator confirms the money moved. No clawback: the job was never
// settled.
func (l *Lifecycle) MarkRefunded(ctx context.Context, jobID uuid.UUID) error {
	return l.transition(ctx, jobID, models.JobStatusRefunding, models.JobStatusRefunded)
}

func (l *Lifecycle) transition(ctx context.Context, jobID uuid.UUID, from, to string) error {
	moved, err := l.jobs.Transition(ctx, jobID, from, to)
	if err != nil {
		return err
	}
	if !moved {
		return conflict("job %s is not %s", jobID, from)
	}
	return nil
}

func (l *Lifecycle) checkOwnership(ctx context.Context, jobID, providerID uuid.UUID) error {
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("job %s", jobID)
		}
		return err
	}
	if job.ProviderID == nil || *job.ProviderID != providerID {
		return fmt.Errorf("%w: job is not assigned to this provider", ErrPolicyViolation)
	}
	return nil
}
