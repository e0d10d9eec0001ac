// Package sweep holds the background housekeeping jobs run through River:
// the periodic auto-assignment pass over stale unclaimed jobs and the daily
// provider-counter reset. Non-overlap is guaranteed by running both on a
// dedicated single-worker queue.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/atria-app/backend/internal/models"
	"github.com/atria-app/backend/internal/services"
)

// QueueName is the dedicated River queue for sweep jobs. It must be
// configured with MaxWorkers 1 so runs never overlap.
const QueueName = "sweep"

type SweepArgs struct{}

func (SweepArgs) Kind() string { return "dispatch_sweep" }

// Assigner is the arbitrator interface the sweep needs.
type Assigner interface {
	AutoAssign(ctx context.Context, jobID uuid.UUID) (*services.ClaimResult, error)
}

// JobSource lists the jobs eligible for sweeping.
type JobSource interface {
	ListUnclaimedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Job, error)
}

// SweepWorker auto-assigns jobs that have sat paid-and-unclaimed past the
// grace period, oldest first, bounded per run. Per-job failures are logged
// and never abort the batch.
type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	assigner Assigner
	jobs     JobSource
	grace    time.Duration
	batch    int
	logger   *slog.Logger
}

func NewSweepWorker(assigner Assigner, jobs JobSource, grace time.Duration, batch int, logger *slog.Logger) *SweepWorker {
	return &SweepWorker{assigner: assigner, jobs: jobs, grace: grace, batch: batch, logger: logger}
}

func (w *SweepWorker) Work(ctx context.Context, _ *river.Job[SweepArgs]) error {
	cutoff := time.Now().Add(-w.grace)
	stale, err := w.jobs.ListUnclaimedBefore(ctx, cutoff, w.batch)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	var assigned int
	for _, job := range stale {
		result, err := w.assigner.AutoAssign(ctx, job.ID)
		if err != nil {
			w.logger.Warn("sweep auto-assign failed", "job_id", job.ID, "error", err)
			continue
		}
		if !result.Claimed {
			w.logger.Info("sweep left job unassigned",
				"job_id", job.ID, "code", result.Code, "reason", result.Reason)
			continue
		}
		assigned++
	}
	w.logger.Info("sweep pass finished", "scanned", len(stale), "assigned", assigned)
	return nil
}

type DailyResetArgs struct{}

func (DailyResetArgs) Kind() string { return "provider_daily_reset" }

// ProviderResetRepo zeroes the daily claim counters.
type ProviderResetRepo interface {
	ResetDailyClaimed(ctx context.Context) (int64, error)
}

// DailyResetWorker resets every provider's daily-claimed counter on the
// daily boundary.
type DailyResetWorker struct {
	river.WorkerDefaults[DailyResetArgs]
	providers ProviderResetRepo
	logger    *slog.Logger
}

func NewDailyResetWorker(providers ProviderResetRepo, logger *slog.Logger) *DailyResetWorker {
	return &DailyResetWorker{providers: providers, logger: logger}
}

func (w *DailyResetWorker) Work(ctx context.Context, _ *river.Job[DailyResetArgs]) error {
	n, err := w.providers.ResetDailyClaimed(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("daily claim counters reset", "providers", n)
	return nil
}
