package services

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atria-app/backend/internal/models"
)

// RateSource identifies which level of the precedence cascade produced the
// resolved commission rate, for audit and operator display.
type RateSource string

const (
	RateSourceService RateSource = "service"
	RateSourceTier    RateSource = "tier"
	RateSourceDefault RateSource = "default"
)

// CommissionResult is the resolved split for one job. It is never persisted
// directly; the settlement engine writes its fields onto the job record.
type CommissionResult struct {
	Rate            float64    `json:"rate"`
	CommissionCents int64      `json:"commission_cents"`
	PlatformCents   int64      `json:"platform_cents"`
	Source          RateSource `json:"source"`
}

// CalcJobRepo is the job lookup used by the calculator.
type CalcJobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// CalcProviderRepo is the provider lookup used by the calculator.
type CalcProviderRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
}

// RateSourceRepo reads the configured rate overrides. A nil rate means no
// override at that level.
type RateSourceRepo interface {
	ServiceRate(ctx context.Context, serviceID uuid.UUID) (*float64, error)
	TierRate(ctx context.Context, tier string) (*float64, error)
}

// Calculator resolves the provider's revenue share for a job. It is pure:
// no side effects, safe to call any number of times.
type Calculator struct {
	Jobs        CalcJobRepo
	Providers   CalcProviderRepo
	Rates       RateSourceRepo
	DefaultRate float64
}

func NewCalculator(jobs CalcJobRepo, providers CalcProviderRepo, rates RateSourceRepo, defaultRate float64) *Calculator {
	return &Calculator{Jobs: jobs, Providers: providers, Rates: rates, DefaultRate: defaultRate}
}

// Calculate resolves exactly one rate via the three-level cascade (service
// override, then provider-tier default, then global default) and splits the
// job's paid amount.
func (c *Calculator) Calculate(ctx context.Context, jobID, providerID uuid.UUID) (*CommissionResult, error) {
	job, err := c.Jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("job %s", jobID)
		}
		return nil, err
	}
	provider, err := c.Providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("provider %s", providerID)
		}
		return nil, err
	}

	rate, source, err := c.resolveRate(ctx, job.ServiceID, provider.Tier)
	if err != nil {
		return nil, err
	}

	commission, platform := SplitPaid(job.PaidCents, rate)
	return &CommissionResult{
		Rate:            rate,
		CommissionCents: commission,
		PlatformCents:   platform,
		Source:          source,
	}, nil
}

// resolveRate walks the cascade in order; first non-nil rate wins.
func (c *Calculator) resolveRate(ctx context.Context, serviceID uuid.UUID, tier string) (float64, RateSource, error) {
	if rate, err := c.Rates.ServiceRate(ctx, serviceID); err != nil {
		return 0, "", err
	} else if rate != nil {
		return *rate, RateSourceService, nil
	}
	if rate, err := c.Rates.TierRate(ctx, tier); err != nil {
		return 0, "", err
	} else if rate != nil {
		return *rate, RateSourceTier, nil
	}
	return c.DefaultRate, RateSourceDefault, nil
}

// SplitPaid computes the provider/platform split. Only the commission side is
// rounded (to whole cents, half away from zero); the platform amount is the
// remainder, so commission + platform always equals the paid amount exactly.
func SplitPaid(paidCents int64, rate float64) (commissionCents, platformCents int64) {
	commissionCents = int64(math.Round(float64(paidCents) * rate / 100))
	return commissionCents, paidCents - commissionCents
}
