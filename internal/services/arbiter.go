package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atria-app/backend/internal/config"
	"github.com/atria-app/backend/internal/models"
)

// Outcome codes for failed claim attempts.
const (
	OutcomeConflict     = "conflict"
	OutcomePolicy       = "policy_violation"
	OutcomeNoCandidates = "no_candidates"
)

// ClaimResult is the caller-facing outcome of a claim attempt. Lost races and
// policy violations are results, not errors: they are expected under
// concurrent demand.
type ClaimResult struct {
	Claimed    bool       `json:"claimed"`
	Code       string     `json:"code,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	JobID      uuid.UUID  `json:"job_id"`
	ProviderID *uuid.UUID `json:"provider_id,omitempty"`
	Method     string     `json:"method,omitempty"`
}

// Recommendation is one row of the read-only scoring preview for operator UIs.
type Recommendation struct {
	ProviderID uuid.UUID    `json:"provider_id"`
	Name       string       `json:"name"`
	Score      float64      `json:"score"`
	Factors    ScoreFactors `json:"factors"`
}

// TxBeginner opens a database transaction. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ArbiterJobRepo is the job repository interface used by the arbitrator.
type ArbiterJobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ClaimTx(ctx context.Context, tx pgx.Tx, jobID, providerID uuid.UUID, method string, snapshot models.ProviderSnapshot) (bool, error)
	ListActiveByProviderBetween(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*models.Job, error)
}

// ArbiterProviderRepo is the provider repository interface used by the
// arbitrator.
type ArbiterProviderRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	ListEligible(ctx context.Context) ([]*models.Provider, error)
	IncrementClaimedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	FamiliarProviders(ctx context.Context, venueID uuid.UUID) (map[uuid.UUID]bool, error)
}

// ArbiterCustomerRepo resolves the requesting customer's membership benefits.
type ArbiterCustomerRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

// AuditWriter appends an audit entry inside the caller's transaction.
type AuditWriter interface {
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.AuditLog) error
}

// Notification is the payload handed to the fire-and-forget notification
// collaborator.
type Notification struct {
	Kind          string         `json:"kind"`
	RecipientID   uuid.UUID      `json:"recipient_id"`
	RecipientKind string         `json:"recipient_kind"` // provider | customer
	Data          map[string]any `json:"data,omitempty"`
}

// Notifier delivers notifications best-effort. Implementations log failures
// internally and never return them to the dispatch path.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Arbitrator decides which single provider takes an unclaimed job. Manual
// assignment, provider race claims, and automatic scored assignment all
// funnel through the same atomic-claim primitive.
type Arbitrator struct {
	db        TxBeginner
	jobs      ArbiterJobRepo
	providers ArbiterProviderRepo
	customers ArbiterCustomerRepo
	audit     AuditWriter
	notifier  Notifier
	cfg       config.DispatchConfig
	logger    *slog.Logger
}

func NewArbitrator(
	db TxBeginner,
	jobs ArbiterJobRepo,
	providers ArbiterProviderRepo,
	customers ArbiterCustomerRepo,
	audit AuditWriter,
	notifier Notifier,
	cfg config.DispatchConfig,
	logger *slog.Logger,
) *Arbitrator {
	return &Arbitrator{
		db:        db,
		jobs:      jobs,
		providers: providers,
		customers: customers,
		audit:     audit,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// AttemptClaim binds the job to the given provider if the job is still
// unclaimed and the provider is eligible. Used by manual assignment, the
// race-claim endpoint, and the sweep.
func (a *Arbitrator) AttemptClaim(ctx context.Context, jobID, providerID uuid.UUID, method string) (*ClaimResult, error) {
	job, err := a.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("job %s", jobID)
		}
		return nil, err
	}
	if job.Status != models.JobStatusPaid || job.ProviderID != nil {
		return unavailable(jobID), nil
	}

	provider, err := a.providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("provider %s", providerID)
		}
		return nil, err
	}

	reason, err := a.eligibilityReason(ctx, job, provider)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return &ClaimResult{Claimed: false, Code: OutcomePolicy, Reason: reason, JobID: jobID}, nil
	}

	return a.claim(ctx, job, provider, method)
}

// AutoAssign scores all eligible providers and claims the job for the
// highest scorer. Used by operator auto-dispatch and the sweep.
func (a *Arbitrator) AutoAssign(ctx context.Context, jobID uuid.UUID) (*ClaimResult, error) {
	job, err := a.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("job %s", jobID)
		}
		return nil, err
	}
	if job.Status != models.JobStatusPaid || job.ProviderID != nil {
		return unavailable(jobID), nil
	}

	ranked, err := a.rankEligible(ctx, job)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return &ClaimResult{Claimed: false, Code: OutcomeNoCandidates, Reason: "no eligible providers", JobID: jobID}, nil
	}

	best := ranked[0]
	result, err := a.claim(ctx, job, best.provider, models.AssignMethodAuto)
	if err != nil {
		return nil, err
	}
	if result.Claimed {
		a.logger.Info("auto-assigned job",
			"job_id", jobID, "provider_id", best.provider.ID, "score", best.score)
	}
	return result, nil
}

// Recommend returns the scoring preview for operator UIs: the top candidates
// with their factor breakdowns. Read-only, mutates nothing.
func (a *Arbitrator) Recommend(ctx context.Context, jobID uuid.UUID, limit int) ([]Recommendation, error) {
	job, err := a.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("job %s", jobID)
		}
		return nil, err
	}

	ranked, err := a.rankEligible(ctx, job)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Recommendation, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, Recommendation{
			ProviderID: c.provider.ID,
			Name:       c.provider.Name,
			Score:      c.score,
			Factors:    c.factors,
		})
	}
	return out, nil
}

// claim is the shared atomic-claim path: one conditional job update plus the
// provider counter bump and audit entry, all in a single transaction. The
// loser of a race observes zero rows affected and gets a conflict result
// with nothing applied.
func (a *Arbitrator) claim(ctx context.Context, job *models.Job, provider *models.Provider, method string) (*ClaimResult, error) {
	tx, err := a.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	won, err := a.jobs.ClaimTx(ctx, tx, job.ID, provider.ID, method, provider.Snapshot())
	if err != nil {
		return nil, err
	}
	if !won {
		return unavailable(job.ID), nil
	}

	counted, err := a.providers.IncrementClaimedTx(ctx, tx, provider.ID)
	if err != nil {
		return nil, err
	}
	if !counted {
		// A concurrent claim used up the provider's last quota slot.
		return &ClaimResult{Claimed: false, Code: OutcomePolicy, Reason: "provider reached daily quota", JobID: job.ID}, nil
	}

	detail, err := json.Marshal(map[string]any{
		"method":   method,
		"provider": provider.Name,
		"tier":     provider.Tier,
	})
	if err != nil {
		return nil, err
	}
	if err := a.audit.CreateTx(ctx, tx, &models.AuditLog{
		ID:         uuid.New(),
		Kind:       models.AuditKindClaim,
		JobID:      &job.ID,
		ProviderID: &provider.ID,
		Detail:     detail,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// Outside the atomic unit, best-effort.
	a.notifier.Notify(ctx, Notification{
		Kind:          "job.assigned",
		RecipientID:   provider.ID,
		RecipientKind: "provider",
		Data:          map[string]any{"job_id": job.ID, "method": method},
	})
	a.notifier.Notify(ctx, Notification{
		Kind:          "job.provider_confirmed",
		RecipientID:   job.CustomerID,
		RecipientKind: "customer",
		Data:          map[string]any{"job_id": job.ID, "provider_name": provider.Name},
	})

	providerID := provider.ID
	return &ClaimResult{Claimed: true, JobID: job.ID, ProviderID: &providerID, Method: method}, nil
}

// eligibilityReason returns a human-readable policy reason, or "" when the
// provider may take the job.
func (a *Arbitrator) eligibilityReason(ctx context.Context, job *models.Job, p *models.Provider) (string, error) {
	if p.Status != models.ProviderStatusActive {
		return "provider is not active", nil
	}
	if p.WorkStatus != models.WorkStatusResting {
		return "provider is not accepting work", nil
	}
	if p.DailyClaimed >= p.DailyQuota {
		return "provider reached daily quota", nil
	}
	conflicting, err := a.hasTimeConflict(ctx, job, p.ID)
	if err != nil {
		return "", err
	}
	if conflicting {
		return "provider has a conflicting booking", nil
	}
	return "", nil
}

// hasTimeConflict converts the job's scheduled start and duration into a
// minute range and checks intersection against the provider's other active
// jobs on the same calendar day.
func (a *Arbitrator) hasTimeConflict(ctx context.Context, job *models.Job, providerID uuid.UUID) (bool, error) {
	dayStart := startOfDay(job.ScheduledAt)
	existing, err := a.jobs.ListActiveByProviderBetween(ctx, providerID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return false, err
	}
	start, end := minuteRange(job)
	for _, other := range existing {
		if other.ID == job.ID {
			continue
		}
		oStart, oEnd := minuteRange(other)
		if start < oEnd && oStart < end {
			return true, nil
		}
	}
	return false, nil
}

// rankEligible builds the scored candidate list for automatic assignment and
// recommendations: eligibility filter, rating floor, venue-familiarity
// restriction (with fallback to the unrestricted pool), then weighted scoring.
func (a *Arbitrator) rankEligible(ctx context.Context, job *models.Job) ([]scoredCandidate, error) {
	providers, err := a.providers.ListEligible(ctx)
	if err != nil {
		return nil, err
	}

	familiar := map[uuid.UUID]bool{}
	if job.VenueID != nil {
		familiar, err = a.providers.FamiliarProviders(ctx, *job.VenueID)
		if err != nil {
			return nil, err
		}
	}

	priority := false
	customer, err := a.customers.GetByID(ctx, job.CustomerID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if customer != nil {
		priority = customer.PriorityBooking
	}

	var pool []*models.Provider
	for _, p := range providers {
		if p.Rating < a.cfg.MinRating {
			continue
		}
		conflicting, err := a.hasTimeConflict(ctx, job, p.ID)
		if err != nil {
			return nil, err
		}
		if conflicting {
			continue
		}
		pool = append(pool, p)
	}

	if job.VenueID != nil && len(familiar) > 0 {
		var familiarPool []*models.Provider
		for _, p := range pool {
			if familiar[p.ID] {
				familiarPool = append(familiarPool, p)
			}
		}
		if len(familiarPool) > 0 {
			pool = familiarPool
		}
	}

	candidates := make([]scoredCandidate, 0, len(pool))
	for _, p := range pool {
		score, factors := scoreCandidate(p, familiar[p.ID], priority, a.cfg)
		candidates = append(candidates, scoredCandidate{provider: p, score: score, factors: factors})
	}
	rankCandidates(candidates)
	return candidates, nil
}

func unavailable(jobID uuid.UUID) *ClaimResult {
	return &ClaimResult{Claimed: false, Code: OutcomeConflict, Reason: "job no longer available", JobID: jobID}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func minuteRange(j *models.Job) (int, int) {
	start := j.ScheduledAt.Hour()*60 + j.ScheduledAt.Minute()
	return start, start + j.DurationMinutes
}
