package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atria-app/backend/internal/config"
	"github.com/atria-app/backend/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeProvider(name, tier string, rating float64) *models.Provider {
	return &models.Provider{
		ID:         uuid.New(),
		Name:       name,
		Status:     models.ProviderStatusActive,
		WorkStatus: models.WorkStatusResting,
		Tier:       tier,
		Rating:     rating,
		DailyQuota: 5,
	}
}

func paidJob(customerID uuid.UUID, scheduledAt time.Time) *models.Job {
	return &models.Job{
		ID:              uuid.New(),
		CustomerID:      customerID,
		ServiceID:       uuid.New(),
		Status:          models.JobStatusPaid,
		ScheduledAt:     scheduledAt,
		DurationMinutes: 60,
		PaidCents:       20000,
	}
}

func newTestArbitrator(jobs *mockJobs, providers *mockProviders, customers *mockCustomers, audit *mockAudit, notifier *mockNotifier) *Arbitrator {
	if customers == nil {
		customers = &mockCustomers{customers: map[uuid.UUID]*models.Customer{}}
	}
	if audit == nil {
		audit = &mockAudit{}
	}
	if notifier == nil {
		notifier = &mockNotifier{}
	}
	return NewArbitrator(mockPool{}, jobs, providers, customers, audit, notifier, config.Default().Dispatch, testLogger())
}

func TestAttemptClaimBindsJobAndCountsQuota(t *testing.T) {
	ctx := context.Background()
	provider := activeProvider("Ana", models.TierGold, 4.8)
	job := paidJob(uuid.New(), time.Now().Add(24*time.Hour))

	jobs := newMockJobs(job)
	providers := newMockProviders(provider)
	audit := &mockAudit{}
	notifier := &mockNotifier{}
	arb := newTestArbitrator(jobs, providers, nil, audit, notifier)

	result, err := arb.AttemptClaim(ctx, job.ID, provider.ID, models.AssignMethodManual)
	if err != nil {
		t.Fatalf("AttemptClaim: %v", err)
	}
	if !result.Claimed {
		t.Fatalf("expected claim to succeed, got code=%s reason=%s", result.Code, result.Reason)
	}

	got := jobs.get(job.ID)
	if got.Status != models.JobStatusAssigned {
		t.Errorf("job status = %s, want assigned", got.Status)
	}
	if got.ProviderID == nil || *got.ProviderID != provider.ID {
		t.Errorf("job provider = %v, want %s", got.ProviderID, provider.ID)
	}
	if got.ProviderSnapshot == nil || got.ProviderSnapshot.Name != "Ana" {
		t.Errorf("provider snapshot not frozen onto job: %+v", got.ProviderSnapshot)
	}
	if n := providers.claimed(provider.ID); n != 1 {
		t.Errorf("daily claimed = %d, want 1", n)
	}
	if len(audit.byKind(models.AuditKindClaim)) != 1 {
		t.Errorf("expected one claim audit entry")
	}
	if kinds := notifier.kinds(); len(kinds) != 2 {
		t.Errorf("expected provider and customer notifications, got %v", kinds)
	}
}

func TestAttemptClaimExactlyOneWinnerUnderContention(t *testing.T) {
	ctx := context.Background()
	job := paidJob(uuid.New(), time.Now().Add(24*time.Hour))
	jobs := newMockJobs(job)

	const n = 16
	contenders := make([]*models.Provider, n)
	all := make([]*models.Provider, n)
	for i := range contenders {
		contenders[i] = activeProvider("p", models.TierSilver, 4.0)
		all[i] = contenders[i]
	}
	providers := newMockProviders(all...)
	arb := newTestArbitrator(jobs, providers, nil, nil, nil)

	var wg sync.WaitGroup
	results := make([]*ClaimResult, n)
	for i, p := range contenders {
		wg.Add(1)
		go func(i int, providerID uuid.UUID) {
			defer wg.Done()
			result, err := arb.AttemptClaim(ctx, job.ID, providerID, models.AssignMethodRace)
			if err != nil {
				t.Errorf("AttemptClaim: %v", err)
				return
			}
			results[i] = result
		}(i, p.ID)
	}
	wg.Wait()

	var winners int
	for _, r := range results {
		if r != nil && r.Claimed {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	var totalClaimed int
	for _, p := range contenders {
		totalClaimed += providers.claimed(p.ID)
	}
	if totalClaimed != 1 {
		t.Errorf("total quota consumed = %d, want 1: losers must leave no side effects", totalClaimed)
	}
}

func TestAttemptClaimRejectsExhaustedQuota(t *testing.T) {
	ctx := context.Background()
	provider := activeProvider("Bo", models.TierBronze, 4.0)
	provider.DailyClaimed = provider.DailyQuota
	job := paidJob(uuid.New(), time.Now().Add(24*time.Hour))

	arb := newTestArbitrator(newMockJobs(job), newMockProviders(provider), nil, nil, nil)

	result, err := arb.AttemptClaim(ctx, job.ID, provider.ID, models.AssignMethodRace)
	if err != nil {
		t.Fatalf("AttemptClaim: %v", err)
	}
	if result.Claimed || result.Code != OutcomePolicy {
		t.Fatalf("got claimed=%v code=%s, want policy violation", result.Claimed, result.Code)
	}
}

func TestAttemptClaimRejectsTimeConflict(t *testing.T) {
	ctx := context.Background()
	provider := activeProvider("Cy", models.TierGold, 4.5)
	scheduledAt := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)

	busy := paidJob(uuid.New(), scheduledAt.Add(30*time.Minute))
	busy.Status = models.JobStatusAssigned
	busy.ProviderID = &provider.ID

	job := paidJob(uuid.New(), scheduledAt)
	arb := newTestArbitrator(newMockJobs(job, busy), newMockProviders(provider), nil, nil, nil)

	result, err := arb.AttemptClaim(ctx, job.ID, provider.ID, models.AssignMethodRace)
	if err != nil {
		t.Fatalf("AttemptClaim: %v", err)
	}
	if result.Claimed || result.Code != OutcomePolicy {
		t.Fatalf("got claimed=%v code=%s, want policy violation for overlapping booking", result.Claimed, result.Code)
	}
}

func TestAttemptClaimLostRaceIsConflictNotError(t *testing.T) {
	ctx := context.Background()
	first := activeProvider("First", models.TierGold, 4.5)
	second := activeProvider("Second", models.TierGold, 4.5)
	job := paidJob(uuid.New(), time.Now().Add(24*time.Hour))

	jobs := newMockJobs(job)
	arb := newTestArbitrator(jobs, newMockProviders(first, second), nil, nil, nil)

	if result, err := arb.AttemptClaim(ctx, job.ID, first.ID, models.AssignMethodRace); err != nil || !result.Claimed {
		t.Fatalf("first claim failed: result=%+v err=%v", result, err)
	}
	result, err := arb.AttemptClaim(ctx, job.ID, second.ID, models.AssignMethodRace)
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if result.Claimed || result.Code != OutcomeConflict {
		t.Fatalf("got claimed=%v code=%s, want conflict", result.Claimed, result.Code)
	}
}

func TestAutoAssignPicksHighestScorer(t *testing.T) {
	ctx := context.Background()
	bronze := activeProvider("Bronze", models.TierBronze, 3.5)
	platinum := activeProvider("Platinum", models.TierPlatinum, 4.9)

	job := paidJob(uuid.New(), time.Now().Add(24*time.Hour))
	jobs := newMockJobs(job)
	arb := newTestArbitrator(jobs, newMockProviders(bronze, platinum), nil, nil, nil)

	result, err := arb.AutoAssign(ctx, job.ID)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if !result.Claimed {
		t.Fatalf("expected auto-assign to claim, got %+v", result)
	}
	if *result.ProviderID != platinum.ID {
		t.Errorf("assigned %s, want the platinum provider", *result.ProviderID)
	}
	if result.Method != models.AssignMethodAuto {
		t.Errorf("method = %s, want auto", result.Method)
	}
}

func TestAutoAssignPrefersVenueFamiliarProviders(t *testing.T) {
	ctx := context.Background()
	stranger := activeProvider("Stranger", models.TierPlatinum, 5.0)
	familiar := activeProvider("Familiar", models.TierBronze, 3.5)

	venueID := uuid.New()
	job := paidJob(uuid.New(), time.Now().Add(24*time.Hour))
	job.VenueID = &venueID

	providers := newMockProviders(stranger, familiar)
	providers.familiar[familiar.ID] = true
	arb := newTestArbitrator(newMockJobs(job), providers, nil, nil, nil)

	result, err := arb.AutoAssign(ctx, job.ID)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if !result.Claimed || *result.ProviderID != familiar.ID {
		t.Fatalf("got %+v, want the venue-familiar provider despite lower score", result)
	}
}

func TestAutoAssignNoCandidates(t *testing.T) {
	ctx := context.Background()
	lowRated := activeProvider("Low", models.TierGold, 2.0)
	job := paidJob(uuid.New(), time.Now().Add(24*time.Hour))

	arb := newTestArbitrator(newMockJobs(job), newMockProviders(lowRated), nil, nil, nil)

	result, err := arb.AutoAssign(ctx, job.ID)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if result.Claimed || result.Code != OutcomeNoCandidates {
		t.Fatalf("got claimed=%v code=%s, want no_candidates", result.Claimed, result.Code)
	}
}

func TestRecommendIncludesPriorityBonus(t *testing.T) {
	ctx := context.Background()
	provider := activeProvider("Ana", models.TierGold, 4.0)
	customerID := uuid.New()
	job := paidJob(customerID, time.Now().Add(24*time.Hour))

	customers := &mockCustomers{customers: map[uuid.UUID]*models.Customer{
		customerID: {ID: customerID, PriorityBooking: true},
	}}
	arb := newTestArbitrator(newMockJobs(job), newMockProviders(provider), customers, nil, nil)

	recs, err := arb.Recommend(ctx, job.ID, 10)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	bonus := config.Default().Dispatch.PriorityBonus
	if recs[0].Factors.PriorityBonus != bonus {
		t.Errorf("priority bonus = %v, want %v", recs[0].Factors.PriorityBonus, bonus)
	}
}

func TestRecommendDeterministicTieBreak(t *testing.T) {
	ctx := context.Background()
	a := activeProvider("Twin", models.TierGold, 4.0)
	b := activeProvider("Twin", models.TierGold, 4.0)
	job := paidJob(uuid.New(), time.Now().Add(24*time.Hour))

	arb := newTestArbitrator(newMockJobs(job), newMockProviders(a, b), nil, nil, nil)

	var first []Recommendation
	for i := 0; i < 5; i++ {
		recs, err := arb.Recommend(ctx, job.ID, 10)
		if err != nil {
			t.Fatalf("Recommend: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("got %d recommendations, want 2", len(recs))
		}
		if recs[0].Score != recs[1].Score {
			t.Fatalf("expected a score tie, got %v vs %v", recs[0].Score, recs[1].Score)
		}
		if recs[0].ProviderID.String() > recs[1].ProviderID.String() {
			t.Fatalf("tie not broken by provider id")
		}
		if first == nil {
			first = recs
			continue
		}
		if recs[0].ProviderID != first[0].ProviderID {
			t.Fatalf("ranking changed between identical runs")
		}
	}
}
