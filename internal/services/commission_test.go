package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atria-app/backend/internal/models"
)

func calcFixture(paidCents int64, tier string) (*Calculator, *models.Job, *models.Provider, *mockRates) {
	provider := activeProvider("Ana", tier, 4.5)
	job := paidJob(uuid.New(), time.Now().Add(24*time.Hour))
	job.PaidCents = paidCents

	rates := &mockRates{
		serviceRates: map[uuid.UUID]float64{},
		tierRates:    map[string]float64{},
	}
	calc := NewCalculator(newMockJobs(job), newMockProviders(provider), rates, 70.0)
	return calc, job, provider, rates
}

func TestCalculateServiceOverrideWins(t *testing.T) {
	calc, job, provider, rates := calcFixture(20000, models.TierGold)
	rates.serviceRates[job.ServiceID] = 80.0
	rates.tierRates[models.TierGold] = 75.0

	res, err := calc.Calculate(context.Background(), job.ID, provider.ID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if res.Rate != 80.0 || res.Source != RateSourceService {
		t.Errorf("got rate=%v source=%s, want service override 80", res.Rate, res.Source)
	}
	if res.CommissionCents != 16000 || res.PlatformCents != 4000 {
		t.Errorf("split = %d/%d, want 16000/4000", res.CommissionCents, res.PlatformCents)
	}
}

func TestCalculateTierRateWhenNoServiceOverride(t *testing.T) {
	calc, job, provider, rates := calcFixture(20000, models.TierGold)
	rates.tierRates[models.TierGold] = 75.0

	res, err := calc.Calculate(context.Background(), job.ID, provider.ID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if res.Rate != 75.0 || res.Source != RateSourceTier {
		t.Errorf("got rate=%v source=%s, want tier rate 75", res.Rate, res.Source)
	}
}

func TestCalculateFallsBackToDefault(t *testing.T) {
	calc, job, provider, _ := calcFixture(20000, models.TierBronze)

	res, err := calc.Calculate(context.Background(), job.ID, provider.ID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if res.Rate != 70.0 || res.Source != RateSourceDefault {
		t.Errorf("got rate=%v source=%s, want default 70", res.Rate, res.Source)
	}
	if res.CommissionCents != 14000 || res.PlatformCents != 6000 {
		t.Errorf("split = %d/%d, want 14000/6000", res.CommissionCents, res.PlatformCents)
	}
}

func TestSplitPaidRoundingPreservesTotal(t *testing.T) {
	cases := []struct {
		paid           int64
		rate           float64
		wantCommission int64
	}{
		{20000, 70.0, 14000},
		{9999, 70.0, 6999},  // 6999.3 rounds down
		{10001, 70.0, 7001}, // 7000.7 rounds up
		{333, 33.5, 112},    // 111.555 rounds up
		{100, 0, 0},
		{100, 100, 100},
	}
	for _, c := range cases {
		commission, platform := SplitPaid(c.paid, c.rate)
		if commission != c.wantCommission {
			t.Errorf("SplitPaid(%d, %v) commission = %d, want %d", c.paid, c.rate, commission, c.wantCommission)
		}
		if commission+platform != c.paid {
			t.Errorf("SplitPaid(%d, %v): %d + %d != paid", c.paid, c.rate, commission, platform)
		}
	}
}
