package services

import (
	"sort"

	"github.com/atria-app/backend/internal/config"
	"github.com/atria-app/backend/internal/models"
)

// Placeholder proximity score until real geolocation lands. Every candidate
// currently scores the same on this factor.
const proximityPlaceholderScore = 60.0

// Familiarity with the job's venue is a binary high/low score.
const (
	familiarityHighScore = 100.0
	familiarityLowScore  = 40.0
)

// Tier score when a tier is missing from the configured table.
const unknownTierScore = 50.0

// ScoreFactors is the per-factor breakdown behind a candidate's score. Each
// factor is independently normalized to 0-100 before weighting; the priority
// bonus is flat and added after the weighted sum.
type ScoreFactors struct {
	Proximity     float64 `json:"proximity"`
	Familiarity   float64 `json:"familiarity"`
	Rating        float64 `json:"rating"`
	Tier          float64 `json:"tier"`
	Load          float64 `json:"load"`
	PriorityBonus float64 `json:"priority_bonus"`
}

type scoredCandidate struct {
	provider *models.Provider
	score    float64
	factors  ScoreFactors
}

// scoreCandidate computes the weighted dispatch score for one provider.
// priority reflects the requesting customer's priority-booking membership
// benefit, not anything about the provider.
func scoreCandidate(p *models.Provider, familiar, priority bool, cfg config.DispatchConfig) (float64, ScoreFactors) {
	f := ScoreFactors{
		Proximity:   proximityPlaceholderScore,
		Familiarity: familiarityLowScore,
		Rating:      clampScore(p.Rating * 20),
		Tier:        unknownTierScore,
	}
	if familiar {
		f.Familiarity = familiarityHighScore
	}
	if s, ok := cfg.TierScores[p.Tier]; ok {
		f.Tier = s
	}
	if p.DailyQuota > 0 {
		f.Load = clampScore(float64(p.DailyQuota-p.DailyClaimed) / float64(p.DailyQuota) * 100)
	}

	score := f.Proximity*cfg.ProximityWeight +
		f.Familiarity*cfg.FamiliarityWeight +
		f.Rating*cfg.RatingWeight +
		f.Tier*cfg.TierWeight +
		f.Load*cfg.LoadWeight
	if priority {
		f.PriorityBonus = cfg.PriorityBonus
		score += cfg.PriorityBonus
	}
	return score, f
}

// rankCandidates orders best first. Exact score ties break on provider id so
// repeated runs against unchanged data pick the same winner.
func rankCandidates(candidates []scoredCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].provider.ID.String() < candidates[j].provider.ID.String()
	})
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
