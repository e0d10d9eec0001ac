package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProviderStatusPending   = "pending"
	ProviderStatusActive    = "active"
	ProviderStatusInactive  = "inactive"
	ProviderStatusSuspended = "suspended"
)

// Work status: only resting providers accept new jobs.
const (
	WorkStatusResting = "resting"
	WorkStatusWorking = "working"
	WorkStatusBusy    = "busy"
)

// Provider tiers, lowest to highest. Tier affects both commission-rate
// precedence and dispatch scoring weight.
const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
)

type Provider struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	WorkStatus   string    `json:"work_status"`
	Tier         string    `json:"tier"`
	Rating       float64   `json:"rating"`
	DailyClaimed int       `json:"daily_claimed"`
	DailyQuota   int       `json:"daily_quota"`
	TotalJobs    int       `json:"total_jobs"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot returns the denormalized value embedded into a job at claim time.
func (p *Provider) Snapshot() ProviderSnapshot {
	return ProviderSnapshot{Name: p.Name, Tier: p.Tier, Rating: p.Rating}
}
