package models

import (
	"time"

	"github.com/google/uuid"
)

// Job lifecycle: paid -> assigned -> arrived -> in_progress -> completed,
// with cancelled/refunding/refunded reachable from every pre-completed state
// and completed -> refunded as the reversal edge.
const (
	JobStatusPaid       = "paid"
	JobStatusAssigned   = "assigned"
	JobStatusArrived    = "arrived"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
	JobStatusRefunding  = "refunding"
	JobStatusRefunded   = "refunded"
)

// How a job got bound to its provider.
const (
	AssignMethodManual      = "manual"
	AssignMethodAuto        = "auto"
	AssignMethodRace        = "race"
	AssignMethodPreselected = "preselected"
)

// ProviderSnapshot is the provider's public attributes frozen onto the job at
// claim time, so job history survives later provider changes or deletion.
type ProviderSnapshot struct {
	Name   string  `json:"name"`
	Tier   string  `json:"tier"`
	Rating float64 `json:"rating"`
}

type Job struct {
	ID               uuid.UUID         `json:"id"`
	CustomerID       uuid.UUID         `json:"customer_id"`
	ServiceID        uuid.UUID         `json:"service_id"`
	VenueID          *uuid.UUID        `json:"venue_id,omitempty"`
	Status           string            `json:"status"`
	ProviderID       *uuid.UUID        `json:"provider_id,omitempty"`
	AssignMethod     *string           `json:"assign_method,omitempty"`
	AssignedAt       *time.Time        `json:"assigned_at,omitempty"`
	ProviderSnapshot *ProviderSnapshot `json:"provider_snapshot,omitempty"`
	ScheduledAt      time.Time         `json:"scheduled_at"`
	DurationMinutes  int               `json:"duration_minutes"`
	PaidCents        int64             `json:"paid_cents"`
	CommissionRate   *float64          `json:"commission_rate,omitempty"`
	CommissionCents  *int64            `json:"commission_cents,omitempty"`
	PlatformCents    *int64            `json:"platform_cents,omitempty"`
	ClawedBackAt     *time.Time        `json:"clawed_back_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Settled reports whether commission has already been credited for this job.
// Commission fields are set at most once and never recomputed.
func (j *Job) Settled() bool {
	return j.CommissionCents != nil
}
