package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atria-app/backend/internal/auth"
	"github.com/atria-app/backend/internal/middleware"
	"github.com/atria-app/backend/internal/models"
	"github.com/atria-app/backend/internal/services"
)

// JobRepoForHandler is the subset of job repository needed by the handler.
type JobRepoForHandler interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// Arbiter abstracts claim arbitration for the handler.
type Arbiter interface {
	AttemptClaim(ctx context.Context, jobID, providerID uuid.UUID, method string) (*services.ClaimResult, error)
	AutoAssign(ctx context.Context, jobID uuid.UUID) (*services.ClaimResult, error)
	Recommend(ctx context.Context, jobID uuid.UUID, limit int) ([]services.Recommendation, error)
}

// LifecycleAPI abstracts the job state machine for the handler.
type LifecycleAPI interface {
	MarkArrived(ctx context.Context, jobID, providerID uuid.UUID) error
	Start(ctx context.Context, jobID, providerID uuid.UUID) error
	Complete(ctx context.Context, jobID uuid.UUID) error
	Cancel(ctx context.Context, jobID uuid.UUID) error
	Reverse(ctx context.Context, jobID uuid.UUID, reason string) (*services.ClawbackResult, error)
	MarkRefunded(ctx context.Context, jobID uuid.UUID) error
}

// JobHandler serves /v1/jobs endpoints.
type JobHandler struct {
	Jobs      JobRepoForHandler
	Arbiter   Arbiter
	Lifecycle LifecycleAPI
	Logger    *slog.Logger
}

// --- POST /v1/jobs ---

type createJobRequest struct {
	CustomerID      string `json:"customer_id"`
	ServiceID       string `json:"service_id"`
	VenueID         string `json:"venue_id,omitempty"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
	PaidCents       int64  `json:"paid_cents"`
	ProviderID      string `json:"provider_id,omitempty"`
}

type createJobResponse struct {
	JobID  string                `json:"job_id"`
	Status string                `json:"status"`
	Claim  *services.ClaimResult `json:"claim,omitempty"`
}

// CreateJob handles POST /v1/jobs. The job enters the pool as paid; when a
// provider was preselected at booking time, a claim for that provider runs
// immediately.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		http.Error(w, `{"error":"invalid customer_id"}`, http.StatusBadRequest)
		return
	}
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		http.Error(w, `{"error":"invalid service_id"}`, http.StatusBadRequest)
		return
	}
	var venueID *uuid.UUID
	if req.VenueID != "" {
		v, err := uuid.Parse(req.VenueID)
		if err != nil {
			http.Error(w, `{"error":"invalid venue_id"}`, http.StatusBadRequest)
			return
		}
		venueID = &v
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		http.Error(w, `{"error":"invalid scheduled_at, expected RFC3339"}`, http.StatusBadRequest)
		return
	}
	if req.DurationMinutes <= 0 {
		http.Error(w, `{"error":"duration_minutes must be > 0"}`, http.StatusBadRequest)
		return
	}
	if req.PaidCents <= 0 {
		http.Error(w, `{"error":"paid_cents must be > 0"}`, http.StatusBadRequest)
		return
	}

	job := &models.Job{
		ID:              uuid.New(),
		CustomerID:      customerID,
		ServiceID:       serviceID,
		VenueID:         venueID,
		Status:          models.JobStatusPaid,
		ScheduledAt:     scheduledAt,
		DurationMinutes: req.DurationMinutes,
		PaidCents:       req.PaidCents,
	}
	if err := h.Jobs.Create(r.Context(), job); err != nil {
		h.Logger.Error("create job", "error", err)
		http.Error(w, `{"error":"failed to create job"}`, http.StatusInternalServerError)
		return
	}

	resp := createJobResponse{JobID: job.ID.String(), Status: job.Status}

	if req.ProviderID != "" {
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			http.Error(w, `{"error":"invalid provider_id"}`, http.StatusBadRequest)
			return
		}
		claim, err := h.Arbiter.AttemptClaim(r.Context(), job.ID, providerID, models.AssignMethodPreselected)
		if err != nil {
			// The job exists; report it with the claim failure attached.
			h.Logger.Error("preselected claim failed", "job_id", job.ID, "provider_id", providerID, "error", err)
		} else {
			resp.Claim = claim
			if claim.Claimed {
				resp.Status = models.JobStatusAssigned
			}
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

// --- GET /v1/jobs/{id} ---

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	job, err := h.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("get job", "job_id", jobID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- POST /v1/jobs/{id}/assign ---

type assignRequest struct {
	ProviderID string `json:"provider_id"`
}

// Assign handles operator-driven manual assignment.
func (h *JobHandler) Assign(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		http.Error(w, `{"error":"invalid provider_id"}`, http.StatusBadRequest)
		return
	}
	result, err := h.Arbiter.AttemptClaim(r.Context(), jobID, providerID, models.AssignMethodManual)
	if err != nil {
		h.serviceError(w, err, "assign job", jobID)
		return
	}
	writeJSON(w, claimStatus(result), result)
}

// --- POST /v1/jobs/{id}/auto-assign ---

func (h *JobHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	result, err := h.Arbiter.AutoAssign(r.Context(), jobID)
	if err != nil {
		h.serviceError(w, err, "auto-assign job", jobID)
		return
	}
	writeJSON(w, claimStatus(result), result)
}

// --- POST /v1/jobs/{id}/claim ---

// Claim is the provider-side race endpoint: first eligible caller wins.
func (h *JobHandler) Claim(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	providerID, ok := callerProviderID(w, r)
	if !ok {
		return
	}
	result, err := h.Arbiter.AttemptClaim(r.Context(), jobID, providerID, models.AssignMethodRace)
	if err != nil {
		h.serviceError(w, err, "claim job", jobID)
		return
	}
	writeJSON(w, claimStatus(result), result)
}

// --- GET /v1/jobs/{id}/recommendations ---

func (h *JobHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := h.Arbiter.Recommend(r.Context(), jobID, limit)
	if err != nil {
		h.serviceError(w, err, "recommend providers", jobID)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// --- lifecycle endpoints ---

// Arrive handles POST /v1/jobs/{id}/arrive (assigned provider only).
func (h *JobHandler) Arrive(w http.ResponseWriter, r *http.Request) {
	h.providerTransition(w, r, "arrive", h.Lifecycle.MarkArrived)
}

// Start handles POST /v1/jobs/{id}/start (assigned provider only).
func (h *JobHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.providerTransition(w, r, "start", h.Lifecycle.Start)
}

// Complete handles POST /v1/jobs/{id}/complete. Settlement runs behind the
// status change; its failure never turns a completed job into an error here.
func (h *JobHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, "complete", h.Lifecycle.Complete)
}

// Cancel handles POST /v1/jobs/{id}/cancel.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, "cancel", h.Lifecycle.Cancel)
}

// MarkRefunded handles POST /v1/jobs/{id}/refunded, the payment collaborator's
// confirmation callback for pre-completion refunds.
func (h *JobHandler) MarkRefunded(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, "mark refunded", h.Lifecycle.MarkRefunded)
}

// --- POST /v1/jobs/{id}/reverse ---

type reverseRequest struct {
	Reason string `json:"reason"`
}

// Reverse handles refunds. A completed job is clawed back; earlier states are
// parked in refunding pending payment confirmation.
func (h *JobHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	var req reverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	result, err := h.Lifecycle.Reverse(r.Context(), jobID, req.Reason)
	if err != nil {
		h.serviceError(w, err, "reverse job", jobID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- helpers ---

func (h *JobHandler) providerTransition(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, jobID, providerID uuid.UUID) error) {
	jobID, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	providerID, ok := callerProviderID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), jobID, providerID); err != nil {
		h.serviceError(w, err, action, jobID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID.String()})
}

func (h *JobHandler) simpleTransition(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, jobID uuid.UUID) error) {
	jobID, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	if err := fn(r.Context(), jobID); err != nil {
		h.serviceError(w, err, action, jobID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID.String()})
}

func (h *JobHandler) serviceError(w http.ResponseWriter, err error, action string, jobID uuid.UUID) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrPolicyViolation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		h.Logger.Error(action, "job_id", jobID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

// claimStatus maps a claim result onto an HTTP status: races lost and policy
// rejections are 409/422, not errors.
func claimStatus(result *services.ClaimResult) int {
	if result.Claimed {
		return http.StatusOK
	}
	if result.Code == services.OutcomePolicy {
		return http.StatusUnprocessableEntity
	}
	return http.StatusConflict
}

// callerProviderID resolves the acting provider from the authenticated
// identity. Operators are rejected: these endpoints act as a provider.
func callerProviderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	identity := middleware.IdentityFromCtx(r.Context())
	if identity == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return uuid.Nil, false
	}
	if identity.Role != auth.RoleProvider || identity.ProviderID == nil {
		http.Error(w, `{"error":"caller is not a provider"}`, http.StatusForbidden)
		return uuid.Nil, false
	}
	return *identity.ProviderID, true
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
