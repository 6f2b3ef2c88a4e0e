package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/armandavtyann/ticket/internal/apperr"
	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/armandavtyann/ticket/internal/idempotency"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// JobStore is the slice of the job registry the handlers need.
type JobStore interface {
	Create(ctx context.Context, jobType domain.JobType, payload []byte, userID string) (*domain.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, f domain.JobFilters) ([]*domain.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Items(ctx context.Context, jobID uuid.UUID) ([]domain.JobItem, error)
	Summarize(ctx context.Context, jobID uuid.UUID) (domain.JobSummary, error)
}

// IdempotencyGuard deduplicates submissions before a job row is created.
type IdempotencyGuard interface {
	Resolve(ctx context.Context, userID string, jobType domain.JobType,
		payload domain.BulkDeletePayload, callerKey string) idempotency.Resolution
	Store(ctx context.Context, key string, jobID string)
}

// Enqueuer hands a created job to the dispatch layer.
type Enqueuer func(ctx context.Context, msg domain.ExecutionMessage) error

// CancelFlagSetter raises the cooperative cancellation signal.
type CancelFlagSetter interface {
	Set(ctx context.Context, jobID uuid.UUID) error
}

// EventPublisher pushes job-state changes onto the shared bus.
type EventPublisher interface {
	Publish(ctx context.Context, event string, userID string, data any) error
}

type jobsHandler struct {
	store   JobStore
	guard   IdempotencyGuard
	enqueue Enqueuer
	flags   CancelFlagSetter
	bus     EventPublisher
	logger  *slog.Logger
}

type createJobRequest struct {
	Type           domain.JobType  `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// create handles POST /api/jobs. A duplicate submission within the
// idempotency window answers 200 with the existing job instead of creating
// a second one.
func (h *jobsHandler) create(c *gin.Context) {
	who := identityFrom(c)

	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("malformed request body: %v", err))
		return
	}
	if req.Type == "" {
		writeError(c, apperr.Validationf("type is required"))
		return
	}

	payload, err := domain.ParsePayload(req.Type, req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}

	callerKey := c.GetHeader("Idempotency-Key")
	if callerKey == "" {
		callerKey = req.IdempotencyKey
	}

	res := h.guard.Resolve(c.Request.Context(), who.ID, req.Type, payload, callerKey)
	if res.Duplicate {
		if existing, ok := h.lookupExisting(c.Request.Context(), res.ExistingJobID); ok {
			// A still-queued duplicate may be a job whose original request
			// died between creating the row and enqueueing the delivery.
			// Re-issuing the enqueue unsticks it; when the delivery already
			// exists the insert is a no-op.
			if existing.Status == domain.StatusQueued {
				if err := h.requeue(c.Request.Context(), existing); err != nil {
					writeError(c, err)
					return
				}
			}
			c.JSON(http.StatusOK, gin.H{"message": "Job already exists", "job": existing})
			return
		}
		// Stale idempotency record pointing at a missing job; create anew.
	}

	job, err := h.store.Create(c.Request.Context(), req.Type, req.Payload, who.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.guard.Store(c.Request.Context(), res.Key, job.ID.String())

	msg := domain.ExecutionMessage{
		JobID:     job.ID,
		Type:      job.Type,
		TicketIDs: payload.TicketIDs,
		UserID:    who.ID,
	}
	if err := h.enqueue(c.Request.Context(), msg); err != nil {
		// The job row exists but has no delivery yet. Surface the failure
		// so the caller retries; the idempotency record routes the retry
		// back to this row and the duplicate path re-issues the enqueue.
		h.logger.Error("enqueue failed after job create", "job_id", job.ID, "err", err)
		writeError(c, err)
		return
	}

	h.emit(c.Request.Context(), domain.EventJobCreated, who.ID, domain.JobCreatedEvent{
		JobID:    job.ID,
		Type:     job.Type,
		Status:   job.Status,
		Progress: job.Progress,
	})

	c.JSON(http.StatusCreated, gin.H{"job": job})
}

// requeue re-issues the dispatch insert for a queued duplicate, using the
// payload persisted on the job row rather than the request's.
func (h *jobsHandler) requeue(ctx context.Context, job *domain.Job) error {
	payload, err := domain.ParsePayload(job.Type, job.Payload)
	if err != nil {
		return err
	}
	return h.enqueue(ctx, domain.ExecutionMessage{
		JobID:     job.ID,
		Type:      job.Type,
		TicketIDs: payload.TicketIDs,
		UserID:    job.UserID,
	})
}

// lookupExisting resolves a duplicate's job id, tolerating garbage in the
// idempotency record.
func (h *jobsHandler) lookupExisting(ctx context.Context, rawID string) (*domain.Job, bool) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		h.logger.Warn("idempotency record holds invalid job id", "value", rawID)
		return nil, false
	}
	job, err := h.store.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			h.logger.Warn("duplicate lookup failed", "job_id", id, "err", err)
		}
		return nil, false
	}
	return job, true
}

// list handles GET /api/jobs. Non-admin callers only ever see their own
// jobs regardless of the userId filter.
func (h *jobsHandler) list(c *gin.Context) {
	who := identityFrom(c)

	filters := domain.JobFilters{
		Type:   domain.JobType(c.Query("type")),
		Status: domain.JobStatus(c.Query("status")),
		UserID: c.Query("userId"),
	}
	if !who.IsAdmin() {
		filters.UserID = who.ID
	}

	jobsList, err := h.store.List(c.Request.Context(), filters)
	if err != nil {
		writeError(c, err)
		return
	}
	if jobsList == nil {
		jobsList = []*domain.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobsList})
}

// get handles GET /api/jobs/:id, returning the job with its recorded items
// and the derived summary.
func (h *jobsHandler) get(c *gin.Context) {
	job, ok := h.authorizedJob(c)
	if !ok {
		return
	}

	items, err := h.store.Items(c.Request.Context(), job.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	summary, err := h.store.Summarize(c.Request.Context(), job.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job, "items": items, "summary": summary})
}

// cancel handles POST /api/jobs/:id/cancel. The registry transition is the
// authoritative part; the Redis flag only makes a running worker notice
// sooner, so a flag write failure is logged and not surfaced.
func (h *jobsHandler) cancel(c *gin.Context) {
	who := identityFrom(c)

	job, ok := h.authorizedJob(c)
	if !ok {
		return
	}

	canceled, err := h.store.Cancel(c.Request.Context(), job.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.flags.Set(c.Request.Context(), canceled.ID); err != nil {
		h.logger.Warn("cancel flag write failed", "job_id", canceled.ID, "err", err)
	}

	h.emit(c.Request.Context(), domain.EventJobCanceled, who.ID, domain.JobCanceledEvent{
		JobID:  canceled.ID,
		Status: canceled.Status,
	})

	c.JSON(http.StatusOK, gin.H{"job": canceled})
}

// authorizedJob parses :id, loads the job, and hides other users' jobs from
// non-admins as a 404. Writes the response itself on failure.
func (h *jobsHandler) authorizedJob(c *gin.Context) (*domain.Job, bool) {
	who := identityFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, apperr.Validationf("invalid job id %q", c.Param("id")))
		return nil, false
	}

	job, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if job.UserID != who.ID && !who.IsAdmin() {
		writeError(c, apperr.NotFoundf("job %s not found", id))
		return nil, false
	}
	return job, true
}

func (h *jobsHandler) emit(ctx context.Context, event, userID string, data any) {
	if err := h.bus.Publish(ctx, event, userID, data); err != nil {
		h.logger.Error("event publish rejected", "event", event, "err", err)
	}
}
