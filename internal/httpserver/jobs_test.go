package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/armandavtyann/ticket/internal/apperr"
	"github.com/armandavtyann/ticket/internal/config"
	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/armandavtyann/ticket/internal/idempotency"
	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeJobStore struct {
	jobs      map[uuid.UUID]*domain.Job
	items     map[uuid.UUID][]domain.JobItem
	created   int
	cancelErr error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:  make(map[uuid.UUID]*domain.Job),
		items: make(map[uuid.UUID][]domain.JobItem),
	}
}

func (f *fakeJobStore) Create(ctx context.Context, jobType domain.JobType, payload []byte, userID string) (*domain.Job, error) {
	f.created++
	job := &domain.Job{
		ID:        uuid.New(),
		Type:      jobType,
		Status:    domain.StatusQueued,
		Payload:   payload,
		UserID:    userID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if job, ok := f.jobs[id]; ok {
		return job, nil
	}
	return nil, apperr.NotFoundf("job %s not found", id)
}

func (f *fakeJobStore) List(ctx context.Context, filt domain.JobFilters) ([]*domain.Job, error) {
	var out []*domain.Job
	for _, job := range f.jobs {
		if filt.UserID != "" && job.UserID != filt.UserID {
			continue
		}
		if filt.Status != "" && job.Status != filt.Status {
			continue
		}
		if filt.Type != "" && job.Type != filt.Type {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (f *fakeJobStore) Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return nil, apperr.NotFoundf("job %s not found", id)
	}
	job.Status = domain.StatusCanceled
	return job, nil
}

func (f *fakeJobStore) Items(ctx context.Context, jobID uuid.UUID) ([]domain.JobItem, error) {
	return f.items[jobID], nil
}

func (f *fakeJobStore) Summarize(ctx context.Context, jobID uuid.UUID) (domain.JobSummary, error) {
	sum := domain.JobSummary{}
	for _, it := range f.items[jobID] {
		sum.Total++
		if it.Success {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}
	return sum, nil
}

type fakeGuard struct {
	existing string
	stored   map[string]string
}

func (f *fakeGuard) Resolve(ctx context.Context, userID string, jobType domain.JobType,
	payload domain.BulkDeletePayload, callerKey string) idempotency.Resolution {
	key := callerKey
	if key == "" {
		key = idempotency.Key(userID, jobType, payload)
	}
	if f.existing != "" {
		return idempotency.Resolution{Key: key, Duplicate: true, ExistingJobID: f.existing}
	}
	if jobID, ok := f.stored[key]; ok {
		return idempotency.Resolution{Key: key, Duplicate: true, ExistingJobID: jobID}
	}
	return idempotency.Resolution{Key: key}
}

func (f *fakeGuard) Store(ctx context.Context, key string, jobID string) {
	if f.stored == nil {
		f.stored = make(map[string]string)
	}
	f.stored[key] = jobID
}

type fakeFlagSetter struct {
	set []uuid.UUID
}

func (f *fakeFlagSetter) Set(ctx context.Context, jobID uuid.UUID) error {
	f.set = append(f.set, jobID)
	return nil
}

type fakeEventBus struct {
	events []string
}

func (f *fakeEventBus) Publish(ctx context.Context, event string, userID string, data any) error {
	f.events = append(f.events, event)
	return nil
}

type harness struct {
	store      *fakeJobStore
	tix        *fakeTicketStore
	guard      *fakeGuard
	flags      *fakeFlagSetter
	bus        *fakeEventBus
	enqueued   []domain.ExecutionMessage
	enqueueErr error // consumed by the next enqueue call
	handler    http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: newFakeJobStore(),
		tix:   &fakeTicketStore{},
		guard: &fakeGuard{},
		flags: &fakeFlagSetter{},
		bus:   &fakeEventBus{},
	}
	cfg := config.Config{JWTSecret: testSecret, FrontendURL: "http://localhost:3000"}
	srv := New(cfg, Deps{
		Jobs:    h.store,
		Tickets: h.tix,
		Guard:   h.guard,
		Enqueue: func(ctx context.Context, msg domain.ExecutionMessage) error {
			if err := h.enqueueErr; err != nil {
				h.enqueueErr = nil
				return err
			}
			h.enqueued = append(h.enqueued, msg)
			return nil
		},
		Flags:  h.flags,
		Bus:    h.bus,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.handler = srv.Handler()
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func signToken(t *testing.T, id, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":    id,
		"email": id + "@example.com",
		"role":  role,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func bulkDeleteBody(ids ...string) map[string]any {
	return map[string]any{
		"type":    "bulk-delete",
		"payload": map[string]any{"ticketIds": ids},
	}
}

func TestCreateJobQueuesAndEmits(t *testing.T) {
	h := newHarness(t)
	ticketID := uuid.NewString()

	rec := h.do(t, http.MethodPost, "/api/jobs", bulkDeleteBody(ticketID), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Job domain.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatusQueued, resp.Job.Status)
	assert.Equal(t, "user-1", resp.Job.UserID, "no auth header resolves the dev identity")

	require.Len(t, h.enqueued, 1)
	assert.Equal(t, resp.Job.ID, h.enqueued[0].JobID)
	assert.Equal(t, []string{ticketID}, h.enqueued[0].TicketIDs)

	assert.Contains(t, h.bus.events, domain.EventJobCreated)
	assert.Len(t, h.guard.stored, 1, "idempotency record written after create")
}

func TestCreateJobDuplicateReturnsExisting(t *testing.T) {
	h := newHarness(t)
	existing, err := h.store.Create(context.Background(), domain.TypeBulkDelete, []byte(`{"ticketIds":[]}`), "user-1")
	require.NoError(t, err)
	existing.Status = domain.StatusRunning
	h.guard.existing = existing.ID.String()
	createdBefore := h.store.created

	rec := h.do(t, http.MethodPost, "/api/jobs", bulkDeleteBody(uuid.NewString()), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message string     `json:"message"`
		Job     domain.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Job already exists", resp.Message)
	assert.Equal(t, existing.ID, resp.Job.ID)

	assert.Equal(t, createdBefore, h.store.created, "no second job created")
	assert.Empty(t, h.enqueued, "a duplicate already past queued is not re-enqueued")
}

func TestCreateJobRetryAfterEnqueueFailureRequeues(t *testing.T) {
	h := newHarness(t)
	h.enqueueErr = errors.New("dispatch insert failed")
	body := bulkDeleteBody(uuid.NewString())

	rec := h.do(t, http.MethodPost, "/api/jobs", body, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, h.guard.stored, 1, "idempotency record written before the enqueue failed")
	require.Empty(t, h.enqueued)
	require.Equal(t, 1, h.store.created)

	// The retry resolves as a duplicate of the stuck queued job; it must
	// come back with a delivery row, not stay queued forever.
	rec = h.do(t, http.MethodPost, "/api/jobs", body, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message string     `json:"message"`
		Job     domain.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Job already exists", resp.Message)

	require.Len(t, h.enqueued, 1)
	assert.Equal(t, resp.Job.ID, h.enqueued[0].JobID)
	assert.Equal(t, 1, h.store.created, "retry reuses the existing job row")
}

func TestCreateJobValidation(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing type", map[string]any{"payload": map[string]any{"ticketIds": []string{}}}},
		{"unknown type", map[string]any{"type": "bulk-archive", "payload": map[string]any{"ticketIds": []string{}}}},
		{"missing ticketIds", map[string]any{"type": "bulk-delete", "payload": map[string]any{}}},
		{"non-uuid ticket id", bulkDeleteBody("not-a-uuid")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/jobs", c.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, h.enqueued)
}

func TestListJobsScopedToCaller(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Create(context.Background(), domain.TypeBulkDelete, []byte(`{"ticketIds":[]}`), "user-2")
	require.NoError(t, err)
	_, err = h.store.Create(context.Background(), domain.TypeBulkDelete, []byte(`{"ticketIds":[]}`), "user-3")
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/jobs?userId=user-3", nil, signToken(t, "user-2", "user"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs []domain.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1, "the userId filter cannot widen a non-admin's view")
	assert.Equal(t, "user-2", resp.Jobs[0].UserID)

	rec = h.do(t, http.MethodGet, "/api/jobs?userId=user-3", nil, signToken(t, "admin-1", "admin"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "user-3", resp.Jobs[0].UserID)
}

func TestGetJobHidesOtherUsers(t *testing.T) {
	h := newHarness(t)
	job, err := h.store.Create(context.Background(), domain.TypeBulkDelete, []byte(`{"ticketIds":[]}`), "user-2")
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/jobs/"+job.ID.String(), nil, signToken(t, "user-3", "user"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/jobs/"+job.ID.String(), nil, signToken(t, "user-2", "user"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetJobIncludesItemsAndSummary(t *testing.T) {
	h := newHarness(t)
	job, err := h.store.Create(context.Background(), domain.TypeBulkDelete, []byte(`{"ticketIds":[]}`), "user-1")
	require.NoError(t, err)
	errMsg := "boom"
	h.store.items[job.ID] = []domain.JobItem{
		{ID: uuid.New(), JobID: job.ID, TicketID: uuid.New(), Success: true},
		{ID: uuid.New(), JobID: job.ID, TicketID: uuid.New(), Success: false, Error: &errMsg},
	}

	rec := h.do(t, http.MethodGet, "/api/jobs/"+job.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items   []domain.JobItem  `json:"items"`
		Summary domain.JobSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, domain.JobSummary{Total: 2, Succeeded: 1, Failed: 1}, resp.Summary)
}

func TestCancelJobSetsFlagAndEmits(t *testing.T) {
	h := newHarness(t)
	job, err := h.store.Create(context.Background(), domain.TypeBulkDelete, []byte(`{"ticketIds":[]}`), "user-1")
	require.NoError(t, err)

	rec := h.do(t, http.MethodPost, "/api/jobs/"+job.ID.String()+"/cancel", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Job domain.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatusCanceled, resp.Job.Status)
	assert.Equal(t, []uuid.UUID{job.ID}, h.flags.set)
	assert.Contains(t, h.bus.events, domain.EventJobCanceled)
}

func TestCancelTerminalJobConflicts(t *testing.T) {
	h := newHarness(t)
	job, err := h.store.Create(context.Background(), domain.TypeBulkDelete, []byte(`{"ticketIds":[]}`), "user-1")
	require.NoError(t, err)
	h.store.cancelErr = errors.Mark(errors.New("cannot cancel a completed job"), apperr.ErrInvalidState)

	rec := h.do(t, http.MethodPost, "/api/jobs/"+job.ID.String()+"/cancel", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, h.flags.set)
}

func TestAuthRejectsBadToken(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/jobs", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "user-9", "role": "admin"})
	signed, err := other.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	rec = h.do(t, http.MethodGet, "/api/jobs", nil, signed)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
