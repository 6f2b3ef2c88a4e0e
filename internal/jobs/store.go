// Package jobs is the durable Job Registry: Job and JobItem rows in
// PostgreSQL, lifecycle transitions, and summary aggregation. It is the
// authoritative record of job state; bus events are hints derived from it.
package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/armandavtyann/ticket/internal/apperr"
	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListLimit is the hard cap on List results, newest first.
const ListLimit = 100

const jobColumns = `id, type, status, progress, payload, user_id, created_at, updated_at`

var terminalStatuses = []string{
	string(domain.StatusSucceeded),
	string(domain.StatusCompleted),
	string(domain.StatusFailed),
	string(domain.StatusCanceled),
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a Job with status queued and progress 0. The single INSERT
// is atomic: no partially initialized job is ever visible to readers.
func (s *Store) Create(ctx context.Context, jobType domain.JobType, payload []byte, userID string) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (type, status, progress, payload, user_id)
		VALUES ($1, 'queued', 0, $2, $3)
		RETURNING `+jobColumns, jobType, payload, userID)

	job, err := scanJob(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert job")
	}
	return job, nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}
	return job, nil
}

// List returns jobs matching the filters, newest first, capped at ListLimit.
func (s *Store) List(ctx context.Context, f domain.JobFilters) ([]*domain.Job, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", ListLimit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// UpdateStatus writes status (and optionally progress) for a non-terminal
// job. updated_at changes on every call. Writes against a terminal job fail
// with ErrConflict; a missing job fails with ErrNotFound.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, progress *int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status     = $2,
			progress   = COALESCE($3, progress),
			updated_at = NOW()
		WHERE id = $1
		  AND NOT (status = ANY($4))`,
		id, status, progress, terminalStatuses)
	if err != nil {
		return errors.Wrap(err, "update job status")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.diagnoseRejectedWrite(ctx, id, status)
}

// Start moves a job to running with progress reset to 0. Unlike
// UpdateStatus it also accepts a job currently marked failed: the dispatch
// layer redelivers failed jobs, and a redelivery re-runs the job from
// scratch. Terminal-for-the-API statuses other than failed still reject.
func (s *Store) Start(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status     = 'running',
			progress   = 0,
			updated_at = NOW()
		WHERE id = $1
		  AND status IN ('queued', 'running', 'failed')`, id)
	if err != nil {
		return errors.Wrap(err, "start job")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.diagnoseRejectedWrite(ctx, id, domain.StatusRunning)
}

// Cancel transitions a job to canceled. Jobs already in any terminal state
// fail with ErrInvalidState and keep their status.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET
			status     = 'canceled',
			updated_at = NOW()
		WHERE id = $1
		  AND NOT (status = ANY($2))
		RETURNING `+jobColumns, id, terminalStatuses)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if !CanTransition(current.Status, domain.StatusCanceled) {
			return nil, apperr.InvalidStatef("cannot cancel a %s job", current.Status)
		}
		// Legal transition but the guarded UPDATE matched nothing: the row
		// moved between the UPDATE and this read. Let the caller retry.
		return nil, errors.Mark(
			errors.Newf("job %s changed concurrently", id), apperr.ErrConflict)
	}
	if err != nil {
		return nil, errors.Wrap(err, "cancel job")
	}
	return job, nil
}

// AppendItem records the outcome of one processed unit of work.
func (s *Store) AppendItem(ctx context.Context, jobID, ticketID uuid.UUID, success bool, itemErr string) error {
	var errVal *string
	if itemErr != "" {
		errVal = &itemErr
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_items (job_id, ticket_id, success, error)
		VALUES ($1, $2, $3, $4)`, jobID, ticketID, success, errVal)
	return errors.Wrap(err, "append job item")
}

// Items returns the recorded items for a job. Creation order reflects
// processing order but retrieval order is not guaranteed beyond this query.
func (s *Store) Items(ctx context.Context, jobID uuid.UUID) ([]domain.JobItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, ticket_id, success, error
		FROM job_items WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, errors.Wrap(err, "list job items")
	}
	defer rows.Close()

	items := make([]domain.JobItem, 0)
	for rows.Next() {
		var it domain.JobItem
		if err := rows.Scan(&it.ID, &it.JobID, &it.TicketID, &it.Success, &it.Error); err != nil {
			return nil, errors.Wrap(err, "scan job item")
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Summarize aggregates the JobItem set at read time; the counts are never
// cached on the job row.
func (s *Store) Summarize(ctx context.Context, jobID uuid.UUID) (domain.JobSummary, error) {
	var sum domain.JobSummary
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE success)
		FROM job_items WHERE job_id = $1`, jobID,
	).Scan(&sum.Total, &sum.Succeeded)
	if err != nil {
		return domain.JobSummary{}, errors.Wrap(err, "summarize job")
	}
	sum.Failed = sum.Total - sum.Succeeded
	return sum, nil
}

// diagnoseRejectedWrite distinguishes "job absent" from "job terminal" after
// a guarded UPDATE matched no row.
func (s *Store) diagnoseRejectedWrite(ctx context.Context, id uuid.UUID, attempted domain.JobStatus) error {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if CanTransition(current.Status, attempted) {
		// The row moved between the guarded UPDATE and this read rather
		// than sitting in a terminal state.
		return errors.Mark(
			errors.Newf("job %s changed concurrently", id), apperr.ErrConflict)
	}
	return errors.Mark(
		errors.Newf("job %s is %s; cannot move to %s", id, current.Status, attempted),
		apperr.ErrConflict)
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	err := row.Scan(
		&job.ID, &job.Type, &job.Status, &job.Progress,
		&job.Payload, &job.UserID, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
