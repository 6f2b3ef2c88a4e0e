// Package dispatch delivers job-execution messages to workers with
// at-least-once semantics: a Postgres-backed delivery table claimed with
// FOR UPDATE SKIP LOCKED, leases that expire if a worker crashes, bounded
// retry with exponential backoff, and a reaper that requeues orphans. The
// unique job_id column guarantees at most one delivery row, and therefore
// at most one concurrent worker, per job.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StatePending = "pending"
	StateRunning = "running"
	StateDone    = "done"
	StateDead    = "dead"
)

// Delivery is one claimable execution message.
type Delivery struct {
	ID                 uuid.UUID
	JobID              uuid.UUID
	JobType            domain.JobType
	Message            []byte
	State              string
	RetryCount         int
	MaxRetries         int
	ScheduledAt        time.Time
	LockedBy           *string
	LockedAt           *time.Time
	LockExpiresAt      *time.Time
	CurrentExecutionID *uuid.UUID
	LastError          *string
}

// Enqueue inserts the execution message for a job. The job_id uniqueness
// makes enqueue idempotent: re-submitting the same job id is a no-op.
func Enqueue(ctx context.Context, pool *pgxpool.Pool, msg domain.ExecutionMessage, maxRetries int) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal execution message")
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO dispatch_queue (job_id, job_type, message, max_retries)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO NOTHING`,
		msg.JobID, msg.Type, payload, maxRetries)
	return errors.Wrap(err, "enqueue delivery")
}

// claimSQL atomically selects and locks a single due delivery.
//
// FOR UPDATE SKIP LOCKED prevents contention: workers that lose the race
// move on immediately rather than blocking. Lease duration is injected via
// $2 (seconds) so claim and extend stay in sync.
const claimSQL = `
WITH candidate AS (
    SELECT id FROM dispatch_queue
    WHERE state        = 'pending'
      AND scheduled_at <= NOW()
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
UPDATE dispatch_queue
SET
    state                = 'running',
    locked_by            = $1,
    locked_at            = NOW(),
    lock_expires_at      = NOW() + ($2 * interval '1 second'),
    current_execution_id = $3,
    updated_at           = NOW()
FROM candidate
WHERE dispatch_queue.id = candidate.id
RETURNING
    dispatch_queue.id, dispatch_queue.job_id, dispatch_queue.job_type,
    dispatch_queue.message, dispatch_queue.state, dispatch_queue.retry_count,
    dispatch_queue.max_retries, dispatch_queue.scheduled_at,
    dispatch_queue.locked_by, dispatch_queue.locked_at,
    dispatch_queue.lock_expires_at, dispatch_queue.current_execution_id,
    dispatch_queue.last_error`

// Claim attempts to claim one due delivery for workerID. Returns nil, nil
// when nothing is due (normal idle state).
func Claim(ctx context.Context, pool *pgxpool.Pool, workerID string, execID uuid.UUID, leaseSecs int) (*Delivery, error) {
	row := pool.QueryRow(ctx, claimSQL, workerID, leaseSecs, execID)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "claim delivery")
	}
	return d, nil
}

func scanDelivery(row pgx.Row) (*Delivery, error) {
	var d Delivery
	err := row.Scan(
		&d.ID, &d.JobID, &d.JobType, &d.Message, &d.State,
		&d.RetryCount, &d.MaxRetries, &d.ScheduledAt,
		&d.LockedBy, &d.LockedAt, &d.LockExpiresAt,
		&d.CurrentExecutionID, &d.LastError,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
