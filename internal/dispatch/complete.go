package dispatch

import (
	"context"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MarkDone finishes a delivery after its handler completed, was canceled, or
// aborted for good. The execution-id fence drops stale completions from a
// worker whose lease already expired.
func MarkDone(ctx context.Context, pool *pgxpool.Pool, deliveryID, execID uuid.UUID) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	tag, err := pool.Exec(ctx, `
		UPDATE dispatch_queue SET
			state                = 'done',
			locked_by            = NULL,
			locked_at            = NULL,
			lock_expires_at      = NULL,
			current_execution_id = NULL,
			updated_at           = NOW()
		WHERE id = $1
		  AND state = 'running'
		  AND current_execution_id = $2
		  AND lock_expires_at > NOW()`, deliveryID, execID)
	if err != nil {
		return false, errors.Wrap(err, "mark delivery done")
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRetry requeues a failed delivery for a future attempt: retry_count is
// incremented and scheduled_at pushed out by ComputeBackoff so the claim
// query skips it until the backoff window has elapsed.
func MarkRetry(ctx context.Context, pool *pgxpool.Pool, d *Delivery, execID uuid.UUID, handlerErr error) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	backoff := ComputeBackoff(d.RetryCount)
	tag, err := pool.Exec(ctx, `
		UPDATE dispatch_queue SET
			state                = 'pending',
			scheduled_at         = NOW() + ($1 * interval '1 millisecond'),
			retry_count          = retry_count + 1,
			last_error           = $2,
			last_error_at        = NOW(),
			locked_by            = NULL,
			locked_at            = NULL,
			lock_expires_at      = NULL,
			current_execution_id = NULL,
			updated_at           = NOW()
		WHERE id = $3
		  AND state = 'running'
		  AND current_execution_id = $4
		  AND lock_expires_at > NOW()`,
		backoff.Milliseconds(), handlerErr.Error(), d.ID, execID)
	if err != nil {
		return false, errors.Wrap(err, "mark delivery retry")
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDead parks a delivery permanently after its attempts are exhausted.
func MarkDead(ctx context.Context, pool *pgxpool.Pool, deliveryID, execID uuid.UUID, handlerErr error) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	tag, err := pool.Exec(ctx, `
		UPDATE dispatch_queue SET
			state                = 'dead',
			last_error           = $1,
			last_error_at        = NOW(),
			locked_by            = NULL,
			locked_at            = NULL,
			lock_expires_at      = NULL,
			current_execution_id = NULL,
			updated_at           = NOW()
		WHERE id = $2
		  AND state = 'running'
		  AND current_execution_id = $3
		  AND lock_expires_at > NOW()`, handlerErr.Error(), deliveryID, execID)
	if err != nil {
		return false, errors.Wrap(err, "mark delivery dead")
	}
	return tag.RowsAffected() == 1, nil
}

// ComputeBackoff returns an exponentially increasing delay with ±25% jitter.
// Base = 2s, max = 5m, exponent capped to prevent integer overflow.
func ComputeBackoff(attempt int) time.Duration {
	base := 2 * time.Second
	maxDelay := 5 * time.Minute
	shift := attempt
	if shift > 20 {
		shift = 20
	}
	d := base * time.Duration(1<<shift)
	if d > maxDelay {
		d = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d/2))) - d/4
	return d + jitter
}
