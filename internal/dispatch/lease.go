package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExtendLease periodically refreshes lock_expires_at so the reaper does not
// requeue a delivery that is still actively running. The ticker fires at
// leaseSeconds/3, giving two extension opportunities before expiry. Runs in
// a goroutine for the lifetime of one execution; stopped via the stop
// channel when the handler returns.
func ExtendLease(
	ctx context.Context,
	pool *pgxpool.Pool,
	deliveryID uuid.UUID,
	workerID string,
	execID uuid.UUID,
	leaseSeconds int,
	stop <-chan struct{},
	logger *slog.Logger,
) {
	interval := time.Duration(leaseSeconds) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			tag, err := pool.Exec(ctx, `
				UPDATE dispatch_queue
				SET lock_expires_at = NOW() + ($1 * interval '1 second')
				WHERE id = $2
				  AND locked_by = $3
				  AND state = 'running'
				  AND lock_expires_at > NOW()
				  AND current_execution_id = $4`,
				leaseSeconds, deliveryID, workerID, execID)
			if err != nil {
				logger.Warn("lease extension failed",
					"delivery_id", deliveryID, "err", err)
				continue
			}
			if tag.RowsAffected() == 0 {
				logger.Warn("lease extension fenced; stopping extender",
					"delivery_id", deliveryID, "exec_id", execID)
				return
			}
		}
	}
}
