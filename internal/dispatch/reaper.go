package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// reaperLockKey is the PostgreSQL advisory lock key used for reaper election.
// Only one reaper wins the lock across all worker instances.
const reaperLockKey = int64(0x5449434B)

// RunReaper competes for the advisory lock and runs the reaper loop on the
// winner. The lock is held on a dedicated connection so it auto-releases if
// the process crashes. Non-winners sleep and retry every 10 seconds.
func RunReaper(ctx context.Context, pool *pgxpool.Pool, adm *Admission, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := pool.Acquire(ctx)
		if err != nil {
			logger.Error("reaper: acquire failed", "err", err)
			time.Sleep(5 * time.Second)
			continue
		}

		var won bool
		err = conn.QueryRow(ctx,
			`SELECT pg_try_advisory_lock($1)`, reaperLockKey).Scan(&won)
		if err != nil || !won {
			conn.Release()
			time.Sleep(10 * time.Second)
			continue
		}

		logger.Info("reaper: won election")
		runReaperLoop(ctx, pool, adm, logger)
		conn.Release()
	}
}

func runReaperLoop(ctx context.Context, pool *pgxpool.Pool, adm *Admission, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reapOrphanedDeliveries(ctx, pool, adm, logger); err != nil {
				logger.Error("reaper: orphan reap failed", "err", err)
				return
			}
		}
	}
}

// reapOrphanedDeliveries finds running deliveries whose lease has expired,
// resets them to pending so another worker can claim them, and releases
// their execution ids from the admission set so the abandoned execution does
// not hold the global slot forever.
//
// The CTE captures current_execution_id before the UPDATE nulls it. FOR
// UPDATE SKIP LOCKED ensures the reaper never blocks on a row a worker is
// concurrently extending. LIMIT 100 bounds work per cycle.
func reapOrphanedDeliveries(ctx context.Context, pool *pgxpool.Pool, adm *Admission, logger *slog.Logger) error {
	rows, err := pool.Query(ctx, `
		WITH orphans AS (
			SELECT id, current_execution_id
			FROM dispatch_queue
			WHERE state = 'running' AND lock_expires_at < NOW()
			ORDER BY lock_expires_at ASC
			LIMIT 100
			FOR UPDATE SKIP LOCKED
		)
		UPDATE dispatch_queue SET
			state                = 'pending',
			scheduled_at         = clock_timestamp() + interval '1 second',
			locked_by            = NULL,
			locked_at            = NULL,
			lock_expires_at      = NULL,
			current_execution_id = NULL,
			updated_at           = NOW()
		FROM orphans
		WHERE dispatch_queue.id = orphans.id
		RETURNING orphans.id, orphans.current_execution_id`)
	if err != nil {
		return err
	}

	type orphan struct {
		deliveryID uuid.UUID
		execID     *uuid.UUID
	}
	var reclaimed []orphan

	for rows.Next() {
		var o orphan
		if err := rows.Scan(&o.deliveryID, &o.execID); err != nil {
			continue
		}
		reclaimed = append(reclaimed, o)
	}

	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range reclaimed {
		if o.execID != nil {
			if err := adm.Release(ctx, o.execID.String()); err != nil {
				logger.Warn("reaper: admission release failed",
					"exec_id", o.execID, "err", err)
			}
		}
		logger.Info("reaper: requeued orphan",
			"delivery_id", o.deliveryID, "exec_id", o.execID)
	}
	return nil
}
