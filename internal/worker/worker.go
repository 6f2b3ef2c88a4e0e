package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/armandavtyann/ticket/internal/dispatch"
	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Worker claims deliveries from the dispatch queue and runs the registered
// handler for each. One delivery executes at a time per process; the
// admission set caps concurrency across all processes.
type Worker struct {
	ID            uuid.UUID
	Hostname      string
	Pool          *pgxpool.Pool
	Handlers      *Registry
	Admission     *dispatch.Admission
	Logger        *slog.Logger
	LeaseSeconds  int
	ClaimInterval time.Duration

	startDone     chan struct{}
	startDoneOnce sync.Once
}

func New(
	id uuid.UUID,
	hostname string,
	pool *pgxpool.Pool,
	handlers *Registry,
	adm *dispatch.Admission,
	logger *slog.Logger,
	leaseSeconds int,
	claimInterval time.Duration,
) *Worker {
	if leaseSeconds <= 0 {
		leaseSeconds = 30
	}
	if claimInterval <= 0 {
		claimInterval = 500 * time.Millisecond
	}
	return &Worker{
		ID:            id,
		Hostname:      hostname,
		Pool:          pool,
		Handlers:      handlers,
		Admission:     adm,
		Logger:        logger,
		LeaseSeconds:  leaseSeconds,
		ClaimInterval: claimInterval,
		startDone:     make(chan struct{}),
	}
}

// Start runs the claim loop until ctx is canceled. Each delivery is executed
// synchronously; the lease-extension goroutine lives only for the duration
// of that delivery.
func (w *Worker) Start(ctx context.Context) {
	defer w.startDoneOnce.Do(func() { close(w.startDone) })

	w.Logger.Info("worker starting",
		"worker_id", w.ID,
		"hostname", w.Hostname,
		"handlers", w.Handlers.Types())

	for {
		if ctx.Err() != nil {
			return
		}

		ok, err := w.Admission.CanClaim(ctx)
		if err != nil {
			w.Logger.Error("admission check failed", "err", err)
			w.idle(ctx)
			continue
		}
		if !ok {
			w.idle(ctx)
			continue
		}

		execID := uuid.New()
		delivery, err := dispatch.Claim(ctx, w.Pool, w.ID.String(), execID, w.LeaseSeconds)
		if err != nil {
			w.Logger.Error("claim error", "err", err)
			w.idle(ctx)
			continue
		}
		if delivery == nil {
			w.idle(ctx)
			continue
		}

		if err := w.Admission.Acquire(ctx, execID.String()); err != nil {
			w.Logger.Warn("admission acquire failed", "err", err)
		}
		w.runDelivery(ctx, delivery, execID)
		if err := w.Admission.Release(ctx, execID.String()); err != nil {
			w.Logger.Warn("admission release failed", "err", err)
		}
	}
}

func (w *Worker) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.ClaimInterval):
	}
}

// DrainAndWait blocks until the claim loop exits (usually after ctx
// cancellation) or until the caller's timeout is reached.
func (w *Worker) DrainAndWait(ctx context.Context) error {
	select {
	case <-w.startDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) runDelivery(ctx context.Context, d *dispatch.Delivery, execID uuid.UUID) {
	log := w.Logger.With(
		"delivery_id", d.ID,
		"job_id", d.JobID,
		"job_type", d.JobType,
		"attempt", d.RetryCount,
		"exec_id", execID,
	)

	handler, err := w.Handlers.Lookup(d.JobType)
	if err != nil {
		log.Error("unknown job type; parking delivery", "err", err)
		updated, markErr := dispatch.MarkDead(ctx, w.Pool, d.ID, execID, err)
		if markErr != nil {
			log.Error("failed to mark dead", "err", markErr)
		} else if !updated {
			log.Warn("stale dead transition ignored")
		}
		return
	}

	var msg domain.ExecutionMessage
	if err := json.Unmarshal(d.Message, &msg); err != nil {
		log.Error("malformed execution message; parking delivery", "err", err)
		updated, markErr := dispatch.MarkDead(ctx, w.Pool, d.ID, execID, err)
		if markErr != nil {
			log.Error("failed to mark dead", "err", markErr)
		} else if !updated {
			log.Warn("stale dead transition ignored")
		}
		return
	}

	leaseStop := make(chan struct{})
	go dispatch.ExtendLease(ctx, w.Pool, d.ID, w.ID.String(), execID, w.LeaseSeconds, leaseStop, log)

	log.Info("delivery started")
	handlerErr := handler(ctx, &msg)
	close(leaseStop)

	if ctx.Err() != nil {
		// Worker shutdown mid-execution: leave the delivery state alone.
		// Its lease expires and the reaper requeues it for redelivery.
		log.Info("delivery abandoned due to shutdown")
		return
	}

	if handlerErr == nil {
		updated, err := dispatch.MarkDone(ctx, w.Pool, d.ID, execID)
		if err != nil {
			log.Error("failed to mark done", "err", err)
			return
		}
		if !updated {
			log.Warn("stale completion ignored")
			return
		}
		log.Info("delivery done")
		return
	}

	var fatal *FatalError
	isFatal := errors.As(handlerErr, &fatal)
	if isFatal || d.RetryCount >= d.MaxRetries {
		updated, err := dispatch.MarkDead(ctx, w.Pool, d.ID, execID, handlerErr)
		if err != nil {
			log.Error("failed to mark dead", "err", err)
			return
		}
		if !updated {
			log.Warn("stale dead transition ignored")
			return
		}
		log.Warn("delivery dead", "err", handlerErr, "is_fatal", isFatal)
		return
	}

	updated, err := dispatch.MarkRetry(ctx, w.Pool, d, execID, handlerErr)
	if err != nil {
		log.Error("failed to mark retry", "err", err)
		return
	}
	if !updated {
		log.Warn("stale retry transition ignored")
		return
	}
	log.Warn("delivery failed; will retry",
		"err", handlerErr,
		"retry_count", d.RetryCount,
		"max_retries", d.MaxRetries)
}
