package worker

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/armandavtyann/ticket/internal/apperr"
	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// JobRegistry is the slice of the job store the bulk-delete loop needs.
type JobRegistry interface {
	Start(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, progress *int) error
	AppendItem(ctx context.Context, jobID, ticketID uuid.UUID, success bool, itemErr string) error
}

// ItemStore soft-deletes one business record.
type ItemStore interface {
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// CancelFlags is polled between items for cooperative cancellation.
type CancelFlags interface {
	IsSet(ctx context.Context, jobID uuid.UUID) (bool, error)
}

// EventPublisher pushes job-state changes onto the shared bus.
type EventPublisher interface {
	Publish(ctx context.Context, event string, userID string, data any) error
}

// BulkDelete executes bulk-delete jobs: one ticket at a time, in input
// order, with per-item failure isolation, throttled progress reporting, and
// a cancellation check before every item.
type BulkDelete struct {
	Registry JobRegistry
	Items    ItemStore
	Flags    CancelFlags
	Bus      EventPublisher
	Logger   *slog.Logger

	// Overridable for tests.
	Now   func() time.Time
	Sleep func(time.Duration)
}

func NewBulkDelete(reg JobRegistry, items ItemStore, flags CancelFlags, bus EventPublisher, logger *slog.Logger) *BulkDelete {
	return &BulkDelete{
		Registry: reg,
		Items:    items,
		Flags:    flags,
		Bus:      bus,
		Logger:   logger,
		Now:      time.Now,
		Sleep:    time.Sleep,
	}
}

// Run processes one delivered bulk-delete message. A nil return acks the
// delivery; an error hands it to the dispatch retry policy after the job was
// marked failed.
func (b *BulkDelete) Run(ctx context.Context, msg *domain.ExecutionMessage) error {
	log := b.Logger.With("job_id", msg.JobID, "ticket_count", len(msg.TicketIDs))

	if err := b.Registry.Start(ctx, msg.JobID); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			// Job reached a terminal state before this delivery (for
			// example canceled while still queued). Ack and move on.
			log.Info("skipping delivery for terminal job")
			return nil
		}
		return errors.Wrap(err, "start job")
	}

	total := len(msg.TicketIDs)
	succeeded := 0
	failed := 0

	b.emit(ctx, domain.EventJobProgress, msg.UserID, domain.JobProgressEvent{
		JobID:  msg.JobID,
		Status: domain.StatusRunning,
	})

	log.Info("job started")

	lastPercent := -1
	lastFlush := b.Now()

	for i, rawID := range msg.TicketIDs {
		canceled, err := b.Flags.IsSet(ctx, msg.JobID)
		if err != nil {
			// Cancellation is best-effort; a flag read failure must not
			// stall the batch.
			log.Warn("cancel flag check failed", "err", err)
		}
		if canceled {
			return b.cancel(ctx, msg, log)
		}

		if err := b.processItem(ctx, msg.JobID, rawID); err != nil {
			if errors.Is(err, errItemFailed) {
				failed++
			} else {
				return b.fail(ctx, msg, log, err)
			}
		} else {
			succeeded++
		}

		percent := int(math.Round(100 * float64(i+1) / float64(total)))
		now := b.Now()
		sinceLastFlush := now.Sub(lastFlush)
		isLast := i == total-1

		if shouldFlush(lastPercent, percent, lastFlush, now, isLast) {
			progress := percent
			if err := b.Registry.UpdateStatus(ctx, msg.JobID, domain.StatusRunning, &progress); err != nil {
				if errors.Is(err, apperr.ErrConflict) {
					// Canceled out from under us between the flag check and
					// the flush; the next iteration's flag check stops the
					// loop. Items already recorded stay recorded.
					log.Info("progress write rejected; job no longer running")
				} else {
					return b.fail(ctx, msg, log, errors.Wrap(err, "persist progress"))
				}
			}

			b.emit(ctx, domain.EventJobProgress, msg.UserID, domain.JobProgressEvent{
				JobID:     msg.JobID,
				Status:    domain.StatusRunning,
				Progress:  percent,
				Succeeded: succeeded,
				Failed:    failed,
			})

			if sinceLastFlush < minFlushGap {
				b.Sleep(minFlushGap)
			}
			lastPercent = percent
			lastFlush = now
		}
	}

	// A job with per-item failures still finishes as "succeeded": failures
	// are per-item outcomes, not job outcomes. Zero failures is "completed".
	finalStatus := domain.StatusSucceeded
	if failed == 0 {
		finalStatus = domain.StatusCompleted
	}
	full := 100
	if err := b.Registry.UpdateStatus(ctx, msg.JobID, finalStatus, &full); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			// A cancel landed between the last flag check and this write.
			// The cancel endpoint owns the terminal transition and already
			// announced it; ack the delivery instead of reporting failure.
			log.Info("final status write rejected; job canceled concurrently")
			return nil
		}
		return b.fail(ctx, msg, log, errors.Wrap(err, "persist final status"))
	}

	b.emit(ctx, domain.EventJobCompleted, msg.UserID, domain.JobCompletedEvent{
		JobID:     msg.JobID,
		Status:    finalStatus,
		Progress:  100,
		Succeeded: succeeded,
		Failed:    failed,
		Total:     total,
	})

	log.Info("bulk delete finished", "status", finalStatus,
		"succeeded", succeeded, "failed", failed)
	return nil
}

// errItemFailed separates an isolated per-item failure (recorded, loop
// continues) from an infrastructure failure (aborts the job).
var errItemFailed = errors.New("item failed")

// processItem deletes one ticket and records the outcome. A repeat delivery
// may hit tickets deleted by an earlier attempt; those count as successes so
// re-running a job is safe.
func (b *BulkDelete) processItem(ctx context.Context, jobID uuid.UUID, rawID string) error {
	ticketID, err := uuid.Parse(rawID)
	if err != nil {
		if appendErr := b.Registry.AppendItem(ctx, jobID, uuid.Nil, false, "invalid ticket id: "+rawID); appendErr != nil {
			return errors.Wrap(appendErr, "record item outcome")
		}
		return errItemFailed
	}

	delErr := b.Items.SoftDelete(ctx, ticketID)
	if delErr == nil || errors.Is(delErr, apperr.ErrAlreadyDeleted) {
		if err := b.Registry.AppendItem(ctx, jobID, ticketID, true, ""); err != nil {
			return errors.Wrap(err, "record item outcome")
		}
		return nil
	}

	b.Logger.Error("failed to delete ticket", "job_id", jobID, "ticket_id", ticketID, "err", delErr)
	if err := b.Registry.AppendItem(ctx, jobID, ticketID, false, delErr.Error()); err != nil {
		return errors.Wrap(err, "record item outcome")
	}
	return errItemFailed
}

// cancel stops processing immediately: remaining items are left unrecorded.
// This is a deliberate immediate-stop policy, not a graceful drain.
func (b *BulkDelete) cancel(ctx context.Context, msg *domain.ExecutionMessage, log *slog.Logger) error {
	err := b.Registry.UpdateStatus(ctx, msg.JobID, domain.StatusCanceled, nil)
	if err != nil && !errors.Is(err, apperr.ErrConflict) {
		// ErrConflict means the cancel endpoint already moved the row.
		log.Error("cancel transition failed", "err", err)
	}

	b.emit(ctx, domain.EventJobCanceled, msg.UserID, domain.JobCanceledEvent{
		JobID:  msg.JobID,
		Status: domain.StatusCanceled,
	})
	log.Info("job canceled")
	return nil
}

// fail marks the job failed, emits the failure, and re-raises the cause so
// the dispatch layer's retry policy applies.
func (b *BulkDelete) fail(ctx context.Context, msg *domain.ExecutionMessage, log *slog.Logger, cause error) error {
	if err := b.Registry.UpdateStatus(ctx, msg.JobID, domain.StatusFailed, nil); err != nil &&
		!errors.Is(err, apperr.ErrConflict) {
		log.Error("failed-state transition failed", "err", err)
	}

	b.emit(ctx, domain.EventJobFailed, msg.UserID, domain.JobFailedEvent{
		JobID:  msg.JobID,
		Status: domain.StatusFailed,
		Error:  cause.Error(),
	})
	log.Error("bulk delete job failed", "err", cause)
	return cause
}

func (b *BulkDelete) emit(ctx context.Context, event, userID string, data any) {
	if err := b.Bus.Publish(ctx, event, userID, data); err != nil {
		b.Logger.Error("event publish rejected", "event", event, "err", err)
	}
}
