package domain

import (
	"encoding/json"
	"sort"

	"github.com/armandavtyann/ticket/internal/apperr"
	"github.com/google/uuid"
)

// BulkDeletePayload is the input for a bulk-delete job: the ordered list of
// tickets to soft-delete. Order is preserved for execution; the idempotency
// key derivation sorts a copy so submission order does not change the key.
type BulkDeletePayload struct {
	TicketIDs []string `json:"ticketIds"`
}

// Normalized returns a copy with TicketIDs sorted. The receiver is not
// mutated.
func (p BulkDeletePayload) Normalized() BulkDeletePayload {
	ids := make([]string, len(p.TicketIDs))
	copy(ids, p.TicketIDs)
	sort.Strings(ids)
	return BulkDeletePayload{TicketIDs: ids}
}

// ParsePayload decodes and validates the payload for a job type. Unknown
// types and malformed payloads fail with ErrValidation.
func ParsePayload(jobType JobType, raw []byte) (BulkDeletePayload, error) {
	switch jobType {
	case TypeBulkDelete:
		var p BulkDeletePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return BulkDeletePayload{}, apperr.Validationf("malformed %s payload: %v", jobType, err)
		}
		if p.TicketIDs == nil {
			return BulkDeletePayload{}, apperr.Validationf("%s payload requires ticketIds", jobType)
		}
		for _, id := range p.TicketIDs {
			if _, err := uuid.Parse(id); err != nil {
				return BulkDeletePayload{}, apperr.Validationf("invalid ticket id %q", id)
			}
		}
		return p, nil
	default:
		return BulkDeletePayload{}, apperr.Validationf("unknown job type %q", jobType)
	}
}

// ExecutionMessage is the dispatch-queue payload delivered to the worker.
// It mirrors the job row so the worker does not need a registry read before
// starting.
type ExecutionMessage struct {
	JobID     uuid.UUID `json:"jobId"`
	Type      JobType   `json:"type"`
	TicketIDs []string  `json:"ticketIds"`
	UserID    string    `json:"userId"`
}
