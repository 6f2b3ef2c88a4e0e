package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether s is absorbing: once a job reaches a terminal
// status, no API-visible write may move it again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// JobType discriminates job payloads. Only bulk-delete exists today; a new
// type adds a constant here and a payload shape in payload.go.
type JobType string

const TypeBulkDelete JobType = "bulk-delete"

type Job struct {
	ID        uuid.UUID       `json:"id"`
	Type      JobType         `json:"type"`
	Status    JobStatus       `json:"status"`
	Progress  int             `json:"progress"`
	Payload   json.RawMessage `json:"payload"`
	UserID    string          `json:"userId"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// JobItem records the outcome of one processed unit of work. Rows are
// append-only: created by the worker, never updated.
type JobItem struct {
	ID       uuid.UUID `json:"id"`
	JobID    uuid.UUID `json:"jobId"`
	TicketID uuid.UUID `json:"ticketId"`
	Success  bool      `json:"success"`
	Error    *string   `json:"error,omitempty"`
}

// JobSummary is derived from the JobItem set at read time, never cached on
// the job row, so it always reflects the latest persisted items.
type JobSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// JobFilters narrows List queries. Zero values mean "no filter".
type JobFilters struct {
	Type   JobType
	Status JobStatus
	UserID string
}
