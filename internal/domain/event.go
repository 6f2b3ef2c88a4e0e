package domain

import "github.com/google/uuid"

// Event names published on the bus and forwarded verbatim to realtime
// subscribers.
const (
	EventJobCreated   = "jobs:created"
	EventJobProgress  = "jobs:progress"
	EventJobCompleted = "jobs:completed"
	EventJobFailed    = "jobs:failed"
	EventJobCanceled  = "jobs:canceled"
)

type JobCreatedEvent struct {
	JobID    uuid.UUID `json:"jobId"`
	Type     JobType   `json:"type"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
}

type JobProgressEvent struct {
	JobID     uuid.UUID `json:"jobId"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
}

type JobCompletedEvent struct {
	JobID     uuid.UUID `json:"jobId"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
}

type JobFailedEvent struct {
	JobID  uuid.UUID `json:"jobId"`
	Status JobStatus `json:"status"`
	Error  string    `json:"error"`
}

type JobCanceledEvent struct {
	JobID  uuid.UUID `json:"jobId"`
	Status JobStatus `json:"status"`
}
