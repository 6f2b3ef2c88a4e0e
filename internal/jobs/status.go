package jobs

import "github.com/armandavtyann/ticket/internal/domain"

// CanTransition encodes the job state machine:
//
//	queued → running → {succeeded | completed | failed | canceled}
//
// running→running self-transitions carry progress updates. Terminal states
// are absorbing. queued→canceled covers cancellation before the worker picks
// the job up, queued→failed covers infra failure before the first item.
func CanTransition(from, to domain.JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch from {
	case domain.StatusQueued:
		switch to {
		case domain.StatusRunning, domain.StatusCanceled, domain.StatusFailed:
			return true
		}
	case domain.StatusRunning:
		switch to {
		case domain.StatusRunning, domain.StatusSucceeded, domain.StatusCompleted,
			domain.StatusFailed, domain.StatusCanceled:
			return true
		}
	}
	return false
}
