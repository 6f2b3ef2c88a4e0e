package jobs

import (
	"testing"

	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	terminals := []domain.JobStatus{
		domain.StatusSucceeded, domain.StatusCompleted,
		domain.StatusFailed, domain.StatusCanceled,
	}
	all := append([]domain.JobStatus{domain.StatusQueued, domain.StatusRunning}, terminals...)

	for _, from := range terminals {
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s must be rejected", from, to)
		}
	}
}

func TestAllowedTransitions(t *testing.T) {
	cases := []struct {
		from, to domain.JobStatus
		want     bool
	}{
		{domain.StatusQueued, domain.StatusRunning, true},
		{domain.StatusQueued, domain.StatusCanceled, true},
		{domain.StatusQueued, domain.StatusFailed, true},
		{domain.StatusQueued, domain.StatusCompleted, false},
		{domain.StatusQueued, domain.StatusSucceeded, false},
		{domain.StatusRunning, domain.StatusRunning, true},
		{domain.StatusRunning, domain.StatusSucceeded, true},
		{domain.StatusRunning, domain.StatusCompleted, true},
		{domain.StatusRunning, domain.StatusFailed, true},
		{domain.StatusRunning, domain.StatusCanceled, true},
		{domain.StatusRunning, domain.StatusQueued, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}
