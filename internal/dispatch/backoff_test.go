package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeBackoffGrowsExponentially(t *testing.T) {
	// With ±25% jitter, attempt n lands in [0.75, 1.25] * 2s * 2^n.
	for attempt := 0; attempt < 5; attempt++ {
		center := 2 * time.Second * time.Duration(1<<attempt)
		for i := 0; i < 50; i++ {
			d := ComputeBackoff(attempt)
			assert.GreaterOrEqual(t, d, center*3/4, "attempt %d", attempt)
			assert.LessOrEqual(t, d, center*5/4, "attempt %d", attempt)
		}
	}
}

func TestComputeBackoffIsCapped(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := ComputeBackoff(60)
		assert.LessOrEqual(t, d, 5*time.Minute*5/4)
		assert.Positive(t, d)
	}
}
