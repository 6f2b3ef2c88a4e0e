package worker

import "time"

const (
	// minFlushInterval forces a progress flush when this much time passed
	// since the last one, even if the rounded percentage did not move.
	minFlushInterval = 100 * time.Millisecond

	// minFlushGap is the backpressure valve: a flush landing closer than
	// this to the previous one inserts a delay of the same length before
	// the loop continues, capping event-emission rate when items process
	// very fast. Load shaping, not a correctness requirement.
	minFlushGap = 50 * time.Millisecond
)

// shouldFlush decides whether to persist and broadcast a progress update
// now. Progress writes are throttled, but the final item always flushes so
// clients see 100%.
func shouldFlush(lastPercent, currentPercent int, lastFlush, now time.Time, isLast bool) bool {
	if isLast {
		return true
	}
	if currentPercent-lastPercent >= 1 {
		return true
	}
	return now.Sub(lastFlush) >= minFlushInterval
}
