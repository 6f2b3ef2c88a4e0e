// Package idempotency deduplicates job creation. A key→jobID association in
// Redis with a bounded lifetime guarantees at most one job per key while the
// record lives; lookups fail open so a Redis outage degrades to duplicate
// jobs rather than refused ones.
package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idempotency:"

// store is the slice of the Redis API the guard needs. *redis.Client
// satisfies it; tests substitute a fake.
type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type Guard struct {
	rdb    store
	ttl    time.Duration
	logger *slog.Logger
}

func NewGuard(rdb store, ttl time.Duration, logger *slog.Logger) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{rdb: rdb, ttl: ttl, logger: logger}
}

// Resolution reports whether a request is a duplicate and which key to store
// after the job row exists.
type Resolution struct {
	Key           string
	Duplicate     bool
	ExistingJobID string
}

// Resolve computes (or accepts) the key and looks it up. A lookup failure is
// treated as "not a duplicate": job creation stays available and the miss is
// logged. Two concurrent identical requests can both resolve as new before
// either stores its key; that race is accepted (see Store).
func (g *Guard) Resolve(ctx context.Context, userID string, jobType domain.JobType,
	payload domain.BulkDeletePayload, callerKey string) Resolution {

	key := callerKey
	if key == "" {
		key = Key(userID, jobType, payload)
	}

	jobID, err := g.rdb.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return Resolution{Key: key}
	}
	if err != nil {
		g.logger.Warn("idempotency lookup failed; treating as new request",
			"key", key, "err", err)
		return Resolution{Key: key}
	}
	return Resolution{Key: key, Duplicate: true, ExistingJobID: jobID}
}

// Store records key→jobID with the bounded TTL. Called after the job row is
// created; not atomic with Resolve, which is the documented race window.
func (g *Guard) Store(ctx context.Context, key string, jobID string) {
	if err := g.rdb.SetEx(ctx, keyPrefix+key, jobID, g.ttl).Err(); err != nil {
		g.logger.Warn("idempotency store failed", "key", key, "job_id", jobID, "err", err)
	}
}
