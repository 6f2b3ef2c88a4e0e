package dispatch

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Admission caps how many executions may run concurrently across all worker
// processes. The reference deployment sets the limit to 1: a single global
// execution slot bounds load from bulk jobs regardless of how many worker
// instances are running.
//
// The inflight set holds execution ids, not a counter: SRem is idempotent,
// so a crashed worker or a double release can never push the count negative.
// There is a TOCTOU window between CanClaim and Acquire; overshoot is bounded
// by worker count and accepted.
const inflightKey = "dispatch:inflight"

type setStore interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
}

type Admission struct {
	rdb   setStore
	slots int64
}

func NewAdmission(rdb setStore, slots int64) *Admission {
	if slots < 1 {
		slots = 1
	}
	return &Admission{rdb: rdb, slots: slots}
}

// CanClaim reports whether a free execution slot exists. On a Redis error it
// returns false: the worker idles briefly rather than overcommitting.
func (a *Admission) CanClaim(ctx context.Context) (bool, error) {
	inflight, err := a.rdb.SCard(ctx, inflightKey).Result()
	if err != nil {
		return false, err
	}
	return inflight < a.slots, nil
}

func (a *Admission) Acquire(ctx context.Context, execID string) error {
	return a.rdb.SAdd(ctx, inflightKey, execID).Err()
}

// Release frees a slot. Safe to call more than once for the same execution.
func (a *Admission) Release(ctx context.Context, execID string) error {
	return a.rdb.SRem(ctx, inflightKey, execID).Err()
}
