// Package cancelflag implements the per-job cancellation signal: a Redis key
// set by any API instance and polled by the worker between items. Flags
// expire on their own so the keyspace stays bounded; a flag on an already
// terminal job is simply never observed.
package cancelflag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type Flags struct {
	rdb store
	ttl time.Duration
}

func New(rdb store, ttl time.Duration) *Flags {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Flags{rdb: rdb, ttl: ttl}
}

func key(jobID uuid.UUID) string {
	return fmt.Sprintf("cancel:%s", jobID)
}

// Set raises the flag for jobID with the bounded TTL.
func (f *Flags) Set(ctx context.Context, jobID uuid.UUID) error {
	return f.rdb.SetEx(ctx, key(jobID), "1", f.ttl).Err()
}

// IsSet reports whether cancellation was requested for jobID. A missing key
// reads as false; a Redis error is returned so the worker can decide whether
// to keep going (it does; cancellation is best-effort).
func (f *Flags) IsSet(ctx context.Context, jobID uuid.UUID) (bool, error) {
	v, err := f.rdb.Get(ctx, key(jobID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}
