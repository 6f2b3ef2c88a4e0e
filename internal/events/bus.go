// Package events is the publish side of the job event bus. Producers (worker,
// API) publish envelopes on a single shared Redis channel; the realtime
// gateway subscribes and fans out to interested connections. Delivery is
// best-effort: the Job Registry stays authoritative and a client that misses
// an event re-fetches job state by id.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/armandavtyann/ticket/internal/apperr"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Channel is the shared pub/sub channel all job events go through. Per-channel
// ordering equals publish order; no delivery guarantee is made per subscriber.
const Channel = "job:events"

// Envelope is the wire format on the bus. UserID routes the event to the
// owning user's subscriber group; the admin group receives everything.
type Envelope struct {
	Event  string `json:"event"`
	UserID string `json:"userId"`
	Data   any    `json:"data"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Bus must be constructed with NewBus and passed by handle to anything that
// publishes; there is no package-level instance to publish through before
// initialization.
type Bus struct {
	rdb    publisher
	logger *slog.Logger
}

func NewBus(rdb publisher, logger *slog.Logger) *Bus {
	return &Bus{rdb: rdb, logger: logger}
}

// Publish broadcasts one event. Publish failures are logged and swallowed:
// event delivery is a notification layer, not the source of truth, so they
// never fail the triggering operation. The only error returned is
// ErrNotInitialized, for a Bus that was never constructed.
func (b *Bus) Publish(ctx context.Context, event string, userID string, data any) error {
	if b == nil || b.rdb == nil {
		return errors.Mark(errors.New("event bus used before NewBus"), apperr.ErrNotInitialized)
	}

	payload, err := json.Marshal(Envelope{Event: event, UserID: userID, Data: data})
	if err != nil {
		b.logger.Error("event marshal failed", "event", event, "err", err)
		return nil
	}

	if err := b.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		b.logger.Error("event publish failed", "event", event, "user_id", userID, "err", err)
	}
	return nil
}
