package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/armandavtyann/ticket/internal/events"
	"github.com/redis/go-redis/v9"
)

// wireEnvelope mirrors events.Envelope with the payload kept raw so the
// relay forwards exactly the bytes that were published.
type wireEnvelope struct {
	Event  string          `json:"event"`
	UserID string          `json:"userId"`
	Data   json.RawMessage `json:"data"`
}

// outFrame is what subscribers receive: the event name plus its payload.
// The routing userId is not echoed to clients.
type outFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Relay subscribes to the job event channel and fans each envelope out to
// the owning user's room and the admin room.
type Relay struct {
	rdb    *redis.Client
	hub    *Hub
	logger *slog.Logger
}

func NewRelay(rdb *redis.Client, hub *Hub, logger *slog.Logger) *Relay {
	return &Relay{rdb: rdb, hub: hub, logger: logger}
}

// Run blocks pumping events from Redis into the hub until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, events.Channel)
	defer sub.Close()

	// Force the subscription before reporting readiness in logs.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("event relay subscribed", "channel", events.Channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.route([]byte(msg.Payload))
		}
	}
}

// route unpacks one envelope and forwards it. Malformed payloads are logged
// and skipped so one bad publish cannot wedge the relay.
func (r *Relay) route(payload []byte) {
	var env wireEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Error("dropping malformed bus envelope", "err", err)
		return
	}
	if env.Event == "" {
		r.logger.Warn("dropping bus envelope without event name")
		return
	}

	frame, err := json.Marshal(outFrame{Event: env.Event, Data: env.Data})
	if err != nil {
		r.logger.Error("frame marshal failed", "event", env.Event, "err", err)
		return
	}

	if env.UserID != "" {
		r.hub.Forward(UserRoom(env.UserID), frame)
	}
	r.hub.Forward(AdminRoom, frame)
}
