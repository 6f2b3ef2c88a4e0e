// Package gateway is the realtime fan-out layer: WebSocket connections join
// rooms ("user:<id>" for the owning user, "admin" for system-wide
// visibility) and a relay forwards event-bus envelopes into those rooms.
// Delivery to a connection is best-effort; a subscriber that connects after
// an event was published simply misses it.
package gateway

import (
	"context"
	"log/slog"
)

const AdminRoom = "admin"

func UserRoom(userID string) string {
	return "user:" + userID
}

type joinReq struct {
	client *Client
	room   string
}

type roomMsg struct {
	room    string
	payload []byte
}

// Hub owns all room membership. Every mutation goes through Run's select
// loop, so no locks are needed.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	joins      chan joinReq
	forwards   chan roomMsg

	rooms   map[string]map[*Client]struct{}
	members map[*Client]map[string]struct{}

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		joins:      make(chan joinReq),
		forwards:   make(chan roomMsg, 64),
		rooms:      make(map[string]map[*Client]struct{}),
		members:    make(map[*Client]map[string]struct{}),
		logger:     logger,
	}
}

// Run processes registrations, joins, and forwards until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.members[c] = make(map[string]struct{})
			h.logger.Debug("client connected", "remote", c.remote)

		case c := <-h.unregister:
			h.drop(c)

		case j := <-h.joins:
			if _, ok := h.members[j.client]; !ok {
				continue
			}
			if h.rooms[j.room] == nil {
				h.rooms[j.room] = make(map[*Client]struct{})
			}
			h.rooms[j.room][j.client] = struct{}{}
			h.members[j.client][j.room] = struct{}{}
			h.logger.Debug("client joined room", "room", j.room, "remote", j.client.remote)

		case m := <-h.forwards:
			for c := range h.rooms[m.room] {
				select {
				case c.send <- m.payload:
				default:
					// Slow consumer: drop the connection rather than block
					// the fan-out loop.
					h.logger.Warn("dropping slow client", "room", m.room, "remote", c.remote)
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	joined, ok := h.members[c]
	if !ok {
		return
	}
	for room := range joined {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.members, c)
	close(c.send)
	h.logger.Debug("client disconnected", "remote", c.remote)
}

// Join subscribes a client to a room.
func (h *Hub) Join(c *Client, room string) {
	h.joins <- joinReq{client: c, room: room}
}

// Forward delivers payload to every member of room.
func (h *Hub) Forward(room string, payload []byte) {
	h.forwards <- roomMsg{room: room, payload: payload}
}
