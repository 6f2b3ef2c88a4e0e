package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size. Clients only send small join frames.
	maxMessageSize = 4096

	// Outbound queue per connection. Overflow disconnects the client.
	sendQueueSize = 256
)

// clientFrame is the only inbound protocol: clients announce which rooms
// they want after connecting.
type clientFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// Client is one WebSocket connection attached to the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string
	userID string
	admin  bool
	logger *slog.Logger
}

// ServeWS upgrades an HTTP request and attaches the connection to the hub.
// The authenticated identity bounds which rooms the client may join.
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, logger *slog.Logger, w http.ResponseWriter, r *http.Request, userID string, isAdmin bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		remote: conn.RemoteAddr().String(),
		userID: userID,
		admin:  isAdmin,
		logger: logger,
	}
	hub.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump consumes join frames until the connection drops. It is the only
// reader of the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "remote", c.remote, "err", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Warn("ignoring malformed client frame", "remote", c.remote, "err", err)
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame clientFrame) {
	switch frame.Type {
	case "join:user":
		// A user may only subscribe to their own stream; admins may watch
		// any user's.
		if frame.UserID == "" {
			return
		}
		if frame.UserID != c.userID && !c.admin {
			c.logger.Warn("rejected cross-user room join",
				"remote", c.remote, "requested", frame.UserID)
			return
		}
		c.hub.Join(c, UserRoom(frame.UserID))
	case "join:admin":
		if !c.admin {
			c.logger.Warn("rejected admin room join", "remote", c.remote)
			return
		}
		c.hub.Join(c, AdminRoom)
	default:
		c.logger.Debug("unknown client frame type", "type", frame.Type)
	}
}

// writePump pushes queued payloads and periodic pings. It is the only writer
// of the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
