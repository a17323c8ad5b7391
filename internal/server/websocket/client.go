// Package websocket provides the WebSocket transport for observer
// connections.
package websocket

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/neowatch/internal/events"
)

const (
	// Default time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// TypeConnected is the type of the first message on every socket.
	TypeConnected = "connected"
)

// NewUpgrader returns an upgrader accepting the given origins. An empty
// list accepts any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		},
	}
}

// Connected is the first message on every socket.
type Connected struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Sequence     uint64 `json:"sequence"`
}

// Client is one WebSocket peer. It implements events.Transport: notifications
// go out as JSON text messages and heartbeats as ping control frames.
type Client struct {
	id        string
	conn      *websocket.Conn
	writeWait time.Duration
	logger    *zerolog.Logger
}

// NewClient creates a new WebSocket client.
func NewClient(id string, conn *websocket.Conn, logger *zerolog.Logger) *Client {
	return &Client{
		id:        id,
		conn:      conn,
		writeWait: writeWait,
		logger:    logger,
	}
}

// SetWriteWait overrides the per-message write timeout.
func (c *Client) SetWriteWait(d time.Duration) {
	if d > 0 {
		c.writeWait = d
	}
}

// WriteJSON writes one JSON text message.
func (c *Client) WriteJSON(v any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteJSON(v)
}

// WriteConnected writes the connected message.
func (c *Client) WriteConnected(seq uint64) error {
	return c.WriteJSON(Connected{Type: TypeConnected, ConnectionID: c.id, Sequence: seq})
}

// WriteNotification implements events.Transport.
func (c *Client) WriteNotification(n events.Notification) error {
	return c.WriteJSON(n)
}

// WriteHeartbeat implements events.Transport with a ping; the peer's pong is
// the acknowledgment.
func (c *Client) WriteHeartbeat() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// Close implements events.Transport. It sends a close frame and closes the
// socket, which also ends ReadPump.
func (c *Client) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
	return c.conn.Close()
}

// ReadPump reads from the peer until the socket fails or is closed. Pongs
// and any inbound message count as liveness and call onAck. Control frames
// are only processed while reading, so ReadPump must run for the lifetime
// of the socket.
func (c *Client) ReadPump(onAck func()) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		onAck()
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Str("connection_id", c.id).Msg("WebSocket read error")
			}
			return
		}
		onAck()
	}
}
