package websocket

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetglass/fleetglass-backend/internal/stream"
)

const (
	// Time allowed to write a frame or control message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients send nothing but control frames; anything bigger is a bug.
	maxMessageSize = 512
)

// client ties one connection to one subscription. The write pump owns every
// write; the read pump only services control frames and tears down on error.
type client struct {
	conn   *websocket.Conn
	sub    *stream.Subscriber
	logger *slog.Logger
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.sub.Frames():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-c.sub.Done():
			// Broker is shutting down; tell the peer before hanging up.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.sub.Close()
		c.conn.Close()
		c.logger.Info("metrics stream disconnected", "dropped", c.sub.Dropped())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// Inbound payloads are ignored; the stream is one-way.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("metrics stream read error", "error", err)
			}
			return
		}
	}
}
