package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// Stream sockets are one-way: the server pushes JSON frames down and the
// client sends nothing back but pong control frames. These bounds size the
// keepalive cycle around that.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // a ping must round-trip inside pongWait

	// Inbound frames carry no payload, so anything big is a misbehaving
	// client.
	maxInbound = 1024
)

// Client pumps one dashboard socket. The write loop is the only goroutine
// that writes to the connection; the read loop exists to consume pongs and
// notice disconnects.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewClient registers a new socket with the hub and returns its pump.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	hub.register <- c
	return c
}

// Run services the socket until it closes. Call it from the WebSocket
// handler; it blocks.
func (c *Client) Run() {
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInbound)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Discard whatever arrives; reading is only for liveness.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// A closed send channel means the hub evicted us.
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				c.conn.WriteMessage(websocket.CloseMessage, msg)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
