package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jewelhouse/jewelhouse/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 32
)

const (
	FrameAuth         = "auth"
	FrameConnected    = "connected"
	FrameConnectError = "connect_error"
	FrameEvent        = "event"
)

// Frame is the JSON envelope for every message on the socket.
type Frame struct {
	Type    string     `json:"type"`
	Event   string     `json:"event,omitempty"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Auth    *AuthFrame `json:"auth,omitempty"`
}

type AuthFrame struct {
	Token string `json:"token"`
}

// Client is one accepted admin session.
type Client struct {
	conn     *websocket.Conn
	identity *models.Identity
	send     chan []byte

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, identity *models.Identity) *Client {
	return &Client{
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, sendQueueSize),
	}
}

func (c *Client) Identity() *models.Identity {
	return c.identity
}

func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) enqueueFrame(frame Frame) bool {
	raw, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	return c.enqueue(raw)
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// writePump owns all writes after the handshake.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() //nolint
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")) //nolint
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames and returns when the peer goes away.
func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
