package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/utils"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one websocket subscriber in a session room.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	logger utils.Logger

	Send      chan []byte
	SessionID uint
	Room      string
	UserID    string
	Role      models.UserRole

	// closed guards Send: once the hub detaches the client the channel is closed,
	// and any message still in flight for it must become a no-op rather than a
	// send on a closed channel.
	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, logger utils.Logger, sessionID uint, userID string, role models.UserRole) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		logger:    logger,
		Send:      make(chan []byte, 256),
		SessionID: sessionID,
		Room:      RoomID(sessionID),
		UserID:    userID,
		Role:      role,
	}
}

// ReadPump pumps inbound messages from the connection into the hub. One goroutine
// per connection; the hub's run loop serializes handling per room.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "user_id", c.UserID, "session_id", c.SessionID, "error", err)
			}
			break
		}

		var msg rawMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.SendError("invalid message format")
			continue
		}

		c.hub.Inbound <- &InboundMessage{Client: c, Type: msg.Type, Payload: msg.Payload}
	}
}

// WritePump pumps messages from the Send channel to the connection and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

func (c *Client) SendMessage(msgType MessageType, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		c.logger.Error("failed to marshal outbound message", "type", msgType, "error", err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.Send <- data:
		c.mu.Unlock()
		return
	default:
	}
	c.mu.Unlock()

	// Slow consumer: drop the connection rather than block the room. Synchronous
	// removal because this path also runs on the hub's loop goroutine.
	c.Close()
}

// Close detaches the client from its room and tears down the connection. Safe
// to call from any goroutine, including the hub's run loop, and idempotent.
func (c *Client) Close() {
	c.hub.RemoveClient(c)
	if c.conn != nil {
		c.conn.Close()
	}
}

// close marks the client detached and closes Send. Called by the hub with the
// room lock held, so broadcasts never race the channel close.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Client) SendError(message string) {
	c.SendMessage(MessageTypeError, ErrorPayload{Message: message})
}

// rawMessage defers payload decoding to the dispatcher, which knows the concrete
// payload type for each message kind.
type rawMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// InboundMessage is a parsed client message awaiting dispatch.
type InboundMessage struct {
	Client  *Client
	Type    MessageType
	Payload json.RawMessage
}
