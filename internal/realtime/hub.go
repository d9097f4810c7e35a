package realtime

import (
	"encoding/json"
	"sync"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/utils"
)

// MessageHandler is invoked by the hub's run loop for every inbound client message.
// Handling runs on the loop goroutine, so all mutations triggered by one room's
// traffic are serialized in the order the clients issued them.
type MessageHandler func(msg *InboundMessage)

// LifecycleHandler observes clients joining and leaving rooms.
type LifecycleHandler interface {
	ClientJoined(c *Client)
	ClientLeft(c *Client)
}

// Hub is the per-process event channel: it tracks room membership and fans
// messages out to subscribers. Pure transport — pacing and authorization policy
// live in the services that handle the messages.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]bool
	logger utils.Logger

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan *InboundMessage

	handler   MessageHandler
	lifecycle LifecycleHandler
}

func NewHub(logger utils.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		logger:     logger,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *InboundMessage, 64),
	}
}

// SetMessageHandler installs the dispatcher. Must be called before Run.
func (h *Hub) SetMessageHandler(handler MessageHandler) {
	h.handler = handler
}

// SetLifecycleHandler installs the join/leave observer. Must be called before Run.
func (h *Hub) SetLifecycleHandler(lifecycle LifecycleHandler) {
	h.lifecycle = lifecycle
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case msg := <-h.Inbound:
			if h.handler != nil {
				h.handler(msg)
			}
		}
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	if h.rooms[c.Room] == nil {
		h.rooms[c.Room] = make(map[*Client]bool)
	}
	h.rooms[c.Room][c] = true
	size := len(h.rooms[c.Room])
	h.mu.Unlock()

	h.logger.Info("client joined room",
		"user_id", c.UserID,
		"role", c.Role,
		"session_id", c.SessionID,
		"room_size", size)

	if h.lifecycle != nil {
		h.lifecycle.ClientJoined(c)
	}
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.rooms[c.Room]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := clients[c]; !ok {
		h.mu.Unlock()
		return
	}

	delete(clients, c)
	c.close()
	if len(clients) == 0 {
		delete(h.rooms, c.Room)
	}
	h.mu.Unlock()

	h.logger.Info("client left room", "user_id", c.UserID, "session_id", c.SessionID)

	if h.lifecycle != nil {
		h.lifecycle.ClientLeft(c)
	}
}

// RemoveClient detaches a client from its room synchronously. The Unregister
// channel is only drained by the run loop, so code executing on that loop (the
// message handler, the lifecycle hooks) must use this instead of the channel:
// a channel send from the loop to itself never completes.
func (h *Hub) RemoveClient(c *Client) {
	h.unregisterClient(c)
}

// Broadcast fans a message out to every subscriber of the session's room.
func (h *Hub) Broadcast(sessionID uint, msgType MessageType, payload any) {
	h.send(RoomID(sessionID), msgType, payload, nil)
}

// BroadcastToRole fans a message out only to subscribers with the given role,
// e.g. answer summaries that belong on the teacher's subscription.
func (h *Hub) BroadcastToRole(sessionID uint, role models.UserRole, msgType MessageType, payload any) {
	h.send(RoomID(sessionID), msgType, payload, func(c *Client) bool {
		return c.Role == role
	})
}

// BroadcastToUser delivers a message to one subscriber's connections only.
func (h *Hub) BroadcastToUser(sessionID uint, userID string, msgType MessageType, payload any) {
	h.send(RoomID(sessionID), msgType, payload, func(c *Client) bool {
		return c.UserID == userID
	})
}

func (h *Hub) send(room string, msgType MessageType, payload any, match func(*Client) bool) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "type", msgType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if match != nil && !match(c) {
			continue
		}
		select {
		case c.Send <- data:
		default:
			// Skip slow consumers; the read pump will reap them on disconnect.
		}
	}
}

// RoomSize reports the current number of subscribers in a session's room.
func (h *Hub) RoomSize(sessionID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[RoomID(sessionID)])
}
