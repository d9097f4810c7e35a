package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/classflow/live-session-service/internal/cache"
	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/realtime"
	"github.com/classflow/live-session-service/internal/services"
	"github.com/classflow/live-session-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// dispatchTimeout bounds the work done for one inbound message so a stuck
// dependency cannot stall the hub's run loop indefinitely.
const dispatchTimeout = 10 * time.Second

type WSHandler struct {
	BaseHandler
	hub      *realtime.Hub
	sessions services.SessionService
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub, sessions services.SessionService, logger utils.Logger) *WSHandler {
	return &WSHandler{
		BaseHandler: NewBaseHandler(logger),
		hub:         hub,
		sessions:    sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced at the gateway in front of this service.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe upgrades the request and attaches the caller to the session's room.
func (h *WSHandler) Subscribe(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	session, err := h.sessions.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if session.Status == models.SessionEnded && session.WritesRevoked(time.Now()) {
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Session has ended",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.LogError(c, err, "Websocket upgrade failed", "session_id", sessionID)
		return
	}

	client := realtime.NewClient(h.hub, conn, h.logger, sessionID, ActorID(c), ActorRole(c))
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// SessionGateway dispatches room traffic into the service layer. All handling
// runs on the hub's loop goroutine, so intents from one room apply in the order
// the clients issued them.
type SessionGateway struct {
	hub      *realtime.Hub
	services services.ServiceManager
	presence cache.PresenceRegistry
	logger   utils.Logger
}

func NewSessionGateway(hub *realtime.Hub, sm services.ServiceManager, presence cache.PresenceRegistry, logger utils.Logger) *SessionGateway {
	g := &SessionGateway{
		hub:      hub,
		services: sm,
		presence: presence,
		logger:   logger,
	}
	hub.SetMessageHandler(g.HandleMessage)
	hub.SetLifecycleHandler(g)
	return g
}

// ClientJoined registers presence and tells the room who arrived. A joining
// teacher additionally gets the authoritative slide re-broadcast so a reconnected
// teacher view converges immediately.
func (g *SessionGateway) ClientJoined(c *realtime.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	err := g.presence.Join(ctx, &models.StudentPresence{
		StudentID: c.UserID,
		SessionID: c.SessionID,
		Role:      c.Role,
		JoinedAt:  time.Now(),
	})
	if err != nil {
		g.logger.Warn("failed to register presence", "session_id", c.SessionID, "user_id", c.UserID, "error", err)
	}

	g.hub.Broadcast(c.SessionID, realtime.MessageTypeUserJoined, realtime.UserPresencePayload{
		Role:      c.Role,
		StudentID: c.UserID,
	})

	if c.Role == models.RoleTeacher {
		if err := g.services.Navigation().ResyncTeacher(ctx, c.SessionID); err != nil && !services.IsNotFound(err) {
			g.logger.Warn("teacher resync failed", "session_id", c.SessionID, "error", err)
		}
	}
}

func (g *SessionGateway) ClientLeft(c *realtime.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := g.presence.Leave(ctx, c.SessionID, c.UserID); err != nil {
		g.logger.Warn("failed to clear presence", "session_id", c.SessionID, "user_id", c.UserID, "error", err)
	}

	g.hub.Broadcast(c.SessionID, realtime.MessageTypeUserLeft, realtime.UserPresencePayload{
		Role:      c.Role,
		StudentID: c.UserID,
	})
}

// HandleMessage dispatches one inbound message. The switch is exhaustive over the
// inbound message kinds; anything else is answered with an error frame.
func (g *SessionGateway) HandleMessage(msg *realtime.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	switch msg.Type {
	case realtime.MessageTypePing:
		msg.Client.SendMessage(realtime.MessageTypePong, nil)

	case realtime.MessageTypeLeaveSession:
		// Handling runs on the hub's loop goroutine, so the Unregister channel
		// (drained by that same loop) would deadlock here. Detach synchronously.
		msg.Client.Close()

	case realtime.MessageTypeTeacherNavigate, realtime.MessageTypeStudentNavigate:
		g.handleNavigate(ctx, msg)

	case realtime.MessageTypeModeChange:
		g.handleModeChange(ctx, msg)

	case realtime.MessageTypeCheckpointsUpdate:
		g.handleCheckpointsUpdate(ctx, msg)

	case realtime.MessageTypeSlideStarted, realtime.MessageTypeSlideCompleted:
		g.handleSlideProgress(ctx, msg)

	default:
		msg.Client.SendError("unsupported message type: " + string(msg.Type))
	}
}

func (g *SessionGateway) handleNavigate(ctx context.Context, msg *realtime.InboundMessage) {
	var payload realtime.NavigatePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		msg.Client.SendError("invalid navigation payload")
		return
	}

	// The message kind never overrides the authenticated role: a student sending
	// teacher-navigated is still handled as a student intent.
	req := &services.NavigateRequest{
		SessionID:   msg.Client.SessionID,
		ActorID:     msg.Client.UserID,
		ActorRole:   msg.Client.Role,
		TargetIndex: payload.SlideNumber,
		SlideID:     payload.SlideID,
	}
	if err := g.services.Navigation().Navigate(ctx, req); err != nil {
		msg.Client.SendError(err.Error())
	}
}

func (g *SessionGateway) handleModeChange(ctx context.Context, msg *realtime.InboundMessage) {
	if msg.Client.Role != models.RoleTeacher {
		msg.Client.SendError("only the teacher can change the pacing mode")
		return
	}

	var payload struct {
		Mode        models.PacingMode `json:"mode"`
		Checkpoints []int             `json:"checkpoints"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		msg.Client.SendError("invalid mode payload")
		return
	}

	req := &services.SetModeRequest{Mode: payload.Mode, Checkpoints: payload.Checkpoints}
	if _, err := g.services.Pacing().SetMode(ctx, msg.Client.SessionID, msg.Client.UserID, req); err != nil {
		msg.Client.SendError(err.Error())
	}
}

func (g *SessionGateway) handleCheckpointsUpdate(ctx context.Context, msg *realtime.InboundMessage) {
	if msg.Client.Role != models.RoleTeacher {
		msg.Client.SendError("only the teacher can update checkpoints")
		return
	}

	var payload realtime.CheckpointsUpdatedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		msg.Client.SendError("invalid checkpoints payload")
		return
	}

	if _, err := g.services.Pacing().SetCheckpoints(ctx, msg.Client.SessionID, msg.Client.UserID, payload.Checkpoints); err != nil {
		msg.Client.SendError(err.Error())
	}
}

// handleSlideProgress relays per-slide study telemetry to the teacher roster.
// It is advisory: it never gates navigation and is not graded.
func (g *SessionGateway) handleSlideProgress(_ context.Context, msg *realtime.InboundMessage) {
	var payload realtime.SlideProgressPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		msg.Client.SendError("invalid slide progress payload")
		return
	}
	payload.StudentID = msg.Client.UserID

	g.hub.BroadcastToRole(msg.Client.SessionID, models.RoleTeacher, msg.Type, payload)
}
