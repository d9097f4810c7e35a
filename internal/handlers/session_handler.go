package handlers

import (
	"context"
	"net/http"

	"github.com/classflow/live-session-service/internal/cache"
	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/services"
	"github.com/classflow/live-session-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	BaseHandler
	sessions   services.SessionService
	pacing     services.PacingService
	navigation services.NavigationService
	presence   cache.PresenceRegistry
}

func NewSessionHandler(
	sessions services.SessionService,
	pacing services.PacingService,
	navigation services.NavigationService,
	presence cache.PresenceRegistry,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler: NewBaseHandler(logger),
		sessions:    sessions,
		pacing:      pacing,
		navigation:  navigation,
		presence:    presence,
	}
}

// CreateSession starts a new live session owned by the calling teacher.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.TeacherID = ActorID(c)

	session, err := h.sessions.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	session, err := h.sessions.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) PauseSession(c *gin.Context) {
	h.transition(c, h.sessions.Pause)
}

func (h *SessionHandler) ResumeSession(c *gin.Context) {
	h.transition(c, h.sessions.Resume)
}

func (h *SessionHandler) EndSession(c *gin.Context) {
	h.transition(c, h.sessions.End)
}

func (h *SessionHandler) transition(c *gin.Context, fn func(ctx context.Context, sessionID uint, teacherID string) (*models.Session, error)) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Session status transition", "session_id", id)

	session, err := fn(c.Request.Context(), id, ActorID(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// PushActivity switches the session to a new activity deck.
func (h *SessionHandler) PushActivity(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.PushActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.SessionID = id
	req.TeacherID = ActorID(c)

	state, err := h.sessions.PushActivity(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// GetPresentationState returns the live pacing state of a session.
func (h *SessionHandler) GetPresentationState(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	state, err := h.pacing.GetState(id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// SetPacingMode switches the session's pacing mode, optionally with checkpoints.
func (h *SessionHandler) SetPacingMode(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Setting pacing mode", "session_id", id, "mode", req.Mode)

	state, err := h.pacing.SetMode(c.Request.Context(), id, ActorID(c), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// SetCheckpoints replaces the checkpoint set of a bounded session.
func (h *SessionHandler) SetCheckpoints(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req struct {
		Checkpoints []int `json:"checkpoints"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	state, err := h.pacing.SetCheckpoints(c.Request.Context(), id, ActorID(c), req.Checkpoints)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// Navigate applies a navigation intent for the calling actor.
func (h *SessionHandler) Navigate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.SessionID = id
	req.ActorID = ActorID(c)
	req.ActorRole = ActorRole(c)

	if err := h.navigation.Navigate(c.Request.Context(), &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Navigation applied"})
}

// ListPresence returns the room roster for the teacher view.
func (h *SessionHandler) ListPresence(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	presences, err := h.presence.List(c.Request.Context(), id)
	if err != nil {
		h.LogError(c, err, "Failed to list presence", "session_id", id)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, presences)
}
