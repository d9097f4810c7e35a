package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/classflow/live-session-service/internal/cache"
	"github.com/classflow/live-session-service/internal/events"
	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/realtime"
	"github.com/classflow/live-session-service/internal/repositories"
	"github.com/classflow/live-session-service/internal/validator"
)

type sessionService struct {
	repo        repositories.Repository
	pacing      PacingService
	presence    cache.PresenceRegistry
	broadcaster Broadcaster
	publisher   events.EventPublisher
	logger      *slog.Logger
	validator   *validator.Validator
	gracePeriod time.Duration

	// One pending grace timer per paused/ended session so the terminal notice is
	// broadcast even if no further writes arrive; cancelled on resume.
	timerMu     sync.Mutex
	graceTimers map[uint]*time.Timer
}

func NewSessionService(
	repo repositories.Repository,
	pacing PacingService,
	presence cache.PresenceRegistry,
	broadcaster Broadcaster,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *validator.Validator,
	gracePeriod time.Duration,
) SessionService {
	return &sessionService{
		repo:        repo,
		pacing:      pacing,
		presence:    presence,
		broadcaster: broadcaster,
		publisher:   publisher,
		logger:      logger,
		validator:   validator,
		gracePeriod: gracePeriod,
		graceTimers: make(map[uint]*time.Timer),
	}
}

func (s *sessionService) Create(ctx context.Context, req *CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	session := &models.Session{
		TeacherID: req.TeacherID,
		DeckID:    req.DeckID,
		Status:    models.SessionActive,
	}
	if err := s.repo.Session().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if req.DeckID != nil {
		if _, err := s.pacing.StartPresentation(ctx, session.ID, *req.DeckID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Session created",
		"session_id", session.ID,
		"teacher_id", req.TeacherID)

	return session, nil
}

func (s *sessionService) GetByID(ctx context.Context, id uint) (*models.Session, error) {
	session, err := s.repo.Session().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *sessionService) Pause(ctx context.Context, sessionID uint, teacherID string) (*models.Session, error) {
	return s.transition(ctx, sessionID, teacherID, models.SessionPaused,
		"Session paused - finish your current thought")
}

func (s *sessionService) End(ctx context.Context, sessionID uint, teacherID string) (*models.Session, error) {
	session, err := s.transition(ctx, sessionID, teacherID, models.SessionEnded,
		"Session ended - thank you for participating")
	if err != nil {
		return nil, err
	}

	// The live presentation state dies with the session. The row itself stays
	// readable through the grace window so late writes can still be validated;
	// the grace timer archives it.
	s.pacing.EndPresentation(sessionID)
	if err := s.presence.Clear(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to clear presence on end", "session_id", sessionID, "error", err)
	}

	return session, nil
}

func (s *sessionService) Resume(ctx context.Context, sessionID uint, teacherID string) (*models.Session, error) {
	session, err := s.ownedSession(ctx, sessionID, teacherID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionPaused {
		return nil, ErrSessionInvalidTransition
	}

	if err := s.repo.Session().UpdateStatus(ctx, sessionID, models.SessionActive, nil); err != nil {
		return nil, fmt.Errorf("failed to resume session: %w", err)
	}
	session.Status = models.SessionActive
	session.GracePeriodEndsAt = nil

	s.cancelGraceTimer(sessionID)

	s.logger.Info("Session resumed", "session_id", sessionID)

	s.broadcaster.Broadcast(sessionID, realtime.MessageTypeSessionStatusChanged, realtime.SessionStatusPayload{
		Status:  models.SessionActive,
		Message: "Session resumed",
	})
	s.publishStatus(ctx, session)

	return session, nil
}

// PushActivity swaps the session onto a new deck mid-session. Everyone starts the
// new activity from slide zero in teacher-paced mode; a targeted push tells only
// the named student to load it.
func (s *sessionService) PushActivity(ctx context.Context, req *PushActivityRequest) (*models.PresentationState, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	session, err := s.ownedSession(ctx, req.SessionID, req.TeacherID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionEnded {
		return nil, ErrSessionInvalidTransition
	}

	if _, err := s.repo.Deck().GetByID(ctx, req.ActivityID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}

	session.DeckID = &req.ActivityID
	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to attach activity to session: %w", err)
	}

	state, err := s.pacing.StartPresentation(ctx, req.SessionID, req.ActivityID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Activity pushed",
		"session_id", req.SessionID,
		"activity_id", req.ActivityID,
		"target", req.Target)

	payload := realtime.ModeChangedPayload{Mode: state.Mode, DeckID: state.DeckID}
	if req.Target != "" {
		s.broadcaster.BroadcastToUser(req.SessionID, req.Target, realtime.MessageTypeModeChange, payload)
	} else {
		s.broadcaster.Broadcast(req.SessionID, realtime.MessageTypeModeChange, payload)
	}

	return state, nil
}

func (s *sessionService) EnsureStudentWritable(ctx context.Context, sessionID uint) (*models.Session, error) {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.WritesRevoked(time.Now()) {
		return nil, ErrSessionNotWritable
	}
	return session, nil
}

func (s *sessionService) transition(ctx context.Context, sessionID uint, teacherID string, status models.SessionStatus, message string) (*models.Session, error) {
	session, err := s.ownedSession(ctx, sessionID, teacherID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionEnded {
		return nil, ErrSessionInvalidTransition
	}
	if session.Status == status {
		return session, nil
	}

	deadline := time.Now().Add(s.gracePeriod)
	if err := s.repo.Session().UpdateStatus(ctx, sessionID, status, &deadline); err != nil {
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}
	session.Status = status
	session.GracePeriodEndsAt = &deadline

	s.logger.Info("Session status changed",
		"session_id", sessionID,
		"status", status,
		"grace_period_ends_at", deadline)

	s.broadcaster.Broadcast(sessionID, realtime.MessageTypeSessionStatusChanged, realtime.SessionStatusPayload{
		Status:            status,
		GracePeriodEndsAt: &deadline,
		Message:           message,
	})
	s.publishStatus(ctx, session)
	s.scheduleGraceExpiry(sessionID, status, deadline)

	return session, nil
}

// scheduleGraceExpiry broadcasts the terminal notice when the countdown every
// client runs independently would reach zero.
func (s *sessionService) scheduleGraceExpiry(sessionID uint, status models.SessionStatus, deadline time.Time) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if timer, ok := s.graceTimers[sessionID]; ok {
		timer.Stop()
	}
	s.graceTimers[sessionID] = time.AfterFunc(time.Until(deadline), func() {
		s.timerMu.Lock()
		delete(s.graceTimers, sessionID)
		s.timerMu.Unlock()

		s.broadcaster.Broadcast(sessionID, realtime.MessageTypeSessionStatusChanged, realtime.SessionStatusPayload{
			Status:            status,
			GracePeriodEndsAt: &deadline,
			Message:           "Write access has ended",
		})

		// An ended session leaves the live tables once its grace window closes.
		if status == models.SessionEnded {
			if err := s.repo.Session().Archive(context.Background(), sessionID); err != nil {
				s.logger.Warn("Failed to archive session", "session_id", sessionID, "error", err)
			}
		}
	})
}

func (s *sessionService) cancelGraceTimer(sessionID uint) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if timer, ok := s.graceTimers[sessionID]; ok {
		timer.Stop()
		delete(s.graceTimers, sessionID)
	}
}

func (s *sessionService) ownedSession(ctx context.Context, sessionID uint, teacherID string) (*models.Session, error) {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TeacherID != teacherID {
		return nil, ErrSessionNotOwned
	}
	return session, nil
}

func (s *sessionService) publishStatus(ctx context.Context, session *models.Session) {
	event := events.NewSessionEvent(events.EventSessionStatus, events.SessionStatusData{
		SessionID:         session.ID,
		Status:            session.Status,
		GracePeriodEndsAt: session.GracePeriodEndsAt,
	})
	if err := s.publisher.PublishSessionEvent(ctx, event); err != nil {
		// Analytics must never block the primary transition.
		s.logger.Warn("Failed to publish session status event",
			"session_id", session.ID,
			"error", err)
	}
}
