package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/classflow/live-session-service/internal/cache"
	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/realtime"
	"github.com/classflow/live-session-service/internal/repositories"
	"github.com/classflow/live-session-service/internal/validator"
)

type navigationService struct {
	repo        repositories.Repository
	pacing      PacingService
	session     SessionService
	presence    cache.PresenceRegistry
	broadcaster Broadcaster
	logger      *slog.Logger
	validator   *validator.Validator
}

func NewNavigationService(
	repo repositories.Repository,
	pacing PacingService,
	session SessionService,
	presence cache.PresenceRegistry,
	broadcaster Broadcaster,
	logger *slog.Logger,
	validator *validator.Validator,
) NavigationService {
	return &navigationService{
		repo:        repo,
		pacing:      pacing,
		session:     session,
		presence:    presence,
		broadcaster: broadcaster,
		logger:      logger,
		validator:   validator,
	}
}

func (s *navigationService) Navigate(ctx context.Context, req *NavigateRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	state, err := s.pacing.GetState(req.SessionID)
	if err != nil {
		return err
	}
	if req.TargetIndex < 0 || req.TargetIndex >= state.TotalSlides {
		return ErrSlideOutOfRange
	}

	if req.ActorRole == models.RoleTeacher {
		return s.navigateTeacher(ctx, req)
	}
	return s.navigateStudent(ctx, req, state)
}

// navigateTeacher moves the single authoritative position and fans it out to the
// whole room. Each client applies it or not based on its own cached mode.
func (s *navigationService) navigateTeacher(ctx context.Context, req *NavigateRequest) error {
	session, err := s.session.GetByID(ctx, req.SessionID)
	if err != nil {
		return err
	}
	if session.TeacherID != req.ActorID {
		return ErrSessionNotOwned
	}

	if _, err := s.pacing.TeacherNavigate(req.SessionID, req.TargetIndex); err != nil {
		return err
	}

	s.logger.Info("Teacher navigated",
		"session_id", req.SessionID,
		"slide_index", req.TargetIndex)

	s.broadcaster.Broadcast(req.SessionID, realtime.MessageTypeTeacherNavigate, realtime.NavigatePayload{
		SlideNumber: req.TargetIndex,
	})
	return nil
}

// navigateStudent only ever touches the student's own presence entry; the
// authoritative teacher position is never mutated by a student intent.
func (s *navigationService) navigateStudent(ctx context.Context, req *NavigateRequest, state *models.PresentationState) error {
	if _, err := s.session.EnsureStudentWritable(ctx, req.SessionID); err != nil {
		return err
	}

	if state.Mode == models.PacingBounded {
		if err := s.pacing.AuthorizeStudent(req.SessionID, req.TargetIndex); err != nil {
			return err
		}
	}

	if err := s.presence.UpdateSlide(ctx, req.SessionID, req.ActorID, req.TargetIndex); err != nil {
		// Presence is a view-sync artifact; a stale roster entry is not worth
		// failing the navigation for.
		s.logger.Warn("Failed to update presence slide",
			"session_id", req.SessionID,
			"student_id", req.ActorID,
			"error", err)
	}

	// Peers never see each other's independent positions; the teacher roster does.
	s.broadcaster.BroadcastToRole(req.SessionID, models.RoleTeacher, realtime.MessageTypeStudentNavigate, realtime.NavigatePayload{
		SlideNumber: req.TargetIndex,
		SlideID:     req.SlideID,
	})
	return nil
}

// ResyncTeacher re-broadcasts the authoritative slide so a newly attached teacher
// view converges without a synchronous state-fetch path on the hot channel.
func (s *navigationService) ResyncTeacher(ctx context.Context, sessionID uint) error {
	state, err := s.pacing.GetState(sessionID)
	if err != nil {
		return err
	}

	s.broadcaster.Broadcast(sessionID, realtime.MessageTypeTeacherNavigate, realtime.NavigatePayload{
		SlideNumber: state.CurrentSlideIndex,
	})
	return nil
}
