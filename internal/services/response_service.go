package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/classflow/live-session-service/internal/events"
	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/realtime"
	"github.com/classflow/live-session-service/internal/repositories"
	"github.com/classflow/live-session-service/internal/validator"
)

type responseService struct {
	repo        repositories.Repository
	session     SessionService
	completion  CompletionService
	broadcaster Broadcaster
	publisher   events.EventPublisher
	logger      *slog.Logger
	validator   *validator.Validator
}

func NewResponseService(
	repo repositories.Repository,
	session SessionService,
	completion CompletionService,
	broadcaster Broadcaster,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *validator.Validator,
) ResponseService {
	return &responseService{
		repo:        repo,
		session:     session,
		completion:  completion,
		broadcaster: broadcaster,
		publisher:   publisher,
		logger:      logger,
		validator:   validator,
	}
}

func (s *responseService) SubmitQuestionResponse(ctx context.Context, req *SubmitResponseRequest) (*SubmitResponseResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if _, err := s.session.EnsureStudentWritable(ctx, req.SessionID); err != nil {
		return nil, err
	}

	slide, err := s.repo.Deck().GetSlide(ctx, req.SlideID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSlideNotFound
		}
		return nil, fmt.Errorf("failed to load slide: %w", err)
	}
	if slide.DeckID != req.ActivityID {
		return nil, ErrSlideNotFound
	}
	if slide.Question == nil {
		return nil, fmt.Errorf("%w: slide %d has no question", ErrValidationFailed, req.SlideID)
	}

	options, err := slide.Question.OptionList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode question options: %w", err)
	}
	if req.SelectedOption < 0 || req.SelectedOption >= len(options) {
		return nil, fmt.Errorf("%w: selected option %d outside question options", ErrValidationFailed, req.SelectedOption)
	}

	slideNumber, err := s.repo.Deck().SlideIndex(ctx, slide.DeckID, slide.Position)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve slide index: %w", err)
	}

	// Anonymous students (no account) are recorded and broadcast but never pass
	// through the completion lock.
	authenticated := req.StudentAccountID != ""
	if authenticated {
		if err := s.completion.EnsureUnlocked(ctx, req.StudentAccountID, req.ActivityID, req.SessionID); err != nil {
			return nil, err
		}
	}

	attempts, err := s.repo.Response().CountBySlide(ctx, req.StudentID, req.SlideID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	hasActionable, err := s.repo.Response().HasActionable(ctx, req.StudentID, req.SlideID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check prior answers: %w", err)
	}

	response := &models.QuestionResponse{
		ActivityID:       req.ActivityID,
		SlideID:          req.SlideID,
		SessionID:        req.SessionID,
		StudentID:        req.StudentID,
		QuestionNumber:   req.QuestionNumber,
		SelectedOption:   req.SelectedOption,
		IsCorrect:        req.SelectedOption == slide.Question.CorrectOption,
		AttemptNumber:    attempts + 1,
		Actionable:       !hasActionable,
		TimeSpentSeconds: req.TimeSpentSeconds,
		HelpReceived:     req.HelpReceived,
	}
	if err := s.createFirstWins(ctx, response); err != nil {
		return nil, err
	}

	result := &SubmitResponseResult{
		Response:        response,
		AlreadyAnswered: !response.Actionable,
		IsCorrect:       response.IsCorrect,
	}

	if authenticated && response.Actionable {
		completion, _, err := s.completion.ApplyResponse(ctx, req.StudentAccountID, req.ActivityID, req.SessionID)
		if err != nil {
			return nil, err
		}
		result.Completion = completion
	}

	s.logger.Info("Question response recorded",
		"session_id", req.SessionID,
		"student_id", req.StudentID,
		"slide_id", req.SlideID,
		"attempt", response.AttemptNumber,
		"actionable", response.Actionable)

	// Only the teacher roster learns about individual answers.
	s.broadcaster.BroadcastToRole(req.SessionID, models.RoleTeacher, realtime.MessageTypeStudentAnswered, realtime.StudentAnsweredPayload{
		SlideID:        req.SlideID,
		SlideNumber:    slideNumber,
		StudentID:      req.StudentID,
		SelectedOption: req.SelectedOption,
		IsCorrect:      response.IsCorrect,
		Timestamp:      time.Now(),
	})

	event := events.NewSessionEvent(events.EventQuestionAnswered, events.QuestionAnsweredData{
		SessionID:      req.SessionID,
		ActivityID:     req.ActivityID,
		SlideID:        req.SlideID,
		StudentID:      req.StudentID,
		QuestionNumber: req.QuestionNumber,
		IsCorrect:      response.IsCorrect,
		AttemptNumber:  response.AttemptNumber,
	})
	if err := s.publisher.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish question answered event",
			"session_id", req.SessionID,
			"error", err)
	}

	return result, nil
}

// SubmitActivityResponse records an ungraded response to a question-less slide.
// Nothing is scored; the time spent feeds the student's completion aggregates
// and teachers see the slide progress on their subscription.
func (s *responseService) SubmitActivityResponse(ctx context.Context, req *SubmitActivityRequest) (*SubmitResponseResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if _, err := s.session.EnsureStudentWritable(ctx, req.SessionID); err != nil {
		return nil, err
	}

	slide, err := s.repo.Deck().GetSlide(ctx, req.SlideID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSlideNotFound
		}
		return nil, fmt.Errorf("failed to load slide: %w", err)
	}
	if slide.DeckID != req.ActivityID {
		return nil, ErrSlideNotFound
	}
	// A slide with a question holds exactly one actionable slot per student, and
	// it belongs to the graded answer.
	if slide.Question != nil {
		return nil, fmt.Errorf("%w: slide %d carries a question; submit a question response", ErrValidationFailed, req.SlideID)
	}

	authenticated := req.StudentAccountID != ""
	if authenticated {
		if err := s.completion.EnsureUnlocked(ctx, req.StudentAccountID, req.ActivityID, req.SessionID); err != nil {
			return nil, err
		}
	}

	attempts, err := s.repo.Response().CountBySlide(ctx, req.StudentID, req.SlideID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	hasActionable, err := s.repo.Response().HasActionable(ctx, req.StudentID, req.SlideID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check prior responses: %w", err)
	}

	response := &models.QuestionResponse{
		ActivityID:       req.ActivityID,
		SlideID:          req.SlideID,
		SessionID:        req.SessionID,
		StudentID:        req.StudentID,
		QuestionNumber:   0,
		AttemptNumber:    attempts + 1,
		Actionable:       !hasActionable,
		TimeSpentSeconds: req.TimeSpentSeconds,
		HelpReceived:     req.HelpReceived,
	}
	if err := s.createFirstWins(ctx, response); err != nil {
		return nil, err
	}

	result := &SubmitResponseResult{
		Response:        response,
		AlreadyAnswered: !response.Actionable,
	}

	if authenticated && response.Actionable {
		completion, _, err := s.completion.ApplyResponse(ctx, req.StudentAccountID, req.ActivityID, req.SessionID)
		if err != nil {
			return nil, err
		}
		result.Completion = completion
	}

	s.logger.Info("Activity response recorded",
		"session_id", req.SessionID,
		"student_id", req.StudentID,
		"slide_id", req.SlideID,
		"time_spent_seconds", req.TimeSpentSeconds)

	s.broadcaster.BroadcastToRole(req.SessionID, models.RoleTeacher, realtime.MessageTypeSlideCompleted, realtime.SlideProgressPayload{
		SlideID:   req.SlideID,
		StudentID: req.StudentID,
		TimeSpent: req.TimeSpentSeconds,
	})

	event := events.NewSessionEvent(events.EventResponseRecorded, events.ResponseRecordedData{
		SessionID:        req.SessionID,
		ActivityID:       req.ActivityID,
		SlideID:          req.SlideID,
		StudentID:        req.StudentID,
		TimeSpentSeconds: req.TimeSpentSeconds,
	})
	if err := s.publisher.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish response recorded event",
			"session_id", req.SessionID,
			"error", err)
	}

	return result, nil
}

// createFirstWins stores the row, demoting it to a non-actionable repeat when a
// concurrent submission already took the actionable slot for this slide. The
// partial unique index makes the race lose deterministically; the prior
// HasActionable read only covers the sequential case.
func (s *responseService) createFirstWins(ctx context.Context, response *models.QuestionResponse) error {
	err := s.repo.Response().Create(ctx, response)
	if err == nil {
		return nil
	}
	if !response.Actionable || !repositories.IsDuplicateError(err) {
		return fmt.Errorf("failed to store response: %w", err)
	}

	response.Actionable = false
	if err := s.repo.Response().Create(ctx, response); err != nil {
		return fmt.Errorf("failed to store response: %w", err)
	}
	return nil
}
