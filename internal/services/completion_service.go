package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/classflow/live-session-service/internal/events"
	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/repositories"
	"github.com/classflow/live-session-service/internal/validator"
)

type completionService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewCompletionService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) CompletionService {
	return &completionService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// instanceID scopes completion rows to one live run of an activity. Pushing the
// same deck in a later session starts every student over with a fresh row.
func instanceID(sessionID uint) string {
	return strconv.FormatUint(uint64(sessionID), 10)
}

func (s *completionService) ApplyResponse(ctx context.Context, studentAccountID string, activityID, sessionID uint) (*models.ActivityCompletion, bool, error) {
	instance := instanceID(sessionID)

	totalQuestions, err := s.repo.Deck().CountQuestions(ctx, activityID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, false, ErrActivityNotFound
		}
		return nil, false, fmt.Errorf("failed to count activity questions: %w", err)
	}

	var (
		completion *models.ActivityCompletion
		justLocked bool
	)

	// Serialize concurrent submissions from the same student on the completion
	// row, so the lock transition and its event fire exactly once.
	err = s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		row, err := tx.Completion().GetByKeyForUpdate(ctx, studentAccountID, activityID, instance)
		if err != nil {
			if !repositories.IsNotFoundError(err) {
				return fmt.Errorf("failed to load completion: %w", err)
			}
			row = &models.ActivityCompletion{
				StudentAccountID: studentAccountID,
				ActivityID:       activityID,
				InstanceID:       instance,
				Status:           models.CompletionInProgress,
			}
			// A concurrent first submission may have created the row between the
			// lookup and here; the conflict clause makes that a no-op and the
			// re-read picks up whichever row won.
			if err := tx.Completion().Create(ctx, row); err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			row, err = tx.Completion().GetByKeyForUpdate(ctx, studentAccountID, activityID, instance)
			if err != nil {
				return fmt.Errorf("failed to reload completion: %w", err)
			}
		}

		agg, err := tx.Response().AggregateActionable(ctx, studentAccountID, activityID, sessionID)
		if err != nil {
			return fmt.Errorf("failed to aggregate responses: %w", err)
		}

		row.QuestionsAttempted = agg.QuestionsAttempted
		row.QuestionsCorrect = agg.QuestionsCorrect
		row.TimeSpentSeconds = agg.TimeSpentSeconds
		if agg.QuestionsAttempted > 0 {
			row.ScorePercentage = int(math.Round(100 * float64(agg.QuestionsCorrect) / float64(agg.QuestionsAttempted)))
		}

		if !row.IsLocked() && totalQuestions > 0 && agg.QuestionsAttempted >= totalQuestions {
			now := time.Now()
			row.Status = models.CompletionLocked
			row.CompletedAt = &now
			row.LockedAt = &now
			justLocked = true
		}

		if err := tx.Completion().Update(ctx, row); err != nil {
			return fmt.Errorf("failed to update completion: %w", err)
		}
		completion = row
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if justLocked {
		s.logger.Info("Activity completion locked",
			"student_account_id", studentAccountID,
			"activity_id", activityID,
			"instance_id", instance,
			"score_percentage", completion.ScorePercentage)

		s.publish(ctx, events.NewSessionEvent(events.EventActivityCompleted, events.ActivityCompletedData{
			StudentAccountID: studentAccountID,
			ActivityID:       activityID,
			InstanceID:       instance,
			QuestionsCorrect: completion.QuestionsCorrect,
			ScorePercentage:  completion.ScorePercentage,
			TimeSpentSeconds: completion.TimeSpentSeconds,
		}))
	}

	return completion, justLocked, nil
}

func (s *completionService) EnsureUnlocked(ctx context.Context, studentAccountID string, activityID, sessionID uint) error {
	completion, err := s.repo.Completion().GetByKey(ctx, studentAccountID, activityID, instanceID(sessionID))
	if err != nil {
		if repositories.IsNotFoundError(err) {
			// No completion row yet means nothing has been locked.
			return nil
		}
		return fmt.Errorf("failed to load completion: %w", err)
	}
	if completion.IsLocked() {
		lockedAt := completion.UpdatedAt
		if completion.LockedAt != nil {
			lockedAt = *completion.LockedAt
		}
		return &ActivityLockedError{
			ActivityID:       activityID,
			StudentAccountID: studentAccountID,
			LockedAt:         lockedAt,
		}
	}
	return nil
}

// Unlock clears the lock on every locked instance of (student, activity) and
// stamps the audit trail. Ownership of the activity is the handler's concern;
// this layer only enforces that something was actually locked.
func (s *completionService) Unlock(ctx context.Context, req *UnlockRequest) ([]*models.ActivityCompletion, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	rows, err := s.repo.Completion().ListByStudent(ctx, req.StudentAccountID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}

	reason := req.Reason
	if reason == "" {
		reason = models.DefaultUnlockReason
	}

	now := time.Now()
	var unlocked []*models.ActivityCompletion
	for _, row := range rows {
		if row.ActivityID != req.ActivityID || !row.IsLocked() {
			continue
		}

		row.Status = models.CompletionInProgress
		row.LockedAt = nil
		row.UnlockedBy = &req.UnlockedBy
		row.UnlockedAt = &now
		row.UnlockReason = &reason
		if err := s.repo.Completion().Update(ctx, row); err != nil {
			return nil, fmt.Errorf("failed to unlock completion: %w", err)
		}
		unlocked = append(unlocked, row)

		s.publish(ctx, events.NewSessionEvent(events.EventActivityUnlocked, events.ActivityUnlockedData{
			StudentAccountID: req.StudentAccountID,
			ActivityID:       req.ActivityID,
			InstanceID:       row.InstanceID,
			UnlockedBy:       req.UnlockedBy,
			Reason:           reason,
		}))
	}
	if len(unlocked) == 0 {
		return nil, ErrActivityNotLocked
	}

	s.logger.Info("Activity unlocked",
		"student_account_id", req.StudentAccountID,
		"activity_id", req.ActivityID,
		"unlocked_by", req.UnlockedBy,
		"instances", len(unlocked))

	return unlocked, nil
}

func (s *completionService) GetStudentCompletions(ctx context.Context, studentAccountID string, sessionID *uint) ([]*models.ActivityCompletion, error) {
	var instance *string
	if sessionID != nil {
		id := instanceID(*sessionID)
		instance = &id
	}

	rows, err := s.repo.Completion().ListByStudent(ctx, studentAccountID, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	return rows, nil
}

func (s *completionService) publish(ctx context.Context, event *events.SessionEvent) {
	if err := s.publisher.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish completion event",
			"event_type", event.Type,
			"error", err)
	}
}
