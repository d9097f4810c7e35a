package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/classflow/live-session-service/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned by all repositories when a record does not exist.
var ErrNotFound = errors.New("record not found")

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateError reports whether an insert hit a unique constraint, e.g. a
// concurrent submission already holding the actionable slot for a slide.
func IsDuplicateError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Repository aggregates per-entity repositories. Transaction runs fn against a
// repository bound to a single database transaction.
type Repository interface {
	Session() SessionRepository
	Deck() DeckRepository
	Response() ResponseRepository
	Completion() CompletionRepository

	Transaction(ctx context.Context, fn func(Repository) error) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id uint) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	UpdateStatus(ctx context.Context, id uint, status models.SessionStatus, graceEndsAt *time.Time) error

	// Archive soft-deletes the session record; ended sessions are never removed.
	Archive(ctx context.Context, id uint) error
}

type DeckRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Deck, error)
	GetByIDWithSlides(ctx context.Context, id uint) (*models.Deck, error)
	GetSlide(ctx context.Context, slideID uint) (*models.Slide, error)
	GetSlideByIndex(ctx context.Context, deckID uint, index int) (*models.Slide, error)

	// SlideIndex resolves a slide's zero-based position within its deck's order
	// from its sortable position value.
	SlideIndex(ctx context.Context, deckID uint, position float64) (int, error)
	CountSlides(ctx context.Context, deckID uint) (int, error)
	CountQuestions(ctx context.Context, deckID uint) (int, error)
}

type ResponseRepository interface {
	Create(ctx context.Context, response *models.QuestionResponse) error
	HasActionable(ctx context.Context, studentID string, slideID, sessionID uint) (bool, error)
	CountBySlide(ctx context.Context, studentID string, slideID, sessionID uint) (int, error)
	ListByStudent(ctx context.Context, studentID string, activityID, sessionID uint) ([]*models.QuestionResponse, error)

	// AggregateActionable folds the actionable rows of one (student, activity, session)
	// into completion counters. Each question number is counted at most once.
	AggregateActionable(ctx context.Context, studentID string, activityID, sessionID uint) (*ResponseAggregate, error)
}

type CompletionRepository interface {
	Create(ctx context.Context, completion *models.ActivityCompletion) error
	GetByKey(ctx context.Context, studentAccountID string, activityID uint, instanceID string) (*models.ActivityCompletion, error)

	// GetByKeyForUpdate acquires a row lock so concurrent submissions serialize on
	// the completion row. Meaningful only inside Repository.Transaction.
	GetByKeyForUpdate(ctx context.Context, studentAccountID string, activityID uint, instanceID string) (*models.ActivityCompletion, error)

	Update(ctx context.Context, completion *models.ActivityCompletion) error
	ListByStudent(ctx context.Context, studentAccountID string, instanceID *string) ([]*models.ActivityCompletion, error)
	ListByActivity(ctx context.Context, activityID uint) ([]*models.ActivityCompletion, error)
}

type ResponseAggregate struct {
	QuestionsAttempted int `json:"questions_attempted"`
	QuestionsCorrect   int `json:"questions_correct"`
	TimeSpentSeconds   int `json:"time_spent_seconds"`
}
