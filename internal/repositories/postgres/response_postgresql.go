package postgres

import (
	"context"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/repositories"
	"gorm.io/gorm"
)

type ResponsePostgreSQL struct {
	db *gorm.DB
}

func NewResponsePostgreSQL(db *gorm.DB) *ResponsePostgreSQL {
	return &ResponsePostgreSQL{db: db}
}

func (r *ResponsePostgreSQL) Create(ctx context.Context, response *models.QuestionResponse) error {
	return r.db.WithContext(ctx).Create(response).Error
}

func (r *ResponsePostgreSQL) HasActionable(ctx context.Context, studentID string, slideID, sessionID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.QuestionResponse{}).
		Where("student_id = ? AND slide_id = ? AND session_id = ? AND actionable = true", studentID, slideID, sessionID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ResponsePostgreSQL) CountBySlide(ctx context.Context, studentID string, slideID, sessionID uint) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.QuestionResponse{}).
		Where("student_id = ? AND slide_id = ? AND session_id = ?", studentID, slideID, sessionID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *ResponsePostgreSQL) ListByStudent(ctx context.Context, studentID string, activityID, sessionID uint) ([]*models.QuestionResponse, error) {
	var responses []*models.QuestionResponse
	if err := r.db.WithContext(ctx).
		Where("student_id = ? AND activity_id = ? AND session_id = ?", studentID, activityID, sessionID).
		Order("created_at ASC").
		Find(&responses).Error; err != nil {
		return nil, err
	}
	return responses, nil
}

func (r *ResponsePostgreSQL) AggregateActionable(ctx context.Context, studentID string, activityID, sessionID uint) (*repositories.ResponseAggregate, error) {
	var agg repositories.ResponseAggregate
	err := r.db.WithContext(ctx).
		Model(&models.QuestionResponse{}).
		// Ungraded slide responses carry question_number 0: their time counts,
		// but they are never an attempted question.
		Select(
			"COUNT(DISTINCT CASE WHEN question_number > 0 THEN question_number END) AS questions_attempted, " +
				"COUNT(DISTINCT CASE WHEN is_correct AND question_number > 0 THEN question_number END) AS questions_correct, " +
				"COALESCE(SUM(time_spent_seconds), 0) AS time_spent_seconds").
		Where("student_id = ? AND activity_id = ? AND session_id = ? AND actionable = true",
			studentID, activityID, sessionID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}
