package postgres

import (
	"context"
	"errors"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CompletionPostgreSQL struct {
	db *gorm.DB
}

func NewCompletionPostgreSQL(db *gorm.DB) *CompletionPostgreSQL {
	return &CompletionPostgreSQL{db: db}
}

func (c *CompletionPostgreSQL) Create(ctx context.Context, completion *models.ActivityCompletion) error {
	// The key is unique; a concurrent first submission may have created the row
	// already, in which case the existing row wins and the caller re-reads it.
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_account_id"}, {Name: "activity_id"}, {Name: "instance_id"}},
			DoNothing: true,
		}).
		Create(completion).Error
}

func (c *CompletionPostgreSQL) GetByKey(ctx context.Context, studentAccountID string, activityID uint, instanceID string) (*models.ActivityCompletion, error) {
	var completion models.ActivityCompletion
	if err := c.db.WithContext(ctx).
		Where("student_account_id = ? AND activity_id = ? AND instance_id = ?", studentAccountID, activityID, instanceID).
		First(&completion).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &completion, nil
}

func (c *CompletionPostgreSQL) GetByKeyForUpdate(ctx context.Context, studentAccountID string, activityID uint, instanceID string) (*models.ActivityCompletion, error) {
	var completion models.ActivityCompletion
	if err := c.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_account_id = ? AND activity_id = ? AND instance_id = ?", studentAccountID, activityID, instanceID).
		First(&completion).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &completion, nil
}

func (c *CompletionPostgreSQL) Update(ctx context.Context, completion *models.ActivityCompletion) error {
	return c.db.WithContext(ctx).Save(completion).Error
}

func (c *CompletionPostgreSQL) ListByStudent(ctx context.Context, studentAccountID string, instanceID *string) ([]*models.ActivityCompletion, error) {
	var completions []*models.ActivityCompletion
	query := c.db.WithContext(ctx).Where("student_account_id = ?", studentAccountID)
	if instanceID != nil {
		query = query.Where("instance_id = ?", *instanceID)
	}
	if err := query.Order("created_at DESC").Find(&completions).Error; err != nil {
		return nil, err
	}
	return completions, nil
}

func (c *CompletionPostgreSQL) ListByActivity(ctx context.Context, activityID uint) ([]*models.ActivityCompletion, error) {
	var completions []*models.ActivityCompletion
	if err := c.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("student_account_id ASC").
		Find(&completions).Error; err != nil {
		return nil, err
	}
	return completions, nil
}
