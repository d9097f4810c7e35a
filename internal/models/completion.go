package models

import "time"

type CompletionStatus string

const (
	CompletionInProgress CompletionStatus = "in_progress"
	CompletionLocked     CompletionStatus = "locked"
)

// DefaultUnlockReason is stamped on an unlock when the teacher supplies no reason.
const DefaultUnlockReason = "Teacher allowed a retake"

// ActivityCompletion accumulates a student's progress through one activity instance
// and carries the academic-integrity lock. One row per
// (student_account_id, activity_id, instance_id); anonymous students never get one.
type ActivityCompletion struct {
	ID               uint   `json:"id" gorm:"primaryKey"`
	StudentAccountID string `json:"student_account_id" gorm:"not null;size:255;uniqueIndex:idx_completion_key,priority:1"`
	ActivityID       uint   `json:"activity_id" gorm:"not null;uniqueIndex:idx_completion_key,priority:2"`
	InstanceID       string `json:"instance_id" gorm:"not null;size:255;uniqueIndex:idx_completion_key,priority:3"`

	Status             CompletionStatus `json:"status" gorm:"default:in_progress;index"`
	QuestionsAttempted int              `json:"questions_attempted" gorm:"default:0"`
	QuestionsCorrect   int              `json:"questions_correct" gorm:"default:0"`
	ScorePercentage    int              `json:"score_percentage" gorm:"default:0"`
	TimeSpentSeconds   int              `json:"time_spent_seconds" gorm:"default:0"`

	CompletedAt *time.Time `json:"completed_at"`
	LockedAt    *time.Time `json:"locked_at"`

	// Unlock audit trail. Set only by an explicit teacher unlock.
	UnlockedBy   *string    `json:"unlocked_by" gorm:"size:255"`
	UnlockedAt   *time.Time `json:"unlocked_at"`
	UnlockReason *string    `json:"unlock_reason" gorm:"size:500"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ActivityCompletion) TableName() string {
	return "activity_completions"
}

func (c *ActivityCompletion) IsLocked() bool {
	return c.Status == CompletionLocked
}
