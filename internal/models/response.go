package models

import "time"

// QuestionResponse is an immutable, append-only record of one answer submission.
// The storage layer accepts any number of rows per (student, slide); only the row
// with Actionable = true counts toward aggregates within a live pass.
type QuestionResponse struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	ActivityID uint   `json:"activity_id" gorm:"not null;index:idx_responses_activity_student,priority:1"`
	SlideID    uint   `json:"slide_id" gorm:"not null;index;uniqueIndex:uidx_responses_actionable,priority:2,where:actionable"`
	SessionID  uint   `json:"session_id" gorm:"not null;index;uniqueIndex:uidx_responses_actionable,priority:3"`
	StudentID  string `json:"student_id" gorm:"not null;size:255;index:idx_responses_activity_student,priority:2;uniqueIndex:uidx_responses_actionable,priority:1"`

	// QuestionNumber 0 marks an ungraded slide response; graded answers carry the
	// question's 1-based number within the deck.
	QuestionNumber int  `json:"question_number" gorm:"not null" validate:"min=0"`
	SelectedOption int  `json:"selected_option" gorm:"not null" validate:"min=0"`
	IsCorrect      bool `json:"is_correct" gorm:"not null"`
	AttemptNumber  int  `json:"attempt_number" gorm:"default:1"`

	// First answer per (student, slide) in a live pass; later rows are recorded but
	// excluded from aggregates and completion counting. A partial unique index over
	// (student_id, slide_id, session_id) WHERE actionable makes the rule hold under
	// concurrent submissions, not just on the read-then-write path.
	Actionable bool `json:"actionable" gorm:"default:true;index"`

	TimeSpentSeconds int  `json:"time_spent_seconds" gorm:"default:0" validate:"min=0"`
	HelpReceived     bool `json:"help_received" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
}

func (QuestionResponse) TableName() string {
	return "question_responses"
}
