package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/classflow/live-session-service/internal/models"
)

type EventType string

const (
	EventQuestionAnswered  EventType = "question_answered"
	EventResponseRecorded  EventType = "response_recorded"
	EventActivityCompleted EventType = "activity_completed"
	EventActivityUnlocked  EventType = "activity_unlocked"
	EventSessionStatus     EventType = "session_status_changed"
)

const eventSource = "live-session-service"

// SessionEvent is the envelope published on the analytics stream. Delivery is a
// non-critical side effect: publish failures are logged and swallowed so they
// never block the primary state transition.
type SessionEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func NewSessionEvent(eventType EventType, data any) *SessionEvent {
	return &SessionEvent{
		ID:        watermill.NewUUID(),
		Type:      eventType,
		Source:    eventSource,
		Version:   "1.0",
		Timestamp: time.Now(),
		Data:      data,
	}
}

type QuestionAnsweredData struct {
	SessionID      uint   `json:"session_id"`
	ActivityID     uint   `json:"activity_id"`
	SlideID        uint   `json:"slide_id"`
	StudentID      string `json:"student_id"`
	QuestionNumber int    `json:"question_number"`
	IsCorrect      bool   `json:"is_correct"`
	AttemptNumber  int    `json:"attempt_number"`
}

// ResponseRecordedData describes an ungraded slide response.
type ResponseRecordedData struct {
	SessionID        uint   `json:"session_id"`
	ActivityID       uint   `json:"activity_id"`
	SlideID          uint   `json:"slide_id"`
	StudentID        string `json:"student_id"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

type ActivityCompletedData struct {
	StudentAccountID string `json:"student_account_id"`
	ActivityID       uint   `json:"activity_id"`
	InstanceID       string `json:"instance_id"`
	QuestionsCorrect int    `json:"questions_correct"`
	ScorePercentage  int    `json:"score_percentage"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

type ActivityUnlockedData struct {
	StudentAccountID string `json:"student_account_id"`
	ActivityID       uint   `json:"activity_id"`
	InstanceID       string `json:"instance_id"`
	UnlockedBy       string `json:"unlocked_by"`
	Reason           string `json:"reason"`
}

type SessionStatusData struct {
	SessionID         uint                 `json:"session_id"`
	Status            models.SessionStatus `json:"status"`
	GracePeriodEndsAt *time.Time           `json:"grace_period_ends_at,omitempty"`
}
