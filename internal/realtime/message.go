package realtime

import (
	"strconv"
	"time"

	"github.com/classflow/live-session-service/internal/models"
)

// MessageType is the closed set of room-scoped event kinds. Dispatch over this set
// is exhaustive; an unknown kind is answered with an error message, never silently
// dropped into a string-keyed handler map.
type MessageType string

const (
	// Client -> Server
	MessageTypeLeaveSession       MessageType = "leave-session"
	MessageTypeTeacherNavigate    MessageType = "teacher-navigated"
	MessageTypeStudentNavigate    MessageType = "student-navigated"
	MessageTypeModeChange         MessageType = "mode-changed"
	MessageTypeCheckpointsUpdate  MessageType = "checkpoints-updated"
	MessageTypeSlideStarted       MessageType = "slide-started"
	MessageTypeSlideCompleted     MessageType = "slide-completed"
	MessageTypePing               MessageType = "ping"

	// Server -> Client
	MessageTypeUserJoined           MessageType = "user-joined"
	MessageTypeUserLeft             MessageType = "user-left"
	MessageTypeStudentAnswered      MessageType = "student-answered-question"
	MessageTypeSessionStatusChanged MessageType = "session-status-changed"
	MessageTypeError                MessageType = "error"
	MessageTypePong                 MessageType = "pong"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

type NavigatePayload struct {
	SlideNumber int   `json:"slideNumber"`
	SlideID     *uint `json:"slideId,omitempty"`
}

type ModeChangedPayload struct {
	Mode   models.PacingMode `json:"mode"`
	DeckID uint              `json:"deckId"`
}

type CheckpointsUpdatedPayload struct {
	Checkpoints []int `json:"checkpoints"`
}

type UserPresencePayload struct {
	Role      models.UserRole `json:"role"`
	StudentID string          `json:"studentId,omitempty"`
}

type SlideProgressPayload struct {
	SlideID   uint   `json:"slideId"`
	StudentID string `json:"studentId"`
	TimeSpent int    `json:"timeSpent,omitempty"`
}

type StudentAnsweredPayload struct {
	SlideID     uint      `json:"slideId"`
	SlideNumber int       `json:"slideNumber"`
	StudentID   string    `json:"studentId"`
	// The selected option and correctness summarize the submission for the teacher
	// view; full response payloads are never fanned out to peers.
	SelectedOption int       `json:"selectedOption"`
	IsCorrect      bool      `json:"isCorrect"`
	Timestamp      time.Time `json:"timestamp"`
}

type SessionStatusPayload struct {
	Status            models.SessionStatus `json:"status"`
	GracePeriodEndsAt *time.Time           `json:"gracePeriodEndsAt,omitempty"`
	Message           string               `json:"message,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// RoomID is the room key for a session.
func RoomID(sessionID uint) string {
	return strconv.FormatUint(uint64(sessionID), 10)
}
