package services

import (
	"context"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/realtime"
)

// Broadcaster is the fan-out surface services publish room events through.
// *realtime.Hub satisfies it; tests substitute a recorder.
type Broadcaster interface {
	Broadcast(sessionID uint, msgType realtime.MessageType, payload any)
	BroadcastToRole(sessionID uint, role models.UserRole, msgType realtime.MessageType, payload any)
	BroadcastToUser(sessionID uint, userID string, msgType realtime.MessageType, payload any)
}

// ===== SESSION =====

type CreateSessionRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	DeckID    *uint  `json:"deck_id"`
}

type SessionService interface {
	Create(ctx context.Context, req *CreateSessionRequest) (*models.Session, error)
	GetByID(ctx context.Context, id uint) (*models.Session, error)
	Pause(ctx context.Context, sessionID uint, teacherID string) (*models.Session, error)
	Resume(ctx context.Context, sessionID uint, teacherID string) (*models.Session, error)
	End(ctx context.Context, sessionID uint, teacherID string) (*models.Session, error)

	// PushActivity switches the session to a new activity deck and restarts the
	// live presentation for it, notifying the room (or one targeted student).
	PushActivity(ctx context.Context, req *PushActivityRequest) (*models.PresentationState, error)

	// EnsureStudentWritable rejects student writes once the session has left the
	// active state and its grace period has elapsed, independent of client state.
	EnsureStudentWritable(ctx context.Context, sessionID uint) (*models.Session, error)
}

// ===== PACING =====

type SetModeRequest struct {
	Mode        models.PacingMode `json:"mode" validate:"required,pacing_mode"`
	Checkpoints []int             `json:"checkpoints" validate:"dive,min=0"`
}

type PacingService interface {
	// StartPresentation creates the live state for a session's deck: teacher-paced,
	// slide zero, no checkpoints.
	StartPresentation(ctx context.Context, sessionID, deckID uint) (*models.PresentationState, error)
	GetState(sessionID uint) (*models.PresentationState, error)
	SetMode(ctx context.Context, sessionID uint, teacherID string, req *SetModeRequest) (*models.PresentationState, error)
	SetCheckpoints(ctx context.Context, sessionID uint, teacherID string, checkpoints []int) (*models.PresentationState, error)

	// TeacherNavigate moves the authoritative index. Bounds are the caller's
	// responsibility to surface; out-of-range targets are rejected.
	TeacherNavigate(sessionID uint, target int) (*models.PresentationState, error)

	// AuthorizeStudent applies the checkpoint barrier for a student's forward
	// intent. Only meaningful in bounded mode; other modes always authorize.
	AuthorizeStudent(sessionID uint, target int) error

	EndPresentation(sessionID uint)
}

// ===== NAVIGATION =====

type NavigateRequest struct {
	SessionID   uint            `json:"session_id" validate:"required"`
	ActorID     string          `json:"actor_id" validate:"required"`
	ActorRole   models.UserRole `json:"actor_role" validate:"required,user_role"`
	TargetIndex int             `json:"target_index" validate:"min=0"`
	SlideID     *uint           `json:"slide_id"`
}

type NavigationService interface {
	Navigate(ctx context.Context, req *NavigateRequest) error

	// ResyncTeacher re-emits the authoritative position, used when a teacher view
	// (re)attaches so it matches reality without a dedicated state-fetch call.
	ResyncTeacher(ctx context.Context, sessionID uint) error
}

// ===== RESPONSES =====

type SubmitResponseRequest struct {
	SessionID  uint   `json:"session_id" validate:"required"`
	ActivityID uint   `json:"activity_id" validate:"required"`
	SlideID    uint   `json:"slide_id" validate:"required"`
	StudentID  string `json:"student_id" validate:"required"`

	// Empty for anonymous students; they are recorded but never locked.
	StudentAccountID string `json:"student_account_id"`

	QuestionNumber   int  `json:"question_number" validate:"min=1"`
	SelectedOption   int  `json:"selected_option" validate:"min=0"`
	TimeSpentSeconds int  `json:"time_spent_seconds" validate:"min=0"`
	HelpReceived     bool `json:"help_received"`
}

type SubmitResponseResult struct {
	Response *models.QuestionResponse `json:"response"`

	// AlreadyAnswered is true when an actionable answer for this (student, slide)
	// existed before this call; the new row was recorded but changes nothing.
	AlreadyAnswered bool `json:"already_answered"`

	IsCorrect  bool                       `json:"is_correct"`
	Completion *models.ActivityCompletion `json:"completion,omitempty"`
}

// SubmitActivityRequest records an ungraded response to an activity slide:
// free-form work, interaction telemetry, time on task. No option is selected
// and nothing is scored, but time spent feeds the completion aggregates.
type SubmitActivityRequest struct {
	SessionID  uint   `json:"session_id" validate:"required"`
	ActivityID uint   `json:"activity_id" validate:"required"`
	SlideID    uint   `json:"slide_id" validate:"required"`
	StudentID  string `json:"student_id" validate:"required"`

	// Empty for anonymous students; they are recorded but never locked.
	StudentAccountID string `json:"student_account_id"`

	TimeSpentSeconds int  `json:"time_spent_seconds" validate:"min=0"`
	HelpReceived     bool `json:"help_received"`
}

type ResponseService interface {
	SubmitQuestionResponse(ctx context.Context, req *SubmitResponseRequest) (*SubmitResponseResult, error)

	// SubmitActivityResponse records an ungraded slide response. Same writability
	// and lock gates as graded answers; never counts as an attempted question.
	SubmitActivityResponse(ctx context.Context, req *SubmitActivityRequest) (*SubmitResponseResult, error)
}

// ===== COMPLETION =====

type UnlockRequest struct {
	ActivityID       uint   `json:"activity_id" validate:"required"`
	StudentAccountID string `json:"student_account_id" validate:"required"`
	UnlockedBy       string `json:"unlocked_by" validate:"required"`
	Reason           string `json:"reason"`
}

type CompletionService interface {
	// ApplyResponse folds one actionable response into the student's completion
	// row and fires the lock transition exactly once when all questions have been
	// attempted. Returns the updated row and whether this call locked it.
	ApplyResponse(ctx context.Context, studentAccountID string, activityID, sessionID uint) (*models.ActivityCompletion, bool, error)

	// EnsureUnlocked fails with ActivityLockedError when the student's completion
	// for this activity instance is locked.
	EnsureUnlocked(ctx context.Context, studentAccountID string, activityID, sessionID uint) error

	Unlock(ctx context.Context, req *UnlockRequest) ([]*models.ActivityCompletion, error)
	GetStudentCompletions(ctx context.Context, studentAccountID string, sessionID *uint) ([]*models.ActivityCompletion, error)
}

// ===== REPORTING =====

type ReportService interface {
	// ExportActivityCompletions renders one activity's completion records as an
	// xlsx workbook for the teacher's records.
	ExportActivityCompletions(ctx context.Context, activityID uint) ([]byte, error)
}

// ===== ACTIVITY PUSH =====

type PushActivityRequest struct {
	ActivityID uint   `json:"activity_id" validate:"required"`
	SessionID  uint   `json:"session_id" validate:"required"`
	TeacherID  string `json:"teacher_id" validate:"required"`

	// Target narrows delivery to one student; empty pushes to the whole room.
	Target string `json:"target"`
}

// ===== SERVICE MANAGER =====

// ServiceManager wires the service set behind one constructor, the way handlers
// consume them.
type ServiceManager interface {
	Session() SessionService
	Pacing() PacingService
	Navigation() NavigationService
	Response() ResponseService
	Completion() CompletionService
	Report() ReportService
}
