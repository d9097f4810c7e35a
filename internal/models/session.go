package models

import (
	"time"

	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
)

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
)

// Session is one teaching period. Sessions are archived via soft delete, never removed.
type Session struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	TeacherID string        `json:"teacher_id" gorm:"not null;size:255;index" validate:"required"`
	DeckID    *uint         `json:"deck_id" gorm:"index"`
	Status    SessionStatus `json:"status" gorm:"default:active;index" validate:"omitempty,oneof=active paused ended"`

	// Deadline after which student write paths are revoked. Nil while the session is active.
	GracePeriodEndsAt *time.Time `json:"grace_period_ends_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Session) TableName() string {
	return "sessions"
}

// WritesRevoked reports whether student writes must be rejected server-side:
// the session left the active state and its grace period has elapsed.
func (s *Session) WritesRevoked(now time.Time) bool {
	if s.Status == SessionActive {
		return false
	}
	if s.GracePeriodEndsAt == nil {
		return true
	}
	return now.After(*s.GracePeriodEndsAt)
}
