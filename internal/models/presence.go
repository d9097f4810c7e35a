package models

import "time"

// StudentPresence is the ephemeral membership record of one client in a session room.
// It tracks the client's last self-reported slide index for the teacher's roster view
// and is never consulted for grading.
type StudentPresence struct {
	StudentID         string    `json:"student_id"`
	SessionID         uint      `json:"session_id"`
	Role              UserRole  `json:"role"`
	CurrentSlideIndex int       `json:"current_slide_index"`
	JoinedAt          time.Time `json:"joined_at"`
}
