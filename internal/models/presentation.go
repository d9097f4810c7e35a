package models

// PacingMode controls who may move the shared slide position.
type PacingMode string

const (
	PacingTeacher PacingMode = "teacher-paced"
	PacingStudent PacingMode = "student-paced"
	PacingBounded PacingMode = "bounded"
)

// PresentationState is the live state of one deck instance. It exists only for the
// duration of a presentation and is owned by the pacing state machine; it is not
// persisted unless the teacher explicitly saves the session summary.
type PresentationState struct {
	SessionID         uint       `json:"session_id"`
	DeckID            uint       `json:"deck_id"`
	Mode              PacingMode `json:"mode"`
	CurrentSlideIndex int        `json:"current_slide_index"`
	TotalSlides       int        `json:"total_slides"`

	// Ordered slide indices that block student progress in bounded mode until the
	// teacher's authoritative index has reached them.
	Checkpoints []int `json:"checkpoints"`
}

// ActiveCheckpoint returns the first checkpoint the teacher has not yet reached,
// or -1 when none remains as a barrier.
func (p *PresentationState) ActiveCheckpoint() int {
	for _, cp := range p.Checkpoints {
		if p.CurrentSlideIndex < cp {
			return cp
		}
	}
	return -1
}
